package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/telemetry"
	"github.com/flowforge-ai/agentcore/toolerrors"
)

// Result is the outcome of a single tool call, correlated back to the
// requesting model.ToolCall by ToolCallID and to its position in the
// originating act round by Index.
type Result struct {
	Index      int
	Name       ident.Tool
	ToolCallID string
	Content    any
	Error      *toolerrors.ToolError
	// FilledFields lists any argument fields the dispatcher defaulted in
	// because the model's multi-tool-call response omitted a field the
	// tool's schema requires.
	FilledFields []string
}

// Limiter bounds concurrent tool execution. pool.LevelLimiter satisfies this
// by acquiring/releasing a slot at a given depth; a nil Limiter means
// unbounded concurrency.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Dispatcher executes a round of tool calls against a Registry, enforcing
// the happens-before ordering contract: non-terminator calls run
// concurrently (bounded by Limiter), terminator calls run strictly after
// every non-terminator call in the round has completed, and results are
// returned re-sorted by their original request index regardless of
// completion order.
type Dispatcher struct {
	Registry *Registry
	Limiter  Limiter
	Logger   telemetry.Logger
	Tracer   telemetry.Tracer
}

// NewDispatcher builds a Dispatcher. A nil Logger/Tracer defaults to noop.
func NewDispatcher(reg *Registry, limiter Limiter, logger telemetry.Logger, tracer telemetry.Tracer) *Dispatcher {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Dispatcher{Registry: reg, Limiter: limiter, Logger: logger, Tracer: tracer}
}

// Dispatch runs calls to completion and returns their results in original
// request order.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []model.ToolCall) ([]Result, error) {
	results := make([]Result, len(calls))

	var nonTerm, term []int
	for i, c := range calls {
		spec, err := d.Registry.Resolve(string(c.Name))
		if err != nil {
			results[i] = Result{Index: i, Name: c.Name, ToolCallID: c.ID, Error: toolerrors.FromError(err)}
			continue
		}
		if spec.Terminator {
			term = append(term, i)
		} else {
			nonTerm = append(nonTerm, i)
		}
	}

	if err := d.runPhase(ctx, calls, results, nonTerm); err != nil {
		return nil, fmt.Errorf("tools: non-terminator phase: %w", err)
	}
	if err := d.runPhase(ctx, calls, results, term); err != nil {
		return nil, fmt.Errorf("tools: terminator phase: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, nil
}

// runPhase executes the indices in calls concurrently (subject to the
// Limiter), writing each outcome into the pre-allocated results slice at
// its own index so concurrent writers never race on the same slot.
func (d *Dispatcher) runPhase(ctx context.Context, calls []model.ToolCall, results []Result, indices []int) error {
	if len(indices) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			if d.Limiter != nil {
				release, err := d.Limiter.Acquire(gctx)
				if err != nil {
					mu.Lock()
					results[idx] = Result{Index: idx, Name: calls[idx].Name, ToolCallID: calls[idx].ID, Error: toolerrors.NewWithCause("acquire execution slot", err)}
					mu.Unlock()
					return nil
				}
				defer release()
			}
			res := d.executeOne(gctx, idx, calls[idx])
			mu.Lock()
			results[idx] = res
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) executeOne(ctx context.Context, idx int, call model.ToolCall) (result Result) {
	ctx, span := d.Tracer.Start(ctx, "tools.dispatch.execute")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("tool %q panicked: %v", call.Name, r)
			span.RecordError(err)
			result = Result{Index: idx, Name: call.Name, ToolCallID: call.ID, Error: toolerrors.FromError(err)}
		}
	}()

	spec, err := d.Registry.Resolve(string(call.Name))
	if err != nil {
		return Result{Index: idx, Name: call.Name, ToolCallID: call.ID, Error: toolerrors.FromError(err)}
	}

	payload, filled, err := d.Registry.FillRequiredDefaults(spec.Name, call.Payload)
	if err != nil {
		d.Logger.Warn(ctx, "tool argument default-fill failed", "tool", spec.Name, "err", err)
		payload = call.Payload
	}
	if err := d.Registry.Validate(spec.Name, payload); err != nil {
		return Result{
			Index: idx, Name: call.Name, ToolCallID: call.ID,
			Error: toolerrors.NewWithCause(fmt.Sprintf("arguments for %q failed validation", spec.Name), err),
		}
	}

	content, err := spec.Handler(ctx, payload)
	if err != nil {
		span.RecordError(err)
		return Result{
			Index: idx, Name: call.Name, ToolCallID: call.ID,
			Error: toolerrors.NewWithCause(fmt.Sprintf("tool %q failed", spec.Name), err), FilledFields: filled,
		}
	}
	return Result{Index: idx, Name: call.Name, ToolCallID: call.ID, Content: content, FilledFields: filled}
}

// ToolResultParts converts dispatch results into ToolResultPart messages
// ready to attach to the next user-role message in the transcript.
func ToolResultParts(results []Result) []model.Part {
	parts := make([]model.Part, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			parts = append(parts, model.ToolResultPart{ToolUseID: r.ToolCallID, Content: r.Error.Error(), IsError: true})
			continue
		}
		parts = append(parts, model.ToolResultPart{ToolUseID: r.ToolCallID, Content: r.Content})
	}
	return parts
}

// CanonicalizeResult renders a result's content as canonical JSON for
// repeated-result comparison by the memory compressor. Errors canonicalize
// to their message text so repeated identical failures are also detected.
func CanonicalizeResult(r Result) (string, error) {
	if r.Error != nil {
		return "ERROR:" + r.Error.Error(), nil
	}
	b, err := json.Marshal(r.Content)
	if err != nil {
		return "", fmt.Errorf("tools: canonicalize result: %w", err)
	}
	return string(b), nil
}
