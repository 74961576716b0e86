// Package plan implements the Plan Executor: it runs a plan's steps in
// strict sequence, resolves each step's executor agent from a leading
// `[TAG]` requirement prefix, propagates interruption and failure, and
// records the plan's lifecycle. Grounded on the teacher's run.Store
// lifecycle bookkeeping (agent/run/run.go) and runtime.go's top-level
// ExecuteWorkflow error-to-result conversion, generalized from a durable
// Temporal workflow entrypoint to a plain in-process call that never lets
// an error cross the plan boundary as a panic.
package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowforge-ai/agentcore/agent"
	"github.com/flowforge-ai/agentcore/corekind"
	"github.com/flowforge-ai/agentcore/directory"
	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/pool"
	"github.com/flowforge-ai/agentcore/recorder"
	"github.com/flowforge-ai/agentcore/telemetry"
)

// defaultAgentTag is the variant selected when a step requirement carries
// no leading `[TAG]` prefix.
const defaultAgentTag = "DEFAULT_AGENT"

// executionInterruptedMarker is the canonical prefix a step's result text
// carries when an agent observed interruption mid-run; the Plan Executor
// treats it the same as a structurally interrupted step state so
// interruption detected deep inside a nested call still halts the plan.
const executionInterruptedMarker = "Execution interrupted by user"

// Step is one plan step's input and outcome.
type Step struct {
	ID          string
	Requirement string
	AgentTag    string
	State       agent.State
	ResultText  string
	Err         *corekind.CoreError
}

// ExecutionResult is the terminal outcome of running a plan: every step's
// outcome plus the plan's own state. It is always populated — failures
// never propagate as a returned error, only as Err/State fields, per the
// "future never fails" contract.
type ExecutionResult struct {
	PlanID    ident.Plan
	State     agent.State
	Steps     []Step
	FinalText string
	Err       *corekind.CoreError
}

// Input parameterizes one plan execution.
type Input struct {
	RootPlanID ident.Plan
	PlanID     ident.Plan
	Depth      pool.Level
	// TopLevel marks a root plan (not a sub-plan spawned by a step); only
	// top-level runs materialize/tear down the externally-referenced
	// folder link.
	TopLevel bool
	// Requirements is the ordered list of step requirement texts, each
	// optionally prefixed with an uppercase `[TAG]` selecting an agent
	// variant.
	Requirements []string
	// ConversationMemory seeds the shared dialog every step's agent reads
	// from and, via its final response, appends to for the next step.
	ConversationMemory []*model.Message
}

// AgentFactory builds the per-step Agent bound to profile and depth. The
// Plan Executor calls it once per step rather than holding agents as
// long-lived singletons, so each step gets pool/registry wiring scoped to
// its own depth.
type AgentFactory func(ctx context.Context, profile directory.AgentProfile, depth pool.Level) (*agent.Agent, error)

// FolderLinker materializes/removes the scoped external-folder link a
// top-level plan exposes to its tools. A Directory manager collaborator
// (§6) implements this; nil is a valid no-op for deployments with no
// external-folder feature.
type FolderLinker interface {
	EnsureExternalFolderLink(ctx context.Context, planID ident.Plan) error
	RemoveExternalFolderLink(ctx context.Context, planID ident.Plan) error
}

// Executor runs plans step by step.
type Executor struct {
	Directory  directory.Directory
	NewAgent   AgentFactory
	Folders    FolderLinker
	Pools      *pool.Levels
	Interrupts *interrupt.Controller
	Recorder   recorder.Store
	Logger     telemetry.Logger
	Tracer     telemetry.Tracer

	// lastAgent is the most recently built step agent, recorded so
	// cleanup can call agent.Cleanup for the last agent on every
	// terminal transition, per the executor's Cleanupable contract.
	lastAgent *agent.Agent
}

func (e *Executor) logger() telemetry.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return telemetry.NewNoopLogger()
}

// Execute runs in.Requirements in strict sequence against in.Depth's
// executor pool, propagating interruption and failure per the §4.1
// algorithm. It never returns a non-nil error for step-level failures —
// those are conveyed in the returned ExecutionResult — reserving the error
// return for a structurally invalid Input.
func (e *Executor) Execute(ctx context.Context, in Input) (ExecutionResult, error) {
	ctx, span := e.tracer().Start(ctx, "plan.execute")
	defer span.End()

	if in.TopLevel && e.Folders != nil {
		if err := e.Folders.EnsureExternalFolderLink(ctx, in.PlanID); err != nil {
			e.logger().Warn(ctx, "failed to materialize external folder link", "plan", in.PlanID, "err", err)
		}
	}
	defer e.cleanup(ctx, in)

	if err := e.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, Type: recorder.EventPlanStarted}); err != nil {
		return ExecutionResult{}, fmt.Errorf("plan: record plan start: %w", err)
	}

	result := ExecutionResult{PlanID: in.PlanID, State: agent.StateInProgress}
	conversationMemory := in.ConversationMemory

	for i, requirement := range in.Requirements {
		stepID := fmt.Sprintf("%s-step-%d", in.PlanID, i)

		if reason, interrupted := e.Interrupts.IsInterrupted(in.RootPlanID); interrupted {
			step := Step{ID: stepID, Requirement: requirement, State: agent.StateInterrupted, Err: corekind.New(corekind.Interrupted, fmt.Errorf("interrupted: %s", reason.Notes))}
			result.Steps = append(result.Steps, step)
			result.State = agent.StateInterrupted
			result.Err = step.Err
			return result, nil
		}

		tag, text := parseTag(requirement)
		profile, err := e.Directory.Lookup(ctx, ident.Agent(tag))
		if err != nil {
			cerr := corekind.New(corekind.PlanFatal, fmt.Errorf("no executor for agent tag %q: %w", tag, err))
			step := Step{ID: stepID, Requirement: requirement, AgentTag: tag, State: agent.StateFailed, Err: cerr}
			result.Steps = append(result.Steps, step)
			result.State = agent.StateFailed
			result.Err = cerr
			return result, nil
		}

		ag, err := e.NewAgent(ctx, profile, in.Depth)
		if err == nil {
			e.lastAgent = ag
		}
		if err != nil {
			cerr := corekind.New(corekind.PlanFatal, fmt.Errorf("build agent for tag %q: %w", tag, err))
			step := Step{ID: stepID, Requirement: requirement, AgentTag: tag, State: agent.StateFailed, Err: cerr}
			result.Steps = append(result.Steps, step)
			result.State = agent.StateFailed
			result.Err = cerr
			return result, nil
		}

		stepResult, err := e.runStepAtDepth(ctx, ag, in, stepID, text, conversationMemory)
		if err != nil {
			cerr := corekind.New(corekind.PlanFatal, err)
			step := Step{ID: stepID, Requirement: requirement, AgentTag: tag, State: agent.StateFailed, Err: cerr}
			result.Steps = append(result.Steps, step)
			result.State = agent.StateFailed
			result.Err = cerr
			return result, nil
		}

		step := Step{ID: stepID, Requirement: requirement, AgentTag: tag, State: stepResult.State, ResultText: stepResult.FinalText, Err: stepResult.Err}
		result.Steps = append(result.Steps, step)

		if stepResult.FinalText != "" {
			conversationMemory = append(conversationMemory, &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: stepResult.FinalText}}})
		}

		if stepResult.State == agent.StateFailed || stepResult.State == agent.StateInterrupted || strings.HasPrefix(stepResult.FinalText, executionInterruptedMarker) {
			result.State = stepResult.State
			if result.State == agent.StateInProgress {
				result.State = agent.StateInterrupted
			}
			result.Err = stepResult.Err
			return result, nil
		}
	}

	result.State = agent.StateCompleted
	if n := len(result.Steps); n > 0 {
		result.FinalText = result.Steps[n-1].ResultText
	}
	_ = e.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, Type: recorder.EventPlanCompleted})
	return result, nil
}

// runStepAtDepth acquires this plan's depth slot from the level pool
// before invoking the agent, so a burst of deeply nested sub-plans cannot
// starve shallower steps of execution slots, and always releases it
// afterward regardless of outcome.
func (e *Executor) runStepAtDepth(ctx context.Context, ag *agent.Agent, in Input, stepID, requirementText string, conversationMemory []*model.Message) (agent.Result, error) {
	if e.Pools != nil {
		release, err := e.Pools.At(in.Depth).Acquire(ctx)
		if err != nil {
			return agent.Result{}, fmt.Errorf("plan: acquire level %d slot: %w", in.Depth, err)
		}
		defer release()
	}

	_ = e.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: ag.ID, Type: recorder.EventStepStarted})

	return ag.RunStep(ctx, agent.Input{
		RootPlanID:         in.RootPlanID,
		PlanID:             in.PlanID,
		StepID:             stepID,
		Depth:              in.Depth,
		Requirement:        requirementText,
		ConversationMemory: conversationMemory,
	})
}

func (e *Executor) tracer() telemetry.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return telemetry.NewNoopTracer()
}

// cleanup always runs on every terminal transition; errors are logged and
// never propagated, per the §4.1 failure-semantics note that cleanup
// itself must never become a new source of plan failure. It calls
// agent.Cleanup for the last agent that ran a step, per the §4.1 step 4
// requirement to clean up the last agent on every terminal transition.
func (e *Executor) cleanup(ctx context.Context, in Input) {
	if e.lastAgent != nil {
		if err := e.lastAgent.Cleanup(ctx, in.PlanID); err != nil {
			e.logger().Warn(ctx, "agent cleanup failed", "plan", in.PlanID, "agent", e.lastAgent.ID, "err", err)
		}
	}
	if in.TopLevel && e.Folders != nil {
		if err := e.Folders.RemoveExternalFolderLink(ctx, in.PlanID); err != nil {
			e.logger().Warn(ctx, "failed to remove external folder link", "plan", in.PlanID, "err", err)
		}
	}
}

// parseTag extracts a leading `[TAG]` prefix (uppercased) from a step
// requirement, returning the default tag and the unmodified text when
// absent.
func parseTag(requirement string) (tag string, text string) {
	trimmed := strings.TrimSpace(requirement)
	if !strings.HasPrefix(trimmed, "[") {
		return defaultAgentTag, requirement
	}
	end := strings.Index(trimmed, "]")
	if end <= 1 {
		return defaultAgentTag, requirement
	}
	tag = strings.ToUpper(strings.TrimSpace(trimmed[1:end]))
	text = strings.TrimSpace(trimmed[end+1:])
	return tag, text
}
