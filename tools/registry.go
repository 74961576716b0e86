// Package tools implements the tool registry, key resolution, JSON-Schema
// driven argument conversion, and the parallel dispatcher that enforces the
// happens-before ordering contract between non-terminator and terminator
// tool calls within a single act round.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/toolerrors"
)

// Handler executes a tool given its converted JSON payload and returns a
// JSON-compatible result value or a tool-level error. Handlers never panic
// across the dispatcher boundary; a panic recovered by the dispatcher is
// converted to a ToolError.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Capability classifies a tool's special handling in the ReAct loop's
// single-tool act path, beyond running a handler and storing its result.
type Capability string

const (
	// CapabilityNormal is an ordinary tool: its result is stored and the
	// step remains in-progress.
	CapabilityNormal Capability = ""
	// CapabilityFormInput marks a tool that suspends the step for the
	// user-rendezvous protocol instead of returning immediately.
	CapabilityFormInput Capability = "form_input"
	// CapabilityTerminable marks a tool whose result carries a runtime
	// canTerminate flag the agent reads after the call to decide whether
	// to end the step.
	CapabilityTerminable Capability = "terminable"
	// CapabilityTerminate is a distinguished terminable tool that always
	// ends the step as completed.
	CapabilityTerminate Capability = "terminate"
	// CapabilityErrorReport and CapabilitySystemErrorReport mark tools
	// whose JSON result carries an errorMessage field attached to the
	// step for UI visibility.
	CapabilityErrorReport       Capability = "error_report"
	CapabilitySystemErrorReport Capability = "system_error_report"
)

// Spec describes a registered tool: its identity, schema, and handler.
type Spec struct {
	// Name is the tool's registered identifier, as the model should
	// reference it (e.g. "web_search" or "web.search").
	Name ident.Tool
	// Group is the optional service-group qualifier used for qualified-key
	// resolution (e.g. "web" in "web_search").
	Group string
	// Description is shown to the model to help it decide when to call
	// the tool.
	Description string
	// InputSchema is the tool's JSON Schema for its arguments, compiled
	// once at registration to drive required-field defaulting.
	InputSchema json.RawMessage
	// Terminator marks a tool whose effect ends the current act round
	// (e.g. "finish_plan", "ask_user"): all non-terminator calls in the
	// same round must complete before any terminator call starts. Always
	// true for CapabilityTerminate tools.
	Terminator bool
	// Capability selects special single-tool-path handling. Zero value is
	// CapabilityNormal.
	Capability Capability
	// Handler executes the tool.
	Handler Handler
	// StateFn optionally reports the tool's current state as a short
	// string, polled once per think step to refresh the round-scoped
	// environment snapshot. Nil if the tool is stateless.
	StateFn func(ctx context.Context) (string, error)
	// Cleanup optionally releases resources the tool holds for planID
	// (open handles, leased credentials, scratch state) once the plan
	// reaches a terminal state. Nil if the tool needs no teardown.
	Cleanup func(ctx context.Context, planID ident.Plan) error
}

// Registry holds the tools available to a plan's agents and resolves
// model-requested keys against them.
type Registry struct {
	mu    sync.RWMutex
	specs map[ident.Tool]*Spec
	// bareIndex maps a bare tool name (Name without its group qualifier)
	// to the set of fully qualified names sharing it, used for suffix
	// resolution and to detect ambiguity.
	bareIndex map[string][]ident.Tool
	schemas   map[ident.Tool]*compiledSchema
	order     []ident.Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:     map[ident.Tool]*Spec{},
		bareIndex: map[string][]ident.Tool{},
		schemas:   map[ident.Tool]*compiledSchema{},
	}
}

// Register adds a tool spec, compiling its schema if present. Register
// returns an error if a tool with the same Name is already registered,
// matching the teacher's registration-time-failure posture for identifier
// collisions rather than silently overwriting.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("tools: nil spec")
	}
	if spec.Name == "" {
		return fmt.Errorf("tools: spec requires a Name")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tools: tool %q requires a Handler", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tools: tool %q already registered", spec.Name)
	}

	var cs *compiledSchema
	if len(spec.InputSchema) > 0 {
		var err error
		cs, err = compileSchema(string(spec.Name), spec.InputSchema)
		if err != nil {
			return fmt.Errorf("tools: compile schema for %q: %w", spec.Name, err)
		}
	}

	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	if cs != nil {
		r.schemas[spec.Name] = cs
	}
	bare := ident.ParseQualifiedKey(string(spec.Name)).Name
	r.bareIndex[bare] = append(r.bareIndex[bare], spec.Name)
	return nil
}

// Spec returns the registered spec for a fully qualified name.
func (r *Registry) Spec(name ident.Tool) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Definitions returns the ToolDefinition list for every registered tool,
// suitable for use as model.Request.Tools. Order is not significant to
// providers but is kept stable within a process by iterating the
// registration-order name list, not Go's randomized map order.
func (r *Registry) Definitions() []*model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*model.ToolDefinition, 0, len(r.specs))
	for _, name := range r.order {
		spec := r.specs[name]
		var schema any
		if len(spec.InputSchema) > 0 {
			_ = json.Unmarshal(spec.InputSchema, &schema)
		}
		defs = append(defs, &model.ToolDefinition{
			Name:        string(spec.Name),
			Description: spec.Description,
			InputSchema: schema,
		})
	}
	return defs
}

// FindByCapability returns the first registered tool with the given
// capability, in registration order. Used by the ReAct loop's final-summary
// path to locate a terminate tool without hardcoding its name.
func (r *Registry) FindByCapability(cap Capability) (ident.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if r.specs[name].Capability == cap {
			return name, true
		}
	}
	return "", false
}

// EnvironmentSnapshot polls every registered tool with a StateFn and joins
// their reported states into the current-step environment message. Tools
// without a StateFn are skipped; a tool whose StateFn errors is reported
// inline rather than aborting the snapshot.
func (r *Registry) EnvironmentSnapshot(ctx context.Context) string {
	r.mu.RLock()
	names := append([]ident.Tool(nil), r.order...)
	r.mu.RUnlock()

	var sb strings.Builder
	for _, name := range names {
		r.mu.RLock()
		spec := r.specs[name]
		r.mu.RUnlock()
		if spec == nil || spec.StateFn == nil {
			continue
		}
		state, err := spec.StateFn(ctx)
		if err != nil {
			fmt.Fprintf(&sb, "%s: <state error: %v>\n", spec.Name, err)
			continue
		}
		if state == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", spec.Name, state)
	}
	return sb.String()
}

// Cleanup runs every registered tool's Cleanup hook for planID, continuing
// past individual failures so one misbehaving tool can't block the rest of
// the registry from tearing down; all failures are joined into a single
// returned error (nil if every hook succeeded or had none).
func (r *Registry) Cleanup(ctx context.Context, planID ident.Plan) error {
	r.mu.RLock()
	names := append([]ident.Tool(nil), r.order...)
	r.mu.RUnlock()

	var errs []error
	for _, name := range names {
		r.mu.RLock()
		spec := r.specs[name]
		r.mu.RUnlock()
		if spec == nil || spec.Cleanup == nil {
			continue
		}
		if err := spec.Cleanup(ctx, planID); err != nil {
			errs = append(errs, fmt.Errorf("tool %q cleanup: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// notFoundError constructs a TOOL_NOT_FOUND-flavored error for an unresolved
// key, including the raw key the model requested for diagnostics.
func notFoundError(raw string) *toolerrors.ToolError {
	return toolerrors.Errorf("tool %q not found", raw)
}
