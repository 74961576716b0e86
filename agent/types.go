// Package agent implements the ReAct Agent Loop: the think/act cycle a
// single plan step runs to alternate one LLM call with the tool calls it
// requests, until a terminator tool fires, the step budget is exhausted, an
// interruption lands, or the loop gives up with a structured failure.
// Grounded on the teacher's runtime workflow loop (runtime/workflow_loop.go,
// workflow_turn.go) and planner contract (runtime/planner/planner.go),
// stripped of Temporal workflow/activity plumbing since the execution core
// runs in a single process with no durable checkpointing.
package agent

import (
	"encoding/json"
	"time"

	"github.com/flowforge-ai/agentcore/config"
	"github.com/flowforge-ai/agentcore/corekind"
	"github.com/flowforge-ai/agentcore/directory"
	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/memory"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/pool"
	"github.com/flowforge-ai/agentcore/recorder"
	"github.com/flowforge-ai/agentcore/telemetry"
	"github.com/flowforge-ai/agentcore/tools"
)

// State is the terminal or in-progress condition a step is in after a
// think/act round.
type State string

const (
	StateInProgress  State = "in-progress"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateInterrupted State = "interrupted"
)

// ActToolParam is one tool invocation a think round asked the act phase to
// run, with a toolCallId assigned per call so multi-tool turns can
// correlate results back to the original request.
type ActToolParam struct {
	ToolCallID string
	Name       ident.Tool
	Payload    json.RawMessage
}

// ThinkAct is the record emitted after a successful think step: the prompt
// context it reasoned over, the text it produced, and the tool calls (if
// any) it chose.
type ThinkAct struct {
	StepID     string
	ThinkActID string
	Input      []*model.Message
	Text       string
	Tools      []ActToolParam
}

// Result is what RunStep returns: the step's terminal state, its final
// text if it completed, and the full think/act trail for recording.
type Result struct {
	State     State
	FinalText string
	Err       *corekind.CoreError
	ThinkActs []ThinkAct
}

// Input parameterizes one RunStep call.
type Input struct {
	RootPlanID  ident.Plan
	PlanID      ident.Plan
	StepID      string
	Depth       pool.Level
	Requirement string

	// ConversationMemory is the user-facing dialog shared across all agents
	// in the conversation; RunStep reads it but the memory filtering rule
	// (§4.2.3) never lets an agent write to it directly.
	ConversationMemory []*model.Message
	// AgentMemory is this agent's private reasoning trail, replaced after
	// every act per the memory filtering rule.
	AgentMemory []*model.Message
}

// Agent is the think/act runtime for one step: it wraps a model client and
// a tool subset and carries every collaborator the loop needs (registry,
// dispatcher, memory compressor, pools, interruption, recorder, forms).
// Constructed per plan step rather than held as a global singleton, per
// the teacher's pattern of threading a context object through the
// executor instead of reaching for package-level state.
type Agent struct {
	ID      ident.Agent
	Profile directory.AgentProfile

	Client     model.Client
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher
	Memory     *memory.Compressor
	Forms      FormStore
	Interrupts *interrupt.Controller
	Recorder   recorder.Store
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Tracer     telemetry.Tracer
	Config     config.Config
}

func (a *Agent) logger() telemetry.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return telemetry.NewNoopLogger()
}

func (a *Agent) tracer() telemetry.Tracer {
	if a.Tracer != nil {
		return a.Tracer
	}
	return telemetry.NewNoopTracer()
}

func (a *Agent) maxSteps() int {
	if a.Profile.MaxStepsOverride > 0 {
		return a.Profile.MaxStepsOverride
	}
	if a.Config.MaxSteps > 0 {
		return a.Config.MaxSteps
	}
	return 20
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
