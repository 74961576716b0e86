package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge-ai/agentcore/corekind"
	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/memory"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/recorder"
	"github.com/flowforge-ai/agentcore/tools"
)

// RunStep drives the ReAct loop for a single plan step: think, act, repeat,
// until a terminator tool fires, the agent's step budget is exhausted, an
// interruption is observed, or the think phase exhausts its retries with a
// non-retryable failure.
func (a *Agent) RunStep(ctx context.Context, in Input) (Result, error) {
	if err := a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventStepStarted}); err != nil {
		return Result{}, fmt.Errorf("agent: record step start: %w", err)
	}

	agentMemory := append([]*model.Message(nil), in.AgentMemory...)
	var thinkActs []ThinkAct
	var loopWindow []string
	earlyTerminations := 0

	for stepN := 1; stepN <= a.maxSteps(); stepN++ {
		if reason, interrupted := a.Interrupts.IsInterrupted(in.RootPlanID); interrupted {
			_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventInterrupted})
			return Result{State: StateInterrupted, Err: corekind.New(corekind.Interrupted, fmt.Errorf("interrupted: %s", reason.Notes)), ThinkActs: thinkActs}, nil
		}

		in.ConversationMemory, agentMemory = a.precompress(ctx, in.ConversationMemory, agentMemory)

		ta, outcome, cerr := a.think(ctx, in, agentMemory, stepN, &earlyTerminations)
		if cerr != nil {
			return a.fail(ctx, in, cerr, thinkActs)
		}
		thinkActs = append(thinkActs, ta)
		_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventThink, Payload: thinkPayload(ta)})

		if reason, interrupted := a.Interrupts.IsInterrupted(in.RootPlanID); interrupted {
			_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventInterrupted})
			return Result{State: StateInterrupted, Err: corekind.New(corekind.Interrupted, fmt.Errorf("interrupted: %s", reason.Notes)), ThinkActs: thinkActs}, nil
		}

		out, cerr := a.act(ctx, in, stepN, ta, agentMemory, &loopWindow)
		if cerr != nil {
			return a.fail(ctx, in, cerr, thinkActs)
		}
		agentMemory = out.agentMemory
		_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventAct})

		if out.state == StateCompleted {
			_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventStepCompleted})
			_ = outcome // outcome.usage available for token accounting by the Plan Executor
			return Result{State: StateCompleted, FinalText: out.finalText, ThinkActs: thinkActs}, nil
		}
		_ = out.errorMessage // surfaced to the Plan Executor's step.errorMessage field, not fatal
	}

	return a.finalSummary(ctx, in, agentMemory, thinkActs)
}

// Cleanup releases any resources this agent's tools hold for planID. It is
// the Cleanupable half of the executor's capability contract (alongside
// Thinker/think.go, Actor/act.go, and StateReporter/registry.go's
// EnvironmentSnapshot): the Plan Executor calls it once, for the last
// agent used, on every terminal transition. Errors are returned rather
// than swallowed here; the caller decides whether a cleanup failure is
// worth surfacing since it never changes the plan's own terminal state.
func (a *Agent) Cleanup(ctx context.Context, planID ident.Plan) error {
	if a.Registry == nil {
		return nil
	}
	return a.Registry.Cleanup(ctx, planID)
}

// precompress applies the Memory Compressor ahead of each think call, per
// §4.2.1 step 3: compress conversation and agent memory when their
// combined serialized size exceeds the configured threshold (or the
// compressor's own round-count/repetition triggers fire).
func (a *Agent) precompress(ctx context.Context, conversationMemory, agentMemory []*model.Message) ([]*model.Message, []*model.Message) {
	if a.Memory == nil {
		return conversationMemory, agentMemory
	}
	combined := append(append([]*model.Message(nil), conversationMemory...), agentMemory...)
	if a.Config.ConversationMemoryMaxChars > 0 && memory.SerializedSize(combined) > a.Config.ConversationMemoryMaxChars {
		if compressed, err := a.Memory.ForceCompress(ctx, conversationMemory); err == nil {
			conversationMemory = compressed
		}
		if compressed, err := a.Memory.ForceCompress(ctx, agentMemory); err == nil {
			agentMemory = compressed
		}
		return conversationMemory, agentMemory
	}
	if compressed, err := a.Memory.Compress(ctx, conversationMemory); err == nil {
		conversationMemory = compressed
	}
	if compressed, err := a.Memory.Compress(ctx, agentMemory); err == nil {
		agentMemory = compressed
	}
	return conversationMemory, agentMemory
}

func (a *Agent) fail(ctx context.Context, in Input, cerr *corekind.CoreError, thinkActs []ThinkAct) (Result, error) {
	if cerr.Kind == corekind.Interrupted {
		_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventInterrupted})
		return Result{State: StateInterrupted, Err: cerr, ThinkActs: thinkActs}, nil
	}
	_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventPlanFailed})
	return Result{State: StateFailed, Err: cerr, ThinkActs: thinkActs}, nil
}

// finalSummary implements the §4.2.2 final-summary path: when maxSteps is
// reached without termination, summarize existing memory with a non-tool
// LLM call and invoke a terminate tool (if the registry has one) with that
// summary so the step still ends as completed rather than merely running
// out of budget silently.
func (a *Agent) finalSummary(ctx context.Context, in Input, agentMemory []*model.Message, thinkActs []ThinkAct) (Result, error) {
	prompt := &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{
		Text: "Step budget exhausted. Summarize progress so far and produce a final answer for the user.",
	}}}
	req := &model.Request{
		ModelClass: model.ClassSmall,
		Messages:   append(append([]*model.Message(nil), agentMemory...), prompt),
	}
	resp, err := a.Client.Complete(ctx, req)
	summary := "step budget exhausted without a final answer"
	if err == nil {
		summary = textOfAll(resp)
	}

	if name, ok := a.Registry.FindByCapability(tools.CapabilityTerminate); ok {
		payload, _ := json.Marshal(map[string]string{"summary": summary})
		_, _ = a.Dispatcher.Dispatch(ctx, []model.ToolCall{{Name: name, Payload: payload}})
	}

	_ = a.Recorder.Append(ctx, &recorder.Event{PlanID: in.PlanID, AgentID: a.ID, Type: recorder.EventStepCompleted})
	return Result{State: StateCompleted, FinalText: summary, ThinkActs: thinkActs}, nil
}

func textOfAll(resp *model.Response) string {
	if resp == nil {
		return ""
	}
	var out string
	for i := range resp.Content {
		out += textOf(&resp.Content[i])
	}
	return out
}

func thinkPayload(ta ThinkAct) json.RawMessage {
	b, err := json.Marshal(struct {
		ThinkActID string `json:"thinkActId"`
		Text       string `json:"text"`
		ToolCount  int    `json:"toolCount"`
	}{ta.ThinkActID, ta.Text, len(ta.Tools)})
	if err != nil {
		return nil
	}
	return b
}
