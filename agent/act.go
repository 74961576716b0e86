package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowforge-ai/agentcore/corekind"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/toolerrors"
	"github.com/flowforge-ai/agentcore/tools"
)

// actOutcome is what a single act phase produces: an updated agent memory
// (per the §4.2.3 memory filtering rule) and either "keep going" or a
// terminal state for the step.
type actOutcome struct {
	state        State
	finalText    string
	errorMessage string
	agentMemory  []*model.Message
}

// act runs the §4.2.2 act phase: routes to the single- or multi-tool path
// based on how many tool calls the think step produced, executes them,
// applies capability-specific behavior (form input, terminable/terminate,
// error report), and updates agent memory.
func (a *Agent) act(ctx context.Context, in Input, stepN int, ta ThinkAct, agentMemory []*model.Message, loopWindow *[]string) (actOutcome, *corekind.CoreError) {
	if _, interrupted := a.Interrupts.IsInterrupted(in.RootPlanID); interrupted {
		return actOutcome{}, corekind.New(corekind.Interrupted, fmt.Errorf("interrupted before act"))
	}

	switch len(ta.Tools) {
	case 0:
		nudge := &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "No tool was called; call a tool to make progress."}}}
		return actOutcome{state: StateInProgress, agentMemory: append(agentMemory, nudge)}, nil
	case 1:
		return a.actSingle(ctx, in, ta.Tools[0], agentMemory, loopWindow)
	default:
		return a.actMulti(ctx, in, ta.Tools, agentMemory)
	}
}

func (a *Agent) actSingle(ctx context.Context, in Input, call ActToolParam, agentMemory []*model.Message, loopWindow *[]string) (actOutcome, *corekind.CoreError) {
	results, err := a.Dispatcher.Dispatch(ctx, []model.ToolCall{{Name: call.Name, Payload: call.Payload, ID: call.ToolCallID}})
	if err != nil {
		return actOutcome{}, corekind.New(corekind.ToolExec, err)
	}
	result := results[0]

	assistantTurn := &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.ToolUsePart{ID: call.ToolCallID, Name: string(call.Name), Input: call.Payload}}}
	agentMemory = append(agentMemory, assistantTurn)

	content := result.Content
	if result.Error == nil {
		content = tools.UnwrapResult(content)
	}
	resultTurn := &model.Message{Role: model.RoleUser, Parts: tools.ToolResultParts([]tools.Result{{
		Index: result.Index, Name: result.Name, ToolCallID: result.ToolCallID, Content: content, Error: result.Error,
	}})}
	agentMemory = append(agentMemory, resultTurn)

	out := actOutcome{state: StateInProgress, agentMemory: agentMemory}

	spec, _ := a.Registry.Spec(result.Name)
	if spec != nil {
		switch spec.Capability {
		case tools.CapabilityFormInput:
			return a.handleFormInput(ctx, in, call, agentMemory)
		case tools.CapabilityTerminate:
			out.state = StateCompleted
			out.finalText = contentText(content)
		case tools.CapabilityTerminable:
			if canTerminate(content) {
				out.state = StateCompleted
				out.finalText = contentText(content)
			}
		case tools.CapabilityErrorReport, tools.CapabilitySystemErrorReport:
			out.errorMessage = extractErrorMessage(content)
		}
	}

	canon, cerr := tools.CanonicalizeResult(result)
	if cerr == nil {
		a.trackLoopWindow(ctx, in, loopWindow, canon, &out.agentMemory)
	}
	return out, nil
}

// trackLoopWindow implements §4.2.2 step 4: append the raw result to a
// rolling window of the configured repeated-result threshold size; a full
// window of identical entries forces an agent-memory compression and
// clears the window so detection restarts from empty.
func (a *Agent) trackLoopWindow(ctx context.Context, in Input, window *[]string, canon string, agentMemory *[]*model.Message) {
	threshold := a.Config.RepeatedResultThreshold
	if threshold <= 0 {
		threshold = 3
	}
	*window = append(*window, canon)
	if len(*window) > threshold {
		*window = (*window)[len(*window)-threshold:]
	}
	if len(*window) < threshold {
		return
	}
	for _, v := range *window {
		if v != (*window)[0] {
			return
		}
	}
	if a.Memory != nil {
		compressed, err := a.Memory.ForceCompress(ctx, *agentMemory)
		if err == nil {
			*agentMemory = compressed
		}
	}
	*window = nil
}

func (a *Agent) handleFormInput(ctx context.Context, in Input, call ActToolParam, agentMemory []*model.Message) (actOutcome, *corekind.CoreError) {
	if err := a.Forms.Acquire(in.RootPlanID); err != nil {
		return actOutcome{}, corekind.New(corekind.FormTimeout, err)
	}
	defer a.Forms.Release(in.RootPlanID)

	timeout := a.Config.UserInputTimeout
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	state, answer := a.waitForForm(ctx, in.RootPlanID, deadline)
	var synthetic *model.Message
	switch state {
	case FormInputReceived:
		synthetic = &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "form submitted: " + string(answer)}}}
	default:
		synthetic = &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "Input timeout"}}}
	}
	agentMemory = append(agentMemory, synthetic)
	return actOutcome{state: StateInProgress, agentMemory: agentMemory}, nil
}

// actMulti runs the §4.2.2 multi-tool path: rejects FormInput tools
// outright (they can't coexist with the concurrent/happens-before dispatch
// model), fills missing required fields, and submits to the Dispatcher
// which already enforces the non-terminator/terminator happens-before
// ordering and original-index re-sort.
func (a *Agent) actMulti(ctx context.Context, in Input, calls []ActToolParam, agentMemory []*model.Message) (actOutcome, *corekind.CoreError) {
	toolCalls := make([]model.ToolCall, len(calls))
	results := make([]tools.Result, len(calls))
	var dispatchCalls []model.ToolCall
	var dispatchIdx []int
	for i, c := range calls {
		toolCalls[i] = model.ToolCall{Name: c.Name, Payload: c.Payload, ID: c.ToolCallID}
		if spec, ok := a.Registry.Spec(c.Name); ok && spec.Capability == tools.CapabilityFormInput {
			err := fmt.Errorf("tool %q requires user interaction and cannot run in a multi-tool turn", c.Name)
			results[i] = tools.Result{Index: i, Name: c.Name, ToolCallID: c.ToolCallID, Error: toolerrors.FromError(err)}
			continue
		}
		dispatchCalls = append(dispatchCalls, toolCalls[i])
		dispatchIdx = append(dispatchIdx, i)
	}

	if len(dispatchCalls) > 0 {
		dispatched, err := a.Dispatcher.Dispatch(ctx, dispatchCalls)
		if err != nil {
			return actOutcome{}, corekind.New(corekind.ToolExec, err)
		}
		for j, r := range dispatched {
			origIdx := dispatchIdx[j]
			r.Index = origIdx
			results[origIdx] = r
		}
	}

	var toolUseParts []model.Part
	for _, c := range calls {
		toolUseParts = append(toolUseParts, model.ToolUsePart{ID: c.ToolCallID, Name: string(c.Name), Input: c.Payload})
	}
	agentMemory = append(agentMemory, &model.Message{Role: model.RoleAssistant, Parts: toolUseParts})

	for i, r := range results {
		if r.Error == nil {
			results[i].Content = tools.UnwrapResult(r.Content)
		}
	}
	agentMemory = append(agentMemory, &model.Message{Role: model.RoleUser, Parts: tools.ToolResultParts(results)})

	out := actOutcome{state: StateInProgress, agentMemory: agentMemory}
	for _, r := range results {
		spec, ok := a.Registry.Spec(r.Name)
		if !ok || r.Error != nil {
			continue
		}
		switch spec.Capability {
		case tools.CapabilityTerminate:
			out.state = StateCompleted
			out.finalText = contentText(r.Content)
		case tools.CapabilityTerminable:
			if canTerminate(r.Content) {
				out.state = StateCompleted
				out.finalText = contentText(r.Content)
			}
		case tools.CapabilityErrorReport, tools.CapabilitySystemErrorReport:
			out.errorMessage = extractErrorMessage(r.Content)
		}
	}
	return out, nil
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case json.RawMessage:
		var s string
		if json.Unmarshal(v, &s) == nil {
			return s
		}
		return string(v)
	default:
		b, err := json.Marshal(content)
		if err != nil {
			return fmt.Sprintf("%v", content)
		}
		return string(b)
	}
}

func canTerminate(content any) bool {
	b, err := json.Marshal(content)
	if err != nil {
		return false
	}
	var probe struct {
		CanTerminate bool `json:"canTerminate"`
	}
	if json.Unmarshal(b, &probe) != nil {
		return false
	}
	return probe.CanTerminate
}

func extractErrorMessage(content any) string {
	b, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	var probe struct {
		ErrorMessage string `json:"errorMessage"`
	}
	if json.Unmarshal(b, &probe) != nil {
		return ""
	}
	return probe.ErrorMessage
}
