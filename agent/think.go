package agent

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/flowforge-ai/agentcore/corekind"
	"github.com/flowforge-ai/agentcore/model"
)

// thinkOutcome is the internal result of one think attempt, before the
// retry policy decides whether to try again.
type thinkOutcome struct {
	text      string
	toolCalls []model.ToolCall
	usage     model.TokenUsage
}

// think runs the §4.2.1 think step: build the prompt, issue a streaming
// model call with the tool catalog, merge the stream into a final turn,
// and apply the retry policy (max attempts, exponential backoff, early
// termination counting) around the whole attempt loop.
func (a *Agent) think(ctx context.Context, in Input, agentMemory []*model.Message, stepN int, earlyTerminations *int) (ThinkAct, thinkOutcome, *corekind.CoreError) {
	if _, interrupted := a.Interrupts.IsInterrupted(in.RootPlanID); interrupted {
		return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.Interrupted, fmt.Errorf("interrupted before think"))
	}

	envSnapshot := a.Registry.EnvironmentSnapshot(ctx)
	messages := a.buildPrompt(in, agentMemory, envSnapshot, stepN)

	maxRetries := a.Config.LLMMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	base := a.Config.RetryBaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := a.Config.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 60 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			if *earlyTerminations > 0 {
				messages = appendMustCallToolDirective(messages)
			}
			select {
			case <-time.After(backoff(attempt-1, base, maxDelay)):
			case <-ctx.Done():
				return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.Interrupted, ctx.Err())
			}
		}

		outcome, err := a.issueThink(ctx, messages)
		if err != nil {
			lastErr = err
			if !isRetryableLLMError(err) {
				return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.LLMFatal, err)
			}
			continue
		}

		if len(outcome.toolCalls) == 0 && strings.TrimSpace(outcome.text) != "" {
			*earlyTerminations++
			if *earlyTerminations >= a.earlyTerminationThreshold() {
				return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.LLMToolless, fmt.Errorf("LLM produced %d tool-free responses", *earlyTerminations))
			}
			continue
		}

		*earlyTerminations = 0
		act := a.buildThinkAct(in, messages, outcome)
		return act, outcome, nil
	}

	if lastErr != nil {
		return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.LLMTransient, fmt.Errorf("exhausted %d think attempts: %w", maxRetries, lastErr))
	}
	return ThinkAct{}, thinkOutcome{}, corekind.New(corekind.LLMToolless, fmt.Errorf("exhausted %d think attempts with no tool calls", maxRetries))
}

func (a *Agent) earlyTerminationThreshold() int {
	if a.Config.EarlyTerminationThreshold > 0 {
		return a.Config.EarlyTerminationThreshold
	}
	return 3
}

func (a *Agent) buildPrompt(in Input, agentMemory []*model.Message, envSnapshot string, stepN int) []*model.Message {
	var messages []*model.Message

	preamble := fmt.Sprintf(
		"You are agent %q executing step %d of plan %q. Today is %s. parallel_tool_calls=%t debug_detail=%d",
		a.ID, stepN, in.PlanID, time.Now().UTC().Format("2006-01-02"),
		a.Config.ParallelToolCalls, a.Config.DebugDetail,
	)
	messages = append(messages, &model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: preamble}}})

	if a.Config.EnableConversationMemory {
		messages = append(messages, in.ConversationMemory...)
	}
	messages = append(messages, agentMemory...)

	envText := in.Requirement
	if envSnapshot != "" {
		envText = envText + "\n\ncurrent environment:\n" + envSnapshot
	}
	messages = append(messages, &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: envText}}})

	return messages
}

func appendMustCallToolDirective(messages []*model.Message) []*model.Message {
	if len(messages) == 0 {
		return messages
	}
	last := messages[len(messages)-1]
	last.Parts = append(last.Parts, model.TextPart{Text: "\n\nYou must call a tool to make progress; do not respond with text only."})
	return messages
}

func (a *Agent) issueThink(ctx context.Context, messages []*model.Message) (thinkOutcome, error) {
	req := &model.Request{
		ModelClass: model.Class(a.Profile.ModelClass),
		Messages:   messages,
		Tools:      a.Registry.Definitions(),
		ToolChoice: &model.ToolChoice{Mode: model.ToolChoiceAuto},
		Stream:     true,
	}

	stream, err := a.Client.Stream(ctx, req)
	if err == nil {
		return drainStream(stream)
	}
	resp, cerr := a.Client.Complete(ctx, req)
	if cerr != nil {
		return thinkOutcome{}, cerr
	}
	return outcomeFromResponse(resp), nil
}

func drainStream(s model.Streamer) (thinkOutcome, error) {
	defer s.Close()
	var sb strings.Builder
	var calls []model.ToolCall
	var usage model.TokenUsage
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return thinkOutcome{}, err
		}
		switch chunk.Type {
		case model.ChunkText:
			if chunk.Message != nil {
				sb.WriteString(textOf(chunk.Message))
			} else {
				sb.WriteString(chunk.Thinking)
			}
		case model.ChunkToolCall:
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			}
		case model.ChunkUsage:
			if chunk.UsageDelta != nil {
				usage = *chunk.UsageDelta
			}
		case model.ChunkStop:
			return thinkOutcome{text: sb.String(), toolCalls: calls, usage: usage}, nil
		}
	}
	return thinkOutcome{text: sb.String(), toolCalls: calls, usage: usage}, nil
}

func outcomeFromResponse(resp *model.Response) thinkOutcome {
	var sb strings.Builder
	for i := range resp.Content {
		sb.WriteString(textOf(&resp.Content[i]))
	}
	return thinkOutcome{text: sb.String(), toolCalls: resp.ToolCalls, usage: resp.Usage}
}

// textOf concatenates a message's TextPart content; non-text parts are
// ignored since the think step only reads the assistant's prose.
func textOf(m *model.Message) string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(model.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func (a *Agent) buildThinkAct(in Input, input []*model.Message, outcome thinkOutcome) ThinkAct {
	thinkActID := fmt.Sprintf("%s-think-%d", in.StepID, time.Now().UnixNano())
	toolParams := make([]ActToolParam, 0, len(outcome.toolCalls))
	for i, tc := range outcome.toolCalls {
		id := tc.ID
		if id == "" && len(outcome.toolCalls) > 1 {
			id = in.StepID + "-call-" + strconv.Itoa(i)
		}
		toolParams = append(toolParams, ActToolParam{ToolCallID: id, Name: tc.Name, Payload: tc.Payload})
	}
	return ThinkAct{
		StepID:     in.StepID,
		ThinkActID: thinkActID,
		Input:      input,
		Text:       outcome.text,
		Tools:      toolParams,
	}
}

// isRetryableLLMError matches the retryable-failure markers the spec names:
// DNS resolution, connection, and timeout errors. It is a coarse
// string-based classifier because provider adapters wrap transport errors
// in provider-specific types the core doesn't import.
func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	markers := []string{"timeout", "timed out", "deadline exceeded", "connection refused", "connection reset", "no such host", "dns", "rate limit", "temporarily unavailable", "eof"}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
