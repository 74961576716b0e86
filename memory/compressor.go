// Package memory implements the Conversation Memory Compressor: it groups
// transcript messages into rounds, decides when to compress based on round
// count, retention ratio, and repeated tool results, and produces an
// LLM-generated <state_snapshot> summary replacing the compressed rounds.
// Grounded on the teacher's runtime history policy (agent/runtime/history.go
// Compress/KeepRecentTurns/parseTurns), generalized from the teacher's
// fixed "free-text summary" shape to the spec's structured XML snapshot,
// 40% retention ratio, and forced-compression-on-repeated-results rule.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/tools"
)

// Round is a logical conversation round, closed by a tool-response message
// or by the next user message. A round may take one of three shapes:
// user -> assistant -> tool-response, user -> assistant (no tool calls), or
// assistant -> tool-response (an assistant turn following a closed round).
type Round struct {
	Messages []*model.Message
}

// Config parameterizes compression behavior.
type Config struct {
	// MaxMemory is the round count above which compression triggers.
	MaxMemory int
	// RetentionRatio is the fraction of rounds kept verbatim when
	// compression triggers (e.g. 0.40 keeps the most recent 40%).
	RetentionRatio float64
	// SummaryMinChars/SummaryMaxChars bound the target summary length;
	// the compressor truncates an over-long summary and pads instructions
	// toward the band but never blocks on exact char counts.
	SummaryMinChars int
	SummaryMaxChars int
	// RepeatedResultThreshold is the number of consecutive identical tool
	// results that force compression even if MaxMemory hasn't been hit.
	RepeatedResultThreshold int
	// SizeThresholdChars additionally triggers compression when the
	// serialized size of the messages under consideration exceeds this
	// many characters, independent of round count. Zero disables the
	// size-based trigger.
	SizeThresholdChars int
	// ModelClass selects which model family performs summarization.
	ModelClass model.Class
}

// DefaultConfig matches the execution core's reproduced numeric defaults.
func DefaultConfig() Config {
	return Config{
		MaxMemory:               50,
		RetentionRatio:          0.40,
		SummaryMinChars:         3000,
		SummaryMaxChars:         4000,
		RepeatedResultThreshold: 3,
		SizeThresholdChars:      30000,
		ModelClass:              model.ClassSmall,
	}
}

// SerializedSize returns the combined JSON-serialized character count of
// msgs, matching what the threshold check compares against: this is what
// is actually sent to the model, not an in-memory struct size estimate.
func SerializedSize(msgs []*model.Message) int {
	b, err := json.Marshal(msgs)
	if err != nil {
		return 0
	}
	return len(b)
}

// Compressor applies the Conversation Memory Compressor policy to a
// transcript before each planner invocation.
type Compressor struct {
	cfg    Config
	client model.Client
}

// NewCompressor builds a Compressor using client to perform summarization.
func NewCompressor(cfg Config, client model.Client) *Compressor {
	return &Compressor{cfg: cfg, client: client}
}

// Compress transforms msgs, summarizing older rounds into a single
// <state_snapshot> message when compression triggers. It always preserves
// leading system messages and never splits a round. It returns msgs
// unchanged (same slice) when none of the round-count, size, and
// repeated-result triggers fires.
func (c *Compressor) Compress(ctx context.Context, msgs []*model.Message) ([]*model.Message, error) {
	return c.compress(ctx, msgs, false)
}

// ForceCompress bypasses the round-count/size/repetition trigger check and
// always summarizes, used by the ReAct loop's loop-detection window (a
// full window of identical tool results forces a compression regardless of
// whether the ordinary triggers have fired yet) and by explicit
// Executor-driven compression requests.
func (c *Compressor) ForceCompress(ctx context.Context, msgs []*model.Message) ([]*model.Message, error) {
	return c.compress(ctx, msgs, true)
}

func (c *Compressor) compress(ctx context.Context, msgs []*model.Message, force bool) ([]*model.Message, error) {
	if c.client == nil || len(msgs) == 0 {
		return msgs, nil
	}

	systemEnd := 0
	for i, m := range msgs {
		if m.Role != model.RoleSystem {
			break
		}
		systemEnd = i + 1
	}
	if systemEnd >= len(msgs) {
		return msgs, nil
	}

	rounds := GroupRounds(msgs[systemEnd:])
	forced := force || c.forcedByRepetition(rounds)
	oversized := c.cfg.SizeThresholdChars > 0 && SerializedSize(msgs) > c.cfg.SizeThresholdChars
	if !forced && !oversized && len(rounds) <= c.cfg.MaxMemory {
		return msgs, nil
	}
	if len(rounds) == 0 {
		return msgs, nil
	}

	keep := int(float64(len(rounds))*c.cfg.RetentionRatio + 0.5)
	if keep < 1 {
		keep = 1
	}
	if keep >= len(rounds) {
		keep = len(rounds) - 1
	}
	if keep < 0 {
		keep = 0
	}
	splitIdx := len(rounds) - keep
	if splitIdx <= 0 {
		return msgs, nil
	}

	toCompress, toKeep := rounds[:splitIdx], rounds[splitIdx:]

	summary, err := c.summarize(ctx, toCompress)
	if err != nil {
		return msgs, fmt.Errorf("memory: summarize: %w", err)
	}

	// The snapshot is injected as a user/assistant pair, not a lone system
	// message, so the transcript keeps alternating user/assistant turns
	// the rest of the pipeline (and the next LLM call) depends on.
	summaryMsg := &model.Message{
		Role:  model.RoleUser,
		Parts: []model.Part{model.TextPart{Text: summary}},
		Meta:  map[string]any{"agentcore_memory": "summary"},
	}
	ackMsg := &model.Message{
		Role:  model.RoleAssistant,
		Parts: []model.Part{model.TextPart{Text: "Got it. Thanks for the additional context!"}},
		Meta:  map[string]any{"agentcore_memory": "summary_ack"},
	}

	var keptMsgs []*model.Message
	for _, r := range toKeep {
		keptMsgs = append(keptMsgs, r.Messages...)
	}

	result := make([]*model.Message, 0, systemEnd+2+len(keptMsgs))
	result = append(result, msgs[:systemEnd]...)
	result = append(result, summaryMsg, ackMsg)
	result = append(result, keptMsgs...)
	return result, nil
}

// forcedByRepetition reports whether the most recent RepeatedResultThreshold
// tool results (across the tail of rounds) canonicalize identically,
// forcing compression regardless of round count so a stuck retry loop
// doesn't grow the transcript unbounded before the next natural trigger.
func (c *Compressor) forcedByRepetition(rounds []Round) bool {
	if c.cfg.RepeatedResultThreshold <= 0 {
		return false
	}
	var recent []string
	for i := len(rounds) - 1; i >= 0 && len(recent) < c.cfg.RepeatedResultThreshold; i-- {
		for _, m := range rounds[i].Messages {
			for _, p := range m.Parts {
				if tr, ok := p.(model.ToolResultPart); ok {
					canon, err := canonicalizeToolResultContent(tr)
					if err == nil {
						recent = append(recent, canon)
					}
				}
			}
		}
	}
	if len(recent) < c.cfg.RepeatedResultThreshold {
		return false
	}
	first := recent[0]
	for _, v := range recent[:c.cfg.RepeatedResultThreshold] {
		if v != first {
			return false
		}
	}
	return true
}

func canonicalizeToolResultContent(tr model.ToolResultPart) (string, error) {
	return tools.CanonicalizeResult(tools.Result{Content: tr.Content, Error: nil})
}

// GroupRounds partitions history into rounds. A user message containing
// only ToolResultPart entries closes the current round; any other user
// message starts a new one. A tool call and its results therefore always
// land in the same round.
func GroupRounds(msgs []*model.Message) []Round {
	if len(msgs) == 0 {
		return nil
	}
	var rounds []Round
	var current Round
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if isToolResultOnly(m) {
			current.Messages = append(current.Messages, m)
			rounds = append(rounds, current)
			current = Round{}
			continue
		}
		startsNew := m.Role == model.RoleUser
		if startsNew {
			if len(current.Messages) > 0 {
				rounds = append(rounds, current)
			}
			current = Round{Messages: []*model.Message{m}}
			continue
		}
		current.Messages = append(current.Messages, m)
	}
	if len(current.Messages) > 0 {
		rounds = append(rounds, current)
	}
	return rounds
}

func isToolResultOnly(m *model.Message) bool {
	if m == nil || m.Role != model.RoleUser || len(m.Parts) == 0 {
		return false
	}
	for _, p := range m.Parts {
		if _, ok := p.(model.ToolResultPart); !ok {
			return false
		}
	}
	return true
}

const snapshotPrompt = `You are compressing conversation history for an autonomous agent. Produce a
<state_snapshot> document summarizing the conversation segment below. Be
thorough about user intent, decisions made, and artifacts touched, but
target a total length between %d and %d characters.

Structure your response exactly as:
<state_snapshot>
  <primary_request_and_intent>...</primary_request_and_intent>
  <key_decisions>...</key_decisions>
  <artifacts_and_references>...</artifacts_and_references>
  <pending_work>...</pending_work>
</state_snapshot>

CONVERSATION SEGMENT:
%s`

func (c *Compressor) summarize(ctx context.Context, rounds []Round) (string, error) {
	var sb strings.Builder
	for _, r := range rounds {
		for _, m := range r.Messages {
			sb.WriteString(formatMessage(m))
			sb.WriteByte('\n')
		}
	}

	prompt := fmt.Sprintf(snapshotPrompt, c.cfg.SummaryMinChars, c.cfg.SummaryMaxChars, sb.String())
	req := &model.Request{
		ModelClass: c.cfg.ModelClass,
		Messages: []*model.Message{{
			Role:  model.RoleUser,
			Parts: []model.Part{model.TextPart{Text: prompt}},
		}},
	}
	resp, err := c.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := extractText(resp)
	if text == "" {
		return "", fmt.Errorf("memory: model returned empty summary")
	}
	if len(text) > c.cfg.SummaryMaxChars {
		text = text[:c.cfg.SummaryMaxChars]
	}
	return text, nil
}

func formatMessage(m *model.Message) string {
	var sb bytes.Buffer
	sb.WriteString(string(m.Role))
	sb.WriteString(": ")
	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			sb.WriteString(v.Text)
		case model.ToolUsePart:
			fmt.Fprintf(&sb, "[tool_call %s]", v.Name)
		case model.ToolResultPart:
			sb.WriteString("[tool_result]")
		case model.ThinkingPart:
			// Reasoning content is internal and not summarized.
		}
	}
	return sb.String()
}

func extractText(resp *model.Response) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, msg := range resp.Content {
		for _, p := range msg.Parts {
			if tp, ok := p.(model.TextPart); ok {
				sb.WriteString(tp.Text)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
