package memory

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/model"
)

type fakeClient struct {
	summary string
	calls   int
}

func (f *fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	f.calls++
	return &model.Response{
		Content: []model.Message{{
			Role:  model.RoleAssistant,
			Parts: []model.Part{model.TextPart{Text: f.summary}},
		}},
	}, nil
}

func (f *fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func userMsg(text string) *model.Message {
	return &model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
}

func assistantMsg(text string) *model.Message {
	return &model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}
}

func toolResultMsg(id, content string) *model.Message {
	return &model.Message{Role: model.RoleUser, Parts: []model.Part{model.ToolResultPart{ToolUseID: id, Content: content}}}
}

func buildRounds(n int) []*model.Message {
	var msgs []*model.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, userMsg("question"), assistantMsg("answer"))
	}
	return msgs
}

func TestGroupRoundsSplitsOnUserMessagesExcludingToolResultOnly(t *testing.T) {
	t.Parallel()

	msgs := []*model.Message{
		userMsg("first"),
		assistantMsg("calling tool"),
		toolResultMsg("1", "result"),
		assistantMsg("final answer"),
		userMsg("second"),
		assistantMsg("done"),
	}
	rounds := GroupRounds(msgs)
	require.Len(t, rounds, 3)
	assert.Len(t, rounds[0].Messages, 3)
	assert.Len(t, rounds[1].Messages, 1)
	assert.Len(t, rounds[2].Messages, 2)
}

func TestGroupRoundsEmptyInput(t *testing.T) {
	t.Parallel()
	assert.Nil(t, GroupRounds(nil))
}

func TestCompressNoopWhenClientNil(t *testing.T) {
	t.Parallel()

	c := NewCompressor(DefaultConfig(), nil)
	msgs := buildRounds(100)
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

func TestCompressNoopBelowRoundThreshold(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "summary"}
	cfg := DefaultConfig()
	cfg.SizeThresholdChars = 0
	c := NewCompressor(cfg, client)

	msgs := buildRounds(5)
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 0, client.calls)
}

func TestCompressTriggersOnRoundCountAndPreservesSystemPrefix(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "the summary"}
	cfg := Config{
		MaxMemory:               3,
		RetentionRatio:          0.40,
		SummaryMinChars:         10,
		SummaryMaxChars:         4000,
		RepeatedResultThreshold: 0,
		ModelClass:              model.ClassSmall,
	}
	c := NewCompressor(cfg, client)

	sysMsg := &model.Message{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "system prompt"}}}
	msgs := append([]*model.Message{sysMsg}, buildRounds(10)...)

	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	require.True(t, len(out) >= 3)
	assert.Equal(t, model.RoleSystem, out[0].Role)
	assert.Equal(t, sysMsg, out[0])

	summaryMsg := out[1]
	assert.Equal(t, model.RoleUser, summaryMsg.Role)
	tp, ok := summaryMsg.Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Equal(t, "the summary", tp.Text)

	ackMsg := out[2]
	assert.Equal(t, model.RoleAssistant, ackMsg.Role)
	ackText, ok := ackMsg.Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Equal(t, "Got it. Thanks for the additional context!", ackText.Text)

	kept := out[3:]
	assert.True(t, len(kept) < len(msgs)-1)
}

func TestCompressTriggersOnSizeThresholdEvenUnderRoundCount(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "summary"}
	cfg := DefaultConfig()
	cfg.MaxMemory = 1000
	cfg.SizeThresholdChars = 1
	c := NewCompressor(cfg, client)

	msgs := buildRounds(3)
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.NotEqual(t, msgs, out)
}

func TestCompressForcedByRepeatedToolResults(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "summary"}
	cfg := DefaultConfig()
	cfg.MaxMemory = 1000
	cfg.SizeThresholdChars = 0
	cfg.RepeatedResultThreshold = 3
	c := NewCompressor(cfg, client)

	var msgs []*model.Message
	for i := 0; i < 3; i++ {
		msgs = append(msgs, userMsg("retry"), assistantMsg("calling tool"), toolResultMsg("1", "same failure"))
	}
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.NotEqual(t, msgs, out)
}

func TestCompressNotForcedWhenRepeatedResultsDiffer(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "summary"}
	cfg := DefaultConfig()
	cfg.MaxMemory = 1000
	cfg.SizeThresholdChars = 0
	cfg.RepeatedResultThreshold = 3
	c := NewCompressor(cfg, client)

	msgs := []*model.Message{
		userMsg("a"), assistantMsg("calling"), toolResultMsg("1", "result A"),
		userMsg("b"), assistantMsg("calling"), toolResultMsg("2", "result B"),
		userMsg("c"), assistantMsg("calling"), toolResultMsg("3", "result C"),
	}
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 0, client.calls)
	assert.Equal(t, msgs, out)
}

func TestForceCompressAlwaysSummarizes(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "forced summary"}
	c := NewCompressor(DefaultConfig(), client)

	msgs := buildRounds(2)
	out, err := c.ForceCompress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.NotEqual(t, msgs, out)
}

func TestSummaryTruncatedToSummaryMaxChars(t *testing.T) {
	t.Parallel()

	longSummary := strings.Repeat("x", 5000)
	client := &fakeClient{summary: longSummary}
	cfg := DefaultConfig()
	cfg.SummaryMaxChars = 100
	c := NewCompressor(cfg, client)

	msgs := buildRounds(2)
	out, err := c.ForceCompress(context.Background(), msgs)
	require.NoError(t, err)

	require.True(t, len(out) >= 2)
	summaryMsg := out[0]
	tp, ok := summaryMsg.Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Len(t, tp.Text, 100)

	ackMsg := out[1]
	assert.Equal(t, model.RoleAssistant, ackMsg.Role)
}

func TestSerializedSizeMatchesJSONMarshalLength(t *testing.T) {
	t.Parallel()

	msgs := buildRounds(1)
	size := SerializedSize(msgs)
	assert.Greater(t, size, 0)

	b, err := json.Marshal(msgs)
	require.NoError(t, err)
	assert.Equal(t, len(b), size)
}

func TestCompressReturnsUnchangedOnEmptyMessages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "x"}
	c := NewCompressor(DefaultConfig(), client)
	out, err := c.Compress(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCompressReturnsUnchangedWhenAllMessagesAreSystem(t *testing.T) {
	t.Parallel()

	client := &fakeClient{summary: "x"}
	c := NewCompressor(DefaultConfig(), client)
	msgs := []*model.Message{
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "a"}}},
		{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: "b"}}},
	}
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
	assert.Equal(t, 0, client.calls)
}
