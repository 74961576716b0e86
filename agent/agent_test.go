package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/config"
	"github.com/flowforge-ai/agentcore/directory"
	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/recorder"
	"github.com/flowforge-ai/agentcore/tools"
)

func TestBackoffDoublesUntilCappedAtMax(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	max := 1 * time.Second

	assert.Equal(t, base, backoff(1, base, max))
	assert.Equal(t, 200*time.Millisecond, backoff(2, base, max))
	assert.Equal(t, 400*time.Millisecond, backoff(3, base, max))
	assert.Equal(t, 800*time.Millisecond, backoff(4, base, max))
	assert.Equal(t, max, backoff(5, base, max))
	assert.Equal(t, max, backoff(99, base, max))
}

func TestBackoffClampsNonPositiveAttemptToOne(t *testing.T) {
	t.Parallel()
	base := 100 * time.Millisecond
	max := 1 * time.Second
	assert.Equal(t, base, backoff(0, base, max))
	assert.Equal(t, base, backoff(-5, base, max))
}

// stubClient answers with a fixed sequence of responses, one per Complete
// call; Stream always reports unsupported so think falls back to Complete.
type stubClient struct {
	responses []*model.Response
	errs      []error
	calls     int
}

func (c *stubClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return c.responses[len(c.responses)-1], nil
}

func (c *stubClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func textResponse(text string) *model.Response {
	return &model.Response{Content: []model.Message{{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}}}
}

func toolCallResponse(name, id string, payload json.RawMessage) *model.Response {
	return &model.Response{ToolCalls: []model.ToolCall{{Name: ident.Tool(name), ID: id, Payload: payload}}}
}

func newTestAgent(t *testing.T, client model.Client, registerTerminator bool) (*Agent, *tools.Registry) {
	t.Helper()
	reg := tools.NewRegistry()
	if registerTerminator {
		require.NoError(t, reg.Register(&tools.Spec{
			Name:       "finish",
			Capability: tools.CapabilityTerminate,
			Terminator: true,
			Handler: func(ctx context.Context, payload json.RawMessage) (any, error) {
				return "the final answer", nil
			},
		}))
	}
	dispatcher := tools.NewDispatcher(reg, nil, nil, nil)
	return &Agent{
		ID:         ident.Agent("test-agent"),
		Profile:    directory.AgentProfile{ID: ident.Agent("test-agent")},
		Client:     client,
		Registry:   reg,
		Dispatcher: dispatcher,
		Forms:      NewInMemFormStore(),
		Interrupts: interrupt.NewController(),
		Recorder:   recorder.NewInMemStore(),
		Config: config.Config{
			MaxSteps:       5,
			LLMMaxRetries:  2,
			RetryBaseDelay: time.Millisecond,
			RetryMaxDelay:  time.Millisecond,
		},
	}, reg
}

func TestRunStepCompletesOnTerminatorToolCall(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []*model.Response{
		toolCallResponse("finish", "call-1", json.RawMessage(`{}`)),
	}}
	a, _ := newTestAgent(t, client, true)

	result, err := a.RunStep(context.Background(), Input{RootPlanID: ident.Plan("root"), PlanID: ident.Plan("p1"), StepID: "s1", Requirement: "do the thing"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "the final answer", result.FinalText)
	require.Len(t, result.ThinkActs, 1)
}

func TestRunStepFailsWhenAlreadyInterrupted(t *testing.T) {
	t.Parallel()

	client := &stubClient{responses: []*model.Response{textResponse("should never be reached")}}
	a, _ := newTestAgent(t, client, true)

	rootPlan := ident.Plan("root")
	a.Interrupts.Request(rootPlan, interrupt.Reason{Notes: "user cancelled"})

	result, err := a.RunStep(context.Background(), Input{RootPlanID: rootPlan, PlanID: ident.Plan("p1"), StepID: "s1", Requirement: "anything"})
	require.NoError(t, err)
	assert.Equal(t, StateInterrupted, result.State)
	assert.Equal(t, 0, client.calls)
}

func TestRunStepExhaustsStepBudgetAndProducesFinalSummary(t *testing.T) {
	t.Parallel()

	// Every think call succeeds with a non-terminating tool call, so act
	// always reports StateInProgress; after maxSteps rounds the loop must
	// fall back to finalSummary rather than looping forever.
	client := &stubClient{responses: []*model.Response{
		toolCallResponse("noop", "call-1", json.RawMessage(`{}`)),
		toolCallResponse("noop", "call-2", json.RawMessage(`{}`)),
		textResponse("final summary text"),
	}}
	a, reg := newTestAgent(t, client, false)
	require.NoError(t, reg.Register(&tools.Spec{
		Name: "noop",
		Handler: func(ctx context.Context, payload json.RawMessage) (any, error) {
			return "did nothing", nil
		},
	}))
	a.Config.MaxSteps = 2

	result, err := a.RunStep(context.Background(), Input{RootPlanID: ident.Plan("root"), PlanID: ident.Plan("p1"), StepID: "s1", Requirement: "anything"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, "final summary text", result.FinalText)
	require.Len(t, result.ThinkActs, 2)
}

func TestFormStoreAcquireRejectsSecondOutstandingForm(t *testing.T) {
	t.Parallel()

	store := NewInMemFormStore()
	plan := ident.Plan("root")
	require.NoError(t, store.Acquire(plan))
	assert.Error(t, store.Acquire(plan))
	store.Release(plan)
	assert.NoError(t, store.Acquire(plan))
}

func TestFormStoreSubmitAndPoll(t *testing.T) {
	t.Parallel()

	store := NewInMemFormStore()
	plan := ident.Plan("root")
	require.NoError(t, store.Acquire(plan))

	require.NoError(t, store.Submit(plan, json.RawMessage(`{"answer":42}`)))
	state, answer, err := store.Poll(plan)
	require.NoError(t, err)
	assert.Equal(t, FormInputReceived, state)
	assert.JSONEq(t, `{"answer":42}`, string(answer))
}

func TestFormStoreSubmitWithoutOutstandingFormErrors(t *testing.T) {
	t.Parallel()

	store := NewInMemFormStore()
	err := store.Submit(ident.Plan("nobody-waiting"), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestFormStoreSubmitTwiceFails(t *testing.T) {
	t.Parallel()

	store := NewInMemFormStore()
	plan := ident.Plan("root")
	require.NoError(t, store.Acquire(plan))
	require.NoError(t, store.Submit(plan, json.RawMessage(`{}`)))
	assert.Error(t, store.Submit(plan, json.RawMessage(`{}`)))
}

func TestWaitForFormReturnsImmediatelyOnceSubmitted(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	a, _ := newTestAgent(t, client, false)
	a.Config.FormPollInterval = time.Millisecond

	plan := ident.Plan("root")
	require.NoError(t, a.Forms.Acquire(plan))
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = a.Forms.Submit(plan, json.RawMessage(`"ok"`))
	}()

	state, answer := a.waitForForm(context.Background(), plan, time.Time{})
	assert.Equal(t, FormInputReceived, state)
	assert.Equal(t, json.RawMessage(`"ok"`), answer)
}

func TestWaitForFormTimesOutAtDeadline(t *testing.T) {
	t.Parallel()

	client := &stubClient{}
	a, _ := newTestAgent(t, client, false)
	a.Config.FormPollInterval = time.Millisecond

	plan := ident.Plan("root")
	require.NoError(t, a.Forms.Acquire(plan))

	state, _ := a.waitForForm(context.Background(), plan, time.Now().Add(5*time.Millisecond))
	assert.Equal(t, FormInputTimeout, state)
}

func TestIsRetryableLLMErrorMatchesKnownMarkers(t *testing.T) {
	t.Parallel()

	assert.True(t, isRetryableLLMError(errTimeout("connection timed out")))
	assert.True(t, isRetryableLLMError(errTimeout("rate limit exceeded")))
	assert.False(t, isRetryableLLMError(errTimeout("invalid api key")))
	assert.False(t, isRetryableLLMError(nil))
}

type errTimeout string

func (e errTimeout) Error() string { return string(e) }
