package plan

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/agent"
	"github.com/flowforge-ai/agentcore/config"
	"github.com/flowforge-ai/agentcore/directory"
	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
	"github.com/flowforge-ai/agentcore/pool"
	"github.com/flowforge-ai/agentcore/recorder"
	"github.com/flowforge-ai/agentcore/tools"
)

const finishToolName ident.Tool = "finish_plan"

// fakeClient answers every think call with a single call to finishToolName,
// carrying the step's requirement text back as the final summary so tests
// can assert on it.
type fakeClient struct{}

func (fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	var requirement string
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				requirement = tp.Text
			}
		}
	}
	payload, _ := json.Marshal(map[string]string{"summary": requirement})
	return &model.Response{
		ToolCalls: []model.ToolCall{{ID: "call-1", Name: finishToolName, Payload: payload}},
	}, nil
}

func (fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, assert.AnError
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Spec{
		Name:       finishToolName,
		Terminator: true,
		Capability: tools.CapabilityTerminate,
		Handler: func(ctx context.Context, payload json.RawMessage) (any, error) {
			var args struct {
				Summary string `json:"summary"`
			}
			if err := json.Unmarshal(payload, &args); err != nil {
				return nil, err
			}
			return args.Summary, nil
		},
	}))
	dispatcher := tools.NewDispatcher(reg, nil, nil, nil)

	dir := directory.NewStatic(directory.AgentProfile{
		ID:         "DEFAULT_AGENT",
		ModelClass: string(model.ClassSmall),
	})

	interrupts := interrupt.NewController()
	rec := recorder.NewInMemStore()

	newAgent := func(ctx context.Context, profile directory.AgentProfile, depth pool.Level) (*agent.Agent, error) {
		return &agent.Agent{
			ID:         ident.Agent(profile.ID),
			Profile:    profile,
			Client:     fakeClient{},
			Registry:   reg,
			Dispatcher: dispatcher,
			Interrupts: interrupts,
			Recorder:   rec,
			Config:     config.Default(),
		}, nil
	}

	levels, err := pool.NewLevels([]int{2, 1})
	require.NoError(t, err)

	return &Executor{
		Directory:  dir,
		NewAgent:   newAgent,
		Pools:      levels,
		Interrupts: interrupts,
		Recorder:   rec,
	}
}

func TestExecuteRunsStepsInOrderAndCompletes(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t)
	result, err := exec.Execute(context.Background(), Input{
		RootPlanID:   "root-1",
		PlanID:       "plan-1",
		Requirements: []string{"first step", "[DEFAULT_AGENT] second step"},
	})

	require.NoError(t, err)
	assert.Equal(t, agent.StateCompleted, result.State)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "DEFAULT_AGENT", result.Steps[0].AgentTag)
	assert.Equal(t, "second step", result.Steps[1].ResultText)
	assert.Equal(t, "second step", result.FinalText)
}

func TestExecuteFailsWhenAgentTagUnresolved(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t)
	result, err := exec.Execute(context.Background(), Input{
		RootPlanID:   "root-2",
		PlanID:       "plan-2",
		Requirements: []string{"[NO_SUCH_AGENT] do something"},
	})

	require.NoError(t, err)
	assert.Equal(t, agent.StateFailed, result.State)
	require.Len(t, result.Steps, 1)
	require.NotNil(t, result.Err)
	assert.Equal(t, "NO_SUCH_AGENT", result.Steps[0].AgentTag)
}

func TestExecuteStopsOnPendingInterruption(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t)
	exec.Interrupts.Request("root-3", interrupt.Reason{RequestedBy: "user", Notes: "stop"})

	result, err := exec.Execute(context.Background(), Input{
		RootPlanID:   "root-3",
		PlanID:       "plan-3",
		Requirements: []string{"first step", "second step"},
	})

	require.NoError(t, err)
	assert.Equal(t, agent.StateInterrupted, result.State)
	require.Len(t, result.Steps, 1)
}

func TestParseTagDefaultsWhenAbsent(t *testing.T) {
	t.Parallel()

	tag, text := parseTag("do the thing")
	assert.Equal(t, defaultAgentTag, tag)
	assert.Equal(t, "do the thing", text)

	tag, text = parseTag("[research] look into it")
	assert.Equal(t, "RESEARCH", tag)
	assert.Equal(t, "look into it", text)
}
