package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/ident"
)

func echoHandler(ctx context.Context, payload json.RawMessage) (any, error) {
	return string(payload), nil
}

func TestRegisterRejectsInvalidSpecs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Spec{Handler: echoHandler}))
	assert.Error(t, r.Register(&Spec{Name: "search"}))
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler}))
	err := r.Register(&Spec{Name: "search", Handler: echoHandler})
	assert.Error(t, err)
}

func TestRegisterCompilesSchema(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["query"]}`)
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler, InputSchema: schema}))

	err := r.Validate("search", json.RawMessage(`{}`))
	assert.Error(t, err)

	err = r.Validate("search", json.RawMessage(`{"query":"cats"}`))
	assert.NoError(t, err)
}

func TestDefinitionsPreserveRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{Name: "zeta", Handler: echoHandler}))
	require.NoError(t, r.Register(&Spec{Name: "alpha", Handler: echoHandler}))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
}

func TestFindByCapabilityLocatesFirstMatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler}))
	require.NoError(t, r.Register(&Spec{Name: "finish_plan", Handler: echoHandler, Capability: CapabilityTerminate}))

	name, ok := r.FindByCapability(CapabilityTerminate)
	require.True(t, ok)
	assert.Equal(t, ident.Tool("finish_plan"), name)

	_, ok = r.FindByCapability(CapabilityFormInput)
	assert.False(t, ok)
}

func TestEnvironmentSnapshotAggregatesStateFnsAndSkipsStateless(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{
		Name: "browser", Handler: echoHandler,
		StateFn: func(ctx context.Context) (string, error) { return "tab: example.com", nil },
	}))
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler}))
	require.NoError(t, r.Register(&Spec{
		Name: "shell", Handler: echoHandler,
		StateFn: func(ctx context.Context) (string, error) { return "", assertErr },
	}))

	snapshot := r.EnvironmentSnapshot(context.Background())
	assert.Contains(t, snapshot, "browser: tab: example.com")
	assert.Contains(t, snapshot, "shell: <state error:")
	assert.NotContains(t, snapshot, "search:")
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
