package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
)

func TestConversationStoreLoadUnknownReturnsNilNoError(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	msgs, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, msgs)
}

func TestConversationStoreSaveThenLoadRoundTrips(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	msgs := []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}}
	require.NoError(t, s.Save(context.Background(), "c1", msgs))

	got, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msgs[0], got[0])
}

func TestConversationStoreSaveReplacesRatherThanAppends(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	first := []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "first"}}}}
	second := []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "second"}}}}

	require.NoError(t, s.Save(context.Background(), "c1", first))
	require.NoError(t, s.Save(context.Background(), "c1", second))

	got, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second[0], got[0])
}

func TestConversationStoreLoadReturnsDefensiveCopy(t *testing.T) {
	t.Parallel()
	s := NewConversationStore()
	msgs := []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}}
	require.NoError(t, s.Save(context.Background(), "c1", msgs))

	got, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	got[0] = &model.Message{Role: model.RoleAssistant}

	again, err := s.Load(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, again[0].Role)
}

func TestInterruptStoreRequestIsInterruptedClear(t *testing.T) {
	t.Parallel()
	s := NewInterruptStore()
	plan := ident.Plan("root")

	_, interrupted, err := s.IsInterrupted(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, interrupted)

	require.NoError(t, s.Request(context.Background(), plan, interrupt.Reason{Notes: "user cancelled"}))
	reason, interrupted, err := s.IsInterrupted(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, interrupted)
	assert.Equal(t, "user cancelled", reason.Notes)

	require.NoError(t, s.Clear(context.Background(), plan))
	_, interrupted, err = s.IsInterrupted(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, interrupted)
}

func TestInterruptStoreScopesByRootPlanID(t *testing.T) {
	t.Parallel()
	s := NewInterruptStore()
	a, b := ident.Plan("a"), ident.Plan("b")
	require.NoError(t, s.Request(context.Background(), a, interrupt.Reason{Notes: "a reason"}))

	_, interruptedA, _ := s.IsInterrupted(context.Background(), a)
	_, interruptedB, _ := s.IsInterrupted(context.Background(), b)
	assert.True(t, interruptedA)
	assert.False(t, interruptedB)
}
