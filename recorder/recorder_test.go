package recorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/ident"
)

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	plan := ident.Plan("p1")

	require.NoError(t, s.Append(context.Background(), &Event{PlanID: plan, Type: EventPlanStarted}))
	require.NoError(t, s.Append(context.Background(), &Event{PlanID: plan, Type: EventStepStarted}))

	page, err := s.List(context.Background(), plan, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Less(t, page.Events[0].ID, page.Events[1].ID)
	assert.NotZero(t, page.Events[0].Timestamp)
}

func TestAppendRejectsNilEvent(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	assert.Error(t, s.Append(context.Background(), nil))
}

func TestListPaginatesByCursor(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	plan := ident.Plan("p2")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), &Event{PlanID: plan, Type: EventThink}))
	}

	first, err := s.List(context.Background(), plan, "", 2)
	require.NoError(t, err)
	require.Len(t, first.Events, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := s.List(context.Background(), plan, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	assert.NotEqual(t, first.Events[0].ID, second.Events[0].ID)

	third, err := s.List(context.Background(), plan, second.NextCursor, 2)
	require.NoError(t, err)
	assert.Len(t, third.Events, 1)
	assert.Empty(t, third.NextCursor)
}

func TestListUnknownPlanReturnsEmptyPage(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	page, err := s.List(context.Background(), ident.Plan("missing"), "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
}

func TestListRejectsNonPositiveLimit(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	_, err := s.List(context.Background(), ident.Plan("p"), "", 0)
	assert.Error(t, err)
}

func TestEventsAreScopedPerPlan(t *testing.T) {
	t.Parallel()

	s := NewInMemStore()
	require.NoError(t, s.Append(context.Background(), &Event{PlanID: ident.Plan("a"), Type: EventThink}))
	require.NoError(t, s.Append(context.Background(), &Event{PlanID: ident.Plan("b"), Type: EventAct}))

	page, err := s.List(context.Background(), ident.Plan("a"), "", 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, EventThink, page.Events[0].Type)
}
