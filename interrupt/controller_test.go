package interrupt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/ident"
)

func TestRequestThenIsInterrupted(t *testing.T) {
	t.Parallel()

	c := NewController()
	plan := ident.Plan("root-1")

	_, ok := c.IsInterrupted(plan)
	require.False(t, ok)

	c.Request(plan, Reason{RequestedBy: "user-1", Notes: "cancel"})
	reason, ok := c.IsInterrupted(plan)
	require.True(t, ok)
	assert.Equal(t, "user-1", reason.RequestedBy)
	assert.Equal(t, "cancel", reason.Notes)
}

func TestClearRemovesPendingRequest(t *testing.T) {
	t.Parallel()

	c := NewController()
	plan := ident.Plan("root-2")
	c.Request(plan, Reason{RequestedBy: "user-2"})
	c.Clear(plan)

	_, ok := c.IsInterrupted(plan)
	assert.False(t, ok)
}

func TestInterruptionIsScopedPerRootPlanID(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.Request(ident.Plan("a"), Reason{RequestedBy: "u"})

	_, ok := c.IsInterrupted(ident.Plan("b"))
	assert.False(t, ok)
}

func TestConcurrentRequestAndIsInterrupted(t *testing.T) {
	t.Parallel()

	c := NewController()
	plan := ident.Plan("concurrent")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Request(plan, Reason{RequestedBy: "racer"})
			c.IsInterrupted(plan)
		}()
	}
	wg.Wait()

	_, ok := c.IsInterrupted(plan)
	assert.True(t, ok)
}
