// Package interrupt implements cooperative cancellation keyed by root plan
// id. The execution core has no durable checkpointing (spec Non-goals), so
// interruption is a plain in-process flag the ReAct loop and Plan Executor
// poll at well-defined safe points, rather than the teacher's Temporal
// signal-channel plumbing (agent/interrupt/controller.go), which assumes a
// durable workflow host to deliver signals.
package interrupt

import (
	"sync"

	"github.com/flowforge-ai/agentcore/ident"
)

// Reason records why a plan was interrupted, surfaced to callers that
// observe Controller.IsInterrupted returning true.
type Reason struct {
	RequestedBy string
	Notes       string
}

// Controller tracks a pending-interruption flag per root plan id. All
// agents and steps executing under the same root plan id share one flag:
// requesting interruption on a root plan id affects every in-flight step
// of every sub-plan spawned under it.
type Controller struct {
	mu      sync.RWMutex
	pending map[ident.Plan]Reason
}

// NewController builds an empty Controller.
func NewController() *Controller {
	return &Controller{pending: map[ident.Plan]Reason{}}
}

// Request marks rootPlanID as pending interruption. Safe to call
// concurrently with IsInterrupted/Clear from any goroutine executing steps
// under that plan.
func (c *Controller) Request(rootPlanID ident.Plan, reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[rootPlanID] = reason
}

// IsInterrupted reports whether rootPlanID currently has a pending
// interruption request, and the reason if so. Callers check this at safe
// points (before starting a new step, before a long-running tool call,
// before blocking on a form-input rendezvous) and unwind cooperatively —
// the controller never force-cancels a goroutine.
func (c *Controller) IsInterrupted(rootPlanID ident.Plan) (Reason, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.pending[rootPlanID]
	return r, ok
}

// Clear removes a pending interruption request, e.g. once the plan has
// unwound and reported INTERRUPTED back to its caller.
func (c *Controller) Clear(rootPlanID ident.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, rootPlanID)
}
