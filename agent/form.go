package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge-ai/agentcore/ident"
)

// FormState is the lifecycle of a single form-input rendezvous.
type FormState string

const (
	FormPending        FormState = "PENDING"
	FormInputReceived  FormState = "INPUT_RECEIVED"
	FormInputTimeout   FormState = "INPUT_TIMEOUT"
)

// formSlot is the exclusive rendezvous point for one root plan's pending
// form. Only one may exist per root plan id at a time.
type formSlot struct {
	mu     sync.Mutex
	state  FormState
	answer json.RawMessage
}

func (s *formSlot) snapshot() (FormState, json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.answer
}

// FormStore arbitrates form-input slots keyed by root plan id: only one
// form may be outstanding per root plan at a time, and an external caller
// (the surface presenting the form to the user) submits the answer through
// Submit. Grounded on the teacher's run/confirmation.go human-in-the-loop
// await handshake, generalized from Temporal's update-with-start signal
// delivery to a plain in-process map since the execution core has no
// durable checkpointing.
type FormStore interface {
	// Acquire takes the exclusive slot for rootPlanID. It returns an error
	// immediately if another form is already outstanding for that plan —
	// callers waiting on contention retry with their own backoff rather
	// than blocking inside Acquire.
	Acquire(rootPlanID ident.Plan) error
	// Release frees the slot, e.g. once the rendezvous resolves or times
	// out.
	Release(rootPlanID ident.Plan)
	// Submit fulfills a pending form with the caller-supplied answer.
	// Returns an error if no form is outstanding for rootPlanID.
	Submit(rootPlanID ident.Plan, answer json.RawMessage) error
	// Poll returns the current state and, if received, the answer.
	Poll(rootPlanID ident.Plan) (FormState, json.RawMessage, error)
}

// InMemFormStore is a FormStore backed by a mutex-guarded map, sufficient
// for the single-process deployment the execution core targets.
type InMemFormStore struct {
	mu    sync.Mutex
	slots map[ident.Plan]*formSlot
}

// NewInMemFormStore builds an empty InMemFormStore.
func NewInMemFormStore() *InMemFormStore {
	return &InMemFormStore{slots: map[ident.Plan]*formSlot{}}
}

func (s *InMemFormStore) Acquire(rootPlanID ident.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[rootPlanID]; exists {
		return fmt.Errorf("agent: a form is already outstanding for plan %q", rootPlanID)
	}
	s.slots[rootPlanID] = &formSlot{state: FormPending}
	return nil
}

func (s *InMemFormStore) Release(rootPlanID ident.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, rootPlanID)
}

func (s *InMemFormStore) Submit(rootPlanID ident.Plan, answer json.RawMessage) error {
	s.mu.Lock()
	slot := s.slots[rootPlanID]
	s.mu.Unlock()
	if slot == nil {
		return fmt.Errorf("agent: no form outstanding for plan %q", rootPlanID)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state != FormPending {
		return fmt.Errorf("agent: form for plan %q already resolved", rootPlanID)
	}
	slot.state = FormInputReceived
	slot.answer = answer
	return nil
}

func (s *InMemFormStore) Poll(rootPlanID ident.Plan) (FormState, json.RawMessage, error) {
	s.mu.Lock()
	slot := s.slots[rootPlanID]
	s.mu.Unlock()
	if slot == nil {
		return "", nil, fmt.Errorf("agent: no form outstanding for plan %q", rootPlanID)
	}
	state, answer := slot.snapshot()
	return state, answer, nil
}

// timeoutSlot marks a pending slot as timed out so a subsequent Poll
// observes FormInputTimeout instead of leaving it perpetually pending.
func (s *InMemFormStore) timeoutSlot(rootPlanID ident.Plan) {
	s.mu.Lock()
	slot := s.slots[rootPlanID]
	s.mu.Unlock()
	if slot == nil {
		return
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state == FormPending {
		slot.state = FormInputTimeout
	}
}

// waitForForm implements the §4.2.4 rendezvous: poll state on pollInterval,
// independently recheck interruption on interruptInterval (treated as
// timeout), until the slot resolves or the deadline elapses.
func (a *Agent) waitForForm(ctx context.Context, rootPlanID ident.Plan, deadline time.Time) (FormState, json.RawMessage) {
	pollInterval := a.Config.FormPollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	interruptInterval := a.Config.InterruptionCheckInterval
	if interruptInterval <= 0 {
		interruptInterval = 2 * time.Second
	}

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	interruptTicker := time.NewTicker(interruptInterval)
	defer interruptTicker.Stop()

	for {
		if state, answer, err := a.Forms.Poll(rootPlanID); err == nil && state != FormPending {
			return state, answer
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			if store, ok := a.Forms.(*InMemFormStore); ok {
				store.timeoutSlot(rootPlanID)
			}
			return FormInputTimeout, nil
		}
		select {
		case <-ctx.Done():
			return FormInputTimeout, nil
		case <-interruptTicker.C:
			if _, interrupted := a.Interrupts.IsInterrupted(rootPlanID); interrupted {
				return FormInputTimeout, nil
			}
		case <-pollTicker.C:
		}
	}
}
