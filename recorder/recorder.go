// Package recorder defines the append-only event log the Plan Executor and
// ReAct loop write to for run introspection, plus an in-memory reference
// implementation. Grounded on the teacher's runlog package (append-only
// Store interface, opaque cursor pagination) generalized from a durable
// workflow's event stream to a plain in-process plan run's event stream.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flowforge-ai/agentcore/ident"
)

// EventType classifies a recorded event.
type EventType string

const (
	EventPlanStarted    EventType = "plan_started"
	EventStepStarted    EventType = "step_started"
	EventStepCompleted  EventType = "step_completed"
	EventThink          EventType = "think"
	EventAct            EventType = "act"
	EventToolResult     EventType = "tool_result"
	EventMemoryCompress EventType = "memory_compressed"
	EventInterrupted    EventType = "interrupted"
	EventFormRequested  EventType = "form_requested"
	EventFormAnswered   EventType = "form_answered"
	EventPlanCompleted  EventType = "plan_completed"
	EventPlanFailed     EventType = "plan_failed"
)

// Event is a single immutable record appended to a plan's run log.
type Event struct {
	ID        string
	PlanID    ident.Plan
	AgentID   ident.Agent
	Type      EventType
	Payload   json.RawMessage
	Timestamp time.Time
}

// Page is a forward page of events, oldest first.
type Page struct {
	Events     []*Event
	NextCursor string
}

// Store is an append-only event log. Implementations assign Event.ID and
// must preserve append order within a plan.
type Store interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, planID ident.Plan, cursor string, limit int) (Page, error)
}

// InMemStore is a Store backed by a mutex-guarded slice-per-plan map,
// sufficient for the single-process deployment this execution core targets
// (spec Non-goals exclude distributed execution).
type InMemStore struct {
	mu     sync.Mutex
	events map[ident.Plan][]*Event
	seq    uint64
}

// NewInMemStore builds an empty InMemStore.
func NewInMemStore() *InMemStore {
	return &InMemStore{events: map[ident.Plan][]*Event{}}
}

// Append assigns a monotonically increasing ID and appends e to its plan's
// log.
func (s *InMemStore) Append(_ context.Context, e *Event) error {
	if e == nil {
		return fmt.Errorf("recorder: nil event")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.ID = fmt.Sprintf("%020d", s.seq)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.events[e.PlanID] = append(s.events[e.PlanID], e)
	return nil
}

// List returns up to limit events for planID after cursor (exclusive). An
// empty cursor starts from the beginning.
func (s *InMemStore) List(_ context.Context, planID ident.Plan, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		return Page{}, fmt.Errorf("recorder: limit must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.events[planID]
	start := 0
	if cursor != "" {
		for i, e := range all {
			if e.ID == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	if start >= len(all) {
		return Page{}, nil
	}
	page := Page{Events: append([]*Event(nil), all[start:end]...)}
	if end < len(all) {
		page.NextCursor = page.Events[len(page.Events)-1].ID
	}
	return page, nil
}
