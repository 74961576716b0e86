// Package inmem implements storage.ConversationStore and
// storage.InterruptStore with plain mutex-guarded maps, the default backend
// for a single-process deployment of the execution core.
package inmem

import (
	"context"
	"sync"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
)

// ConversationStore is a sync.Mutex-guarded map keyed by conversation id.
type ConversationStore struct {
	mu   sync.Mutex
	docs map[string][]*model.Message
}

// NewConversationStore builds an empty ConversationStore.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{docs: map[string][]*model.Message{}}
}

// Load returns the stored history for conversationID, or nil if unset.
func (s *ConversationStore) Load(_ context.Context, conversationID string) ([]*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.docs[conversationID]
	if !ok {
		return nil, nil
	}
	out := make([]*model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Save replaces the stored history for conversationID.
func (s *ConversationStore) Save(_ context.Context, conversationID string, messages []*model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]*model.Message, len(messages))
	copy(stored, messages)
	s.docs[conversationID] = stored
	return nil
}

// InterruptStore is a sync.Mutex-guarded map mirroring interrupt.Controller,
// usable interchangeably wherever storage.InterruptStore is accepted.
type InterruptStore struct {
	mu      sync.Mutex
	pending map[ident.Plan]interrupt.Reason
}

// NewInterruptStore builds an empty InterruptStore.
func NewInterruptStore() *InterruptStore {
	return &InterruptStore{pending: map[ident.Plan]interrupt.Reason{}}
}

func (s *InterruptStore) Request(_ context.Context, rootPlanID ident.Plan, reason interrupt.Reason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rootPlanID] = reason
	return nil
}

func (s *InterruptStore) IsInterrupted(_ context.Context, rootPlanID ident.Plan) (interrupt.Reason, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.pending[rootPlanID]
	return r, ok, nil
}

func (s *InterruptStore) Clear(_ context.Context, rootPlanID ident.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, rootPlanID)
	return nil
}
