// Package storage defines the persistence contracts conversation memory and
// interruption state can be backed by when the execution core runs as more
// than one process sharing a conversation. The execution core itself only
// depends on these interfaces; storage/inmem, storage/mongo, and
// storage/redis provide concrete backends.
package storage

import (
	"context"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
	"github.com/flowforge-ai/agentcore/model"
)

// ConversationStore persists the full message history for a conversation as
// a single document. Spec §5 describes conversation memory as "shared
// across agents of one conversation, single-writer critical section": a
// store's Save always replaces the entire history rather than appending,
// since the Memory Compressor rewrites the whole transcript (dropping
// compressed rounds behind a summary message) rather than producing a
// strictly growing event log.
type ConversationStore interface {
	// Load returns the stored message history for conversationID, or a nil
	// slice with no error if nothing has been saved yet.
	Load(ctx context.Context, conversationID string) ([]*model.Message, error)
	// Save replaces the stored message history for conversationID.
	Save(ctx context.Context, conversationID string, messages []*model.Message) error
}

// InterruptStore persists the pending-interruption flag interrupt.Controller
// keeps in memory, giving it a cross-process home for deployments that run
// the Plan Executor as more than one worker process. The in-process
// interrupt.Controller remains the default; a backend here is only needed
// when interruption requests (e.g. a user cancelling a plan from a UI
// process) must reach a Plan Executor running elsewhere.
type InterruptStore interface {
	Request(ctx context.Context, rootPlanID ident.Plan, reason interrupt.Reason) error
	IsInterrupted(ctx context.Context, rootPlanID ident.Plan) (interrupt.Reason, bool, error)
	Clear(ctx context.Context, rootPlanID ident.Plan) error
}
