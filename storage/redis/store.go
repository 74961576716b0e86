// Package redis implements storage.InterruptStore against Redis, giving the
// per-rootPlanId interruption flag (spec §5 "Cancellation") a cross-process
// home for deployments that run the Plan Executor as more than one worker
// process. Grounded on the corpus's github.com/redis/go-redis/v9 presence
// (the teacher uses it underneath goa.design/pulse for its event stream;
// this store talks to Redis directly since the interruption flag is a
// plain key, not a stream, and pulse's stream abstraction was dropped along
// with the rest of the teacher's durable-workflow stack — see DESIGN.md).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/interrupt"
)

const defaultKeyPrefix = "agentcore:interrupt:"

// Options configures the Store.
type Options struct {
	Client *redis.Client
	// KeyPrefix namespaces interruption keys in a shared Redis instance.
	// Defaults to "agentcore:interrupt:".
	KeyPrefix string
	// TTL bounds how long a pending interruption flag survives without
	// being cleared, guarding against a flag outliving the plan it was
	// requested against if Clear is never called. Zero disables expiry.
	TTL time.Duration
}

// Store implements storage.InterruptStore against Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New builds a Redis-backed interrupt store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis: client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: opts.Client, prefix: prefix, ttl: opts.TTL}, nil
}

// Request marks rootPlanID as pending interruption.
func (s *Store) Request(ctx context.Context, rootPlanID ident.Plan, reason interrupt.Reason) error {
	if rootPlanID == "" {
		return errors.New("redis: root plan id is required")
	}
	encoded, err := json.Marshal(reason)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(rootPlanID), encoded, s.ttl).Err()
}

// IsInterrupted reports whether rootPlanID currently has a pending
// interruption request.
func (s *Store) IsInterrupted(ctx context.Context, rootPlanID ident.Plan) (interrupt.Reason, bool, error) {
	raw, err := s.client.Get(ctx, s.key(rootPlanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return interrupt.Reason{}, false, nil
	}
	if err != nil {
		return interrupt.Reason{}, false, err
	}
	var reason interrupt.Reason
	if err := json.Unmarshal(raw, &reason); err != nil {
		return interrupt.Reason{}, false, err
	}
	return reason, true, nil
}

// Clear removes a pending interruption request.
func (s *Store) Clear(ctx context.Context, rootPlanID ident.Plan) error {
	return s.client.Del(ctx, s.key(rootPlanID)).Err()
}

func (s *Store) key(rootPlanID ident.Plan) string {
	return s.prefix + string(rootPlanID)
}
