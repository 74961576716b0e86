// Package providers builds and caches model.Client instances per model
// identifier, and hosts the concrete provider adapters (anthropic, bedrock,
// openai) under its subpackages. Grounded on the teacher's per-call client
// construction in its provider adapters' New/NewFromAPIKey constructors,
// generalized with a small cache so a process serving many plans doesn't
// rebuild (and re-resolve credentials for) the same provider client on
// every think step.
package providers

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/flowforge-ai/agentcore/model"
)

// Factory builds a fresh model.Client for a given model identifier.
type Factory func(modelID string) (model.Client, error)

// ModelChangeSource is the external Model registry collaborator (§6): it
// reports, on Changes, the identifier of every model whose underlying
// configuration was just updated (a config reload resolving a model class
// to a new concrete model string, a credential rotation, and so on).
// Implementations own the channel's lifecycle and close it once ctx given
// to Changes is done.
type ModelChangeSource interface {
	Changes(ctx context.Context) <-chan string
}

// Cache holds one model.Client per model identifier, built lazily via
// Factory and evicted when the caller observes the model has changed
// (e.g. a directory.AgentProfile's ModelClass now resolves to a different
// concrete model string after a config reload).
type Cache struct {
	mu      sync.Mutex
	build   Factory
	clients map[string]model.Client
	// limiters throttles outbound calls per model identifier, independent
	// of the provider's own rate-limit error classification, so a noisy
	// plan can't starve others sharing the same provider quota.
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewCache builds a Cache. rps/burst configure the per-model-identifier
// token bucket; a zero rps disables throttling (the cache then only
// memoizes clients).
func NewCache(build Factory, rps float64, burst int) *Cache {
	return &Cache{
		build:    build,
		clients:  map[string]model.Client{},
		limiters: map[string]*rate.Limiter{},
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Get returns the cached client for modelID, building and memoizing one on
// first use.
func (c *Cache) Get(modelID string) (model.Client, error) {
	if modelID == "" {
		return nil, fmt.Errorf("providers: model identifier is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[modelID]; ok {
		return client, nil
	}
	client, err := c.build(modelID)
	if err != nil {
		return nil, fmt.Errorf("providers: build client for %q: %w", modelID, err)
	}
	if c.rps > 0 {
		client = &throttledClient{Client: client, limiter: c.limiterFor(modelID)}
	}
	c.clients[modelID] = client
	return client, nil
}

// Evict drops modelID's cached client, forcing the next Get to rebuild it.
// Callers use this when a model's underlying configuration (API key,
// endpoint, region) changes without the model identifier itself changing.
func (c *Cache) Evict(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, modelID)
}

// Watch subscribes to source's change channel and evicts the affected
// model's cached client for every identifier it emits, until ctx is done or
// source closes the channel. This is what makes the cache self-healing
// (spec §5): the next Get after an eviction rebuilds the client from
// scratch, picking up whatever changed. Watch spawns its own goroutine and
// returns immediately; callers that want to block until the subscription
// ends can wait on ctx.Done() themselves.
func (c *Cache) Watch(ctx context.Context, source ModelChangeSource) {
	changes := source.Changes(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case modelID, ok := <-changes:
				if !ok {
					return
				}
				c.Evict(modelID)
			}
		}
	}()
}

func (c *Cache) limiterFor(modelID string) *rate.Limiter {
	if l, ok := c.limiters[modelID]; ok {
		return l
	}
	l := rate.NewLimiter(c.rps, c.burst)
	c.limiters[modelID] = l
	return l
}
