// Package directory defines the Directory collaborator: a lookup of which
// agent is responsible for executing a given plan step, plus a mapping from
// agent identifier to its AgentProfile (system prompt, model class, allowed
// tool names).
// Grounded on the teacher's run.Store/run.Record metadata tracking
// (agent/run/run.go), trimmed to the single-process lookup the execution
// core actually needs (no durable workflow status tracking).
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge-ai/agentcore/ident"
)

// AgentProfile describes an agent available to run plan steps: its model
// class preference and the tool names it is allowed to call.
type AgentProfile struct {
	ID              ident.Agent
	SystemPrompt    string
	ModelClass      string
	AllowedTools    []ident.Tool
	MaxStepsOverride int
}

// Directory resolves agent identifiers to their profiles. Implementations
// may be backed by static configuration or a dynamic registry service; the
// in-process Directory below covers the common case of a fixed agent
// roster configured at startup.
type Directory interface {
	Lookup(ctx context.Context, id ident.Agent) (AgentProfile, error)
	List(ctx context.Context) ([]AgentProfile, error)
}

// Static is a Directory backed by a fixed, in-memory roster.
type Static struct {
	mu       sync.RWMutex
	profiles map[ident.Agent]AgentProfile
}

// NewStatic builds a Static directory from an initial roster.
func NewStatic(profiles ...AgentProfile) *Static {
	d := &Static{profiles: map[ident.Agent]AgentProfile{}}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

// Register adds or replaces a profile.
func (d *Static) Register(p AgentProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ID] = p
}

// Lookup returns the profile for id.
func (d *Static) Lookup(_ context.Context, id ident.Agent) (AgentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	if !ok {
		return AgentProfile{}, fmt.Errorf("directory: unknown agent %q", id)
	}
	return p, nil
}

// List returns every registered profile, in no particular order.
func (d *Static) List(_ context.Context) ([]AgentProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]AgentProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out, nil
}
