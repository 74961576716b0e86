package tools

import (
	"fmt"

	"github.com/flowforge-ai/agentcore/ident"
)

// Resolve maps a model-requested tool key to a registered Spec, trying (in
// order): an exact match against the registered Name, the dot-converted
// form, the underscore-converted form, and finally a bare-name suffix
// match. Resolution fails closed: if the bare-name suffix match is
// ambiguous (two or more registered tools share the bare name), Resolve
// returns an error rather than guessing, matching the teacher's
// registration-time collision posture applied at resolution time.
func (r *Registry) Resolve(rawKey string) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.specs[ident.Tool(rawKey)]; ok {
		return s, nil
	}

	key := ident.ParseQualifiedKey(rawKey)
	if s, ok := r.specs[ident.Tool(key.DotForm())]; ok {
		return s, nil
	}
	if s, ok := r.specs[ident.Tool(key.UnderscoreForm())]; ok {
		return s, nil
	}

	candidates := r.bareIndex[key.Name]
	switch len(candidates) {
	case 0:
		return nil, notFoundError(rawKey)
	case 1:
		return r.specs[candidates[0]], nil
	default:
		return nil, fmt.Errorf("tools: key %q is ambiguous across %d registered tools", rawKey, len(candidates))
	}
}
