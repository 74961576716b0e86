// Package ident defines the strong string identifier types shared across the
// execution core, plus the qualified tool-key parsing rules used by the tool
// registry to resolve a model-requested name to a registered tool.
package ident

import "strings"

// Tool is the strong type for tool identifiers as registered with the
// dispatcher. A Tool may be bare ("search") or qualified with a service
// group ("web_search" or "web.search").
type Tool string

// Agent is the strong type for agent identifiers (e.g. "triage", "coder").
type Agent string

// Plan is the strong type for plan identifiers. RootPlanID is the identifier
// of the top-level plan a sub-plan was spawned from; it is the key the
// interruption flag and form-input rendezvous slot are both keyed on.
type Plan string

// QualifiedKey splits a tool key requested by a model into its service-group
// and tool-name components, accepting both the underscore-joined form
// ("serviceGroup_toolName") and the dot form ("serviceGroup.toolName").
// Bare names (no separator) return an empty group.
type QualifiedKey struct {
	Group string
	Name  string
}

// ParseQualifiedKey parses a raw tool key into its group/name parts. It
// never fails: a key with no recognizable separator is returned as a bare
// name with an empty group, leaving resolution to try bare matching.
func ParseQualifiedKey(raw string) QualifiedKey {
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		return QualifiedKey{Group: raw[:i], Name: raw[i+1:]}
	}
	if i := strings.IndexByte(raw, '_'); i >= 0 {
		return QualifiedKey{Group: raw[:i], Name: raw[i+1:]}
	}
	return QualifiedKey{Name: raw}
}

// DotForm renders the key in "group.name" form, or just "name" when Group is
// empty.
func (k QualifiedKey) DotForm() string {
	if k.Group == "" {
		return k.Name
	}
	return k.Group + "." + k.Name
}

// UnderscoreForm renders the key in "group_name" form, or just "name" when
// Group is empty.
func (k QualifiedKey) UnderscoreForm() string {
	if k.Group == "" {
		return k.Name
	}
	return k.Group + "_" + k.Name
}
