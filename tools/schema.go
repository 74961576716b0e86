package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/jsonkit"
)

// compiledSchema wraps a compiled JSON Schema plus the field-fill set
// derived from it: the tool's own Required list, unioned across any OneOf
// variants, so the dispatcher can fill in fields the model's multi-tool-call
// response omitted.
type compiledSchema struct {
	schema       *jsonschema.Schema
	requiredFill []string
}

func compileSchema(name string, raw json.RawMessage) (*compiledSchema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	resourceName := "tool://" + name
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &compiledSchema{
		schema:       sch,
		requiredFill: requiredFields(sch),
	}, nil
}

// requiredFields computes the default-fill field set: the schema's own
// Required list, unioned with the Required list of every OneOf branch, so
// a model response that picks a particular oneOf variant but omits a field
// unique to that variant still gets it filled.
func requiredFields(sch *jsonschema.Schema) []string {
	if sch == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(fields []string) {
		for _, f := range fields {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	add(sch.Required)
	for _, branch := range sch.OneOf {
		add(branch.Required)
	}
	return out
}

// Validate checks payload against the tool's compiled schema, if any. A
// tool registered without a schema always validates.
func (r *Registry) Validate(name ident.Tool, payload json.RawMessage) error {
	r.mu.RLock()
	cs, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok || cs == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("tools: payload is not valid JSON: %w", err)
	}
	if err := cs.schema.Validate(doc); err != nil {
		return fmt.Errorf("tools: schema validation failed: %w", err)
	}
	return nil
}

// FillRequiredDefaults fills any field named in the tool's required-field
// set that is missing from payload with a zero-value JSON placeholder
// (empty string, matching the teacher's "best-effort fill so the call is
// not rejected outright" posture for multi-tool-call responses that omit a
// field one variant needs). It preserves the original argument key order
// and only appends missing keys at the end.
func (r *Registry) FillRequiredDefaults(name ident.Tool, payload json.RawMessage) (json.RawMessage, []string, error) {
	r.mu.RLock()
	cs, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok || cs == nil || len(cs.requiredFill) == 0 {
		return payload, nil, nil
	}

	obj, err := jsonkit.ParseObject(normalizeEmpty(payload))
	if err != nil {
		return payload, nil, fmt.Errorf("tools: parse payload for required-field fill: %w", err)
	}

	var filled []string
	for _, field := range cs.requiredFill {
		if obj.SetDefault(field, json.RawMessage(`""`)) {
			filled = append(filled, field)
		}
	}
	if len(filled) == 0 {
		return payload, nil, nil
	}
	out, err := obj.MarshalJSON()
	if err != nil {
		return payload, nil, fmt.Errorf("tools: re-marshal payload after fill: %w", err)
	}
	return out, filled, nil
}

func normalizeEmpty(payload json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage(`{}`)
	}
	return payload
}
