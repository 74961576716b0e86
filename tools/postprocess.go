package tools

import (
	"encoding/json"

	"github.com/flowforge-ai/agentcore/jsonkit"
)

// UnwrapResult implements the single-tool-path result post-processing rule:
// if content is a JSON string, or an object with an "output" field that is
// itself an escaped JSON string, unwrap one level and re-serialize using an
// ordered mapping so key order survives the round-trip. This is a
// fixed-point operation, not a recursive one — calling it again on its own
// output is a no-op because the result no longer has an outer string layer
// to peel.
func UnwrapResult(content any) any {
	raw, err := json.Marshal(content)
	if err != nil {
		return content
	}

	if unwrapped, ok := unwrapString(raw); ok {
		return json.RawMessage(unwrapped)
	}

	obj, err := jsonkit.ParseObject(raw)
	if err != nil {
		return content
	}
	outputRaw, ok := obj.Get("output")
	if !ok {
		return content
	}
	unwrappedOutput, ok := unwrapString(outputRaw)
	if !ok {
		return content
	}
	obj.Set("output", json.RawMessage(unwrappedOutput))
	marshaled, err := obj.MarshalJSON()
	if err != nil {
		return content
	}
	return json.RawMessage(marshaled)
}

// unwrapString reports whether raw is a JSON string whose contents are
// themselves valid JSON, returning the inner JSON bytes if so.
func unwrapString(raw json.RawMessage) (json.RawMessage, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	inner := json.RawMessage(s)
	if !json.Valid(inner) {
		return nil, false
	}
	return inner, true
}
