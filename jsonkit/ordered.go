// Package jsonkit provides an order-preserving JSON object representation
// used by the tool dispatcher when converting model-supplied arguments
// into a tool's expected payload shape. Go's map[string]any does not
// preserve key order, and the dispatcher's argument conversion must not
// reorder a tool's declared fields when filling in schema-required
// defaults alongside the model's original arguments. The teacher's own
// model package hand-rolls its JSON codecs directly against
// encoding/json rather than pulling in an ordered-map library, so this
// package follows suit instead of adding a new dependency for it.
package jsonkit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Pair is a single key/value entry in an Object, in source order.
type Pair struct {
	Key   string
	Value json.RawMessage
}

// Object is an order-preserving JSON object: a sequence of key/value pairs
// plus an index for O(1) lookup, so callers don't have to trade one for
// the other.
type Object struct {
	Pairs []Pair
	index map[string]int
}

// ParseObject decodes a JSON object while recording its top-level key
// order. Empty input and JSON null yield an empty Object; any other
// non-object input returns an error.
func ParseObject(raw json.RawMessage) (*Object, error) {
	obj := &Object{index: map[string]int{}}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return obj, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("jsonkit: read opening token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("jsonkit: expected JSON object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("jsonkit: read key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("jsonkit: expected string key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("jsonkit: decode value for %q: %w", key, err)
		}
		obj.Set(key, raw)
	}
	return obj, nil
}

// Get returns the raw value for key and whether it was present.
func (o *Object) Get(key string) (json.RawMessage, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.Pairs[i].Value, true
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set inserts or updates key, preserving the original position on update
// and appending on insert.
func (o *Object) Set(key string, value json.RawMessage) {
	if o.index == nil {
		o.index = map[string]int{}
	}
	if i, ok := o.index[key]; ok {
		o.Pairs[i].Value = value
		return
	}
	o.index[key] = len(o.Pairs)
	o.Pairs = append(o.Pairs, Pair{Key: key, Value: value})
}

// SetDefault inserts key/value only if key is not already present.
// Reports whether it inserted.
func (o *Object) SetDefault(key string, value json.RawMessage) bool {
	if o.Has(key) {
		return false
	}
	o.Set(key, value)
	return true
}

// MarshalJSON renders the object back to JSON in original key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil || len(o.Pairs) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o.Pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		if len(p.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(p.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Keys returns the keys in original order.
func (o *Object) Keys() []string {
	keys := make([]string, len(o.Pairs))
	for i, p := range o.Pairs {
		keys[i] = p.Key
	}
	return keys
}
