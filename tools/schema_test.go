package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillRequiredDefaultsFillsMissingFieldsInOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["query","limit"]}`)
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler, InputSchema: schema}))

	out, filled, err := r.FillRequiredDefaults("search", json.RawMessage(`{"query":"cats"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"limit"}, filled)
	assert.JSONEq(t, `{"query":"cats","limit":""}`, string(out))
}

func TestFillRequiredDefaultsNoopWhenNothingMissing(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["query"]}`)
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler, InputSchema: schema}))

	original := json.RawMessage(`{"query":"cats"}`)
	out, filled, err := r.FillRequiredDefaults("search", original)
	require.NoError(t, err)
	assert.Nil(t, filled)
	assert.Equal(t, original, out)
}

func TestFillRequiredDefaultsUnionsOneOfBranches(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{
		"type": "object",
		"oneOf": [
			{"required": ["email"]},
			{"required": ["phone"]}
		]
	}`)
	require.NoError(t, r.Register(&Spec{Name: "contact", Handler: echoHandler, InputSchema: schema}))

	out, filled, err := r.FillRequiredDefaults("contact", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"email", "phone"}, filled)
	assert.JSONEq(t, `{"email":"","phone":""}`, string(out))
}

func TestFillRequiredDefaultsNoSchemaIsNoop(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler}))

	original := json.RawMessage(`{"query":"cats"}`)
	out, filled, err := r.FillRequiredDefaults("search", original)
	require.NoError(t, err)
	assert.Nil(t, filled)
	assert.Equal(t, original, out)
}

func TestFillRequiredDefaultsHandlesEmptyPayload(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object","required":["query"]}`)
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler, InputSchema: schema}))

	out, filled, err := r.FillRequiredDefaults("search", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"query"}, filled)
	assert.JSONEq(t, `{"query":""}`, string(out))
}

func TestValidateNoSchemaAlwaysPasses(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler}))
	assert.NoError(t, r.Validate("search", json.RawMessage(`{"anything":true}`)))
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	schema := json.RawMessage(`{"type":"object"}`)
	require.NoError(t, r.Register(&Spec{Name: "search", Handler: echoHandler, InputSchema: schema}))
	assert.Error(t, r.Validate("search", json.RawMessage(`not json`)))
}
