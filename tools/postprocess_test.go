package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapResultUnwrapsJSONStringContent(t *testing.T) {
	t.Parallel()

	got := UnwrapResult(`{"status":"ok"}`)
	raw, ok := got.(json.RawMessage)
	if assert.True(t, ok) {
		assert.JSONEq(t, `{"status":"ok"}`, string(raw))
	}
}

func TestUnwrapResultUnwrapsEscapedOutputField(t *testing.T) {
	t.Parallel()

	content := map[string]any{"output": `{"status":"ok"}`, "exit_code": float64(0)}
	got := UnwrapResult(content)
	raw, ok := got.(json.RawMessage)
	if assert.True(t, ok) {
		assert.JSONEq(t, `{"output":{"status":"ok"},"exit_code":0}`, string(raw))
	}
}

func TestUnwrapResultLeavesPlainStringUnchanged(t *testing.T) {
	t.Parallel()

	got := UnwrapResult("second step")
	assert.Equal(t, "second step", got)
}

func TestUnwrapResultLeavesObjectWithoutOutputFieldUnchanged(t *testing.T) {
	t.Parallel()

	content := map[string]any{"status": "ok"}
	got := UnwrapResult(content)
	assert.Equal(t, content, got)
}

func TestUnwrapResultIsFixedPointNotRecursive(t *testing.T) {
	t.Parallel()

	once := UnwrapResult(`{"status":"ok"}`)
	twice := UnwrapResult(once)
	assert.Equal(t, once, twice)
}

func TestUnwrapResultLeavesNonJSONOutputFieldUnchanged(t *testing.T) {
	t.Parallel()

	content := map[string]any{"output": "plain text, not JSON"}
	got := UnwrapResult(content)
	assert.Equal(t, content, got)
}
