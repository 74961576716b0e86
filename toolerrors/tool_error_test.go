package toolerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsEmptyMessage(t *testing.T) {
	t.Parallel()
	err := New("")
	assert.Equal(t, "tool error", err.Error())
}

func TestNewWithCauseWrapsUnderlyingError(t *testing.T) {
	t.Parallel()

	cause := errors.New("network timeout")
	err := NewWithCause("tool call failed", cause)
	require.NotNil(t, err.Cause)
	assert.Equal(t, "tool call failed", err.Error())
	assert.Equal(t, "network timeout", err.Cause.Error())
}

func TestNewWithCauseFallsBackToCauseMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewWithCause("", cause)
	assert.Equal(t, "boom", err.Error())
}

func TestFromErrorNilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))
}

func TestFromErrorPreservesExistingToolError(t *testing.T) {
	t.Parallel()

	original := New("already structured")
	wrapped := fmt.Errorf("context: %w", original)
	got := FromError(wrapped)
	assert.Same(t, original, got)
}

func TestFromErrorWrapsPlainErrorChain(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	outer := fmt.Errorf("outer: %w", inner)
	got := FromError(outer)
	require.NotNil(t, got)
	assert.Equal(t, outer.Error(), got.Message)
	require.NotNil(t, got.Cause)
	assert.Equal(t, "inner", got.Cause.Message)
}

func TestErrorsIsTraversesCauseChain(t *testing.T) {
	t.Parallel()

	leaf := New("leaf")
	mid := &ToolError{Message: "mid", Cause: leaf}
	assert.True(t, errors.Is(mid, leaf))
}

func TestNilToolErrorErrorIsEmpty(t *testing.T) {
	t.Parallel()
	var e *ToolError
	assert.Equal(t, "", e.Error())
	assert.Nil(t, e.Unwrap())
}

func TestErrorfFormatsMessage(t *testing.T) {
	t.Parallel()
	err := Errorf("tool %s failed with code %d", "search", 42)
	assert.Equal(t, "tool search failed with code 42", err.Error())
}
