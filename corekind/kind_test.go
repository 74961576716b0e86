package corekind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsRetryToKindPolicy(t *testing.T) {
	t.Parallel()

	cause := errors.New("rate limited")
	err := New(LLMTransient, cause)
	require.NotNil(t, err)
	assert.Equal(t, LLMTransient, err.Kind)
	assert.True(t, err.Retry)

	err = New(ToolExec, cause)
	assert.False(t, err.Retry)
}

func TestRetryableMatchesDefaultPolicyTable(t *testing.T) {
	t.Parallel()

	cases := map[Kind]bool{
		Interrupted:    false,
		LLMTransient:   true,
		LLMToolless:    false,
		LLMFatal:       false,
		ToolNotFound:   false,
		ToolArgConvert: true,
		ToolExec:       false,
		FormTimeout:    false,
		PlanFatal:      false,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.Retryable(), "kind %s", kind)
	}
}

func TestErrorFormatsKindAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := New(ToolExec, cause)
	assert.Equal(t, "TOOL_EXEC: boom", err.Error())

	bare := New(PlanFatal, nil)
	assert.Equal(t, "PLAN_FATAL", bare.Error())

	var nilErr *CoreError
	assert.Equal(t, "", nilErr.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := New(LLMFatal, cause)
	assert.True(t, errors.Is(err, cause))

	var nilErr *CoreError
	assert.Nil(t, nilErr.Unwrap())
}
