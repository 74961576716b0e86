package anthropic

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/agentcore/model"
)

type fakeMessagesClient struct{}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return nil, errors.New("unused in these tests")
}

func (f *fakeMessagesClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.DefaultModel == "" {
		opts.DefaultModel = "claude-default"
	}
	c, err := New(&fakeMessagesClient{}, opts)
	require.NoError(t, err)
	return c
}

func TestNewRejectsNilMessagesClient(t *testing.T) {
	t.Parallel()
	_, err := New(nil, Options{DefaultModel: "x"})
	assert.Error(t, err)
}

func TestNewRejectsMissingDefaultModel(t *testing.T) {
	t.Parallel()
	_, err := New(&fakeMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestResolveModelIDPrefersExplicitRequestModel(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{DefaultModel: "default-model", HighModel: "high-model"})
	got := c.resolveModelID(&model.Request{Model: "explicit-model", ModelClass: model.ClassHighReasoning})
	assert.Equal(t, "explicit-model", got)
}

func TestResolveModelIDUsesClassWhenConfigured(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{DefaultModel: "default-model", HighModel: "high-model", SmallModel: "small-model"})
	assert.Equal(t, "high-model", c.resolveModelID(&model.Request{ModelClass: model.ClassHighReasoning}))
	assert.Equal(t, "small-model", c.resolveModelID(&model.Request{ModelClass: model.ClassSmall}))
}

func TestResolveModelIDFallsBackToDefaultWhenClassUnconfigured(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{DefaultModel: "default-model"})
	assert.Equal(t, "default-model", c.resolveModelID(&model.Request{ModelClass: model.ClassHighReasoning}))
	assert.Equal(t, "default-model", c.resolveModelID(&model.Request{}))
}

func TestEffectiveMaxTokensPrefersRequestValue(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{MaxTokens: 4096})
	assert.Equal(t, 1024, c.effectiveMaxTokens(1024))
	assert.Equal(t, 4096, c.effectiveMaxTokens(0))
	assert.Equal(t, 4096, c.effectiveMaxTokens(-5))
}

func TestEffectiveTemperaturePrefersRequestValue(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{Temperature: 0.7})
	assert.Equal(t, float64(0.3), c.effectiveTemperature(0.3))
	assert.Equal(t, 0.7, c.effectiveTemperature(0))
}

func TestIsProviderSafeToolNameAcceptsAlnumUnderscoreHyphen(t *testing.T) {
	t.Parallel()
	assert.True(t, isProviderSafeToolName("web_search-v2"))
	assert.False(t, isProviderSafeToolName("web.search"))
	assert.False(t, isProviderSafeToolName(""))
	assert.False(t, isProviderSafeToolName(strings.Repeat("a", 65)))
}

func TestSanitizeToolNameLeavesSafeNamesUnchanged(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "web_search", sanitizeToolName("web_search"))
}

func TestSanitizeToolNameReplacesDisallowedRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "web_search", sanitizeToolName("web.search"))
	assert.Equal(t, "a_b_c", sanitizeToolName("a.b.c"))
}

func TestSanitizeToolNameTruncatesToSixtyFourChars(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 100)
	got := sanitizeToolName(long)
	assert.Len(t, got, 64)
}

func TestIsRateLimitedMatchesKnownMarkers(t *testing.T) {
	t.Parallel()
	assert.True(t, isRateLimited(errors.New("received 429 Too Many Requests")))
	assert.True(t, isRateLimited(errors.New("the API is temporarily overloaded")))
	assert.False(t, isRateLimited(errors.New("invalid request")))
	assert.False(t, isRateLimited(nil))
}

func TestCompletePropagatesUnderlyingTransportError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{MaxTokens: 100})

	_, err := c.Complete(context.Background(), &model.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "hi"}}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unused in these tests")
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, Options{MaxTokens: 100})
	_, err := c.Complete(context.Background(), &model.Request{})
	assert.Error(t, err)
}
