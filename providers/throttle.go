package providers

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/flowforge-ai/agentcore/model"
)

// throttledClient wraps a model.Client with a per-model-identifier token
// bucket, so the Cache can bound outbound call rate independently of
// whatever retry/backoff policy the ReAct loop layers on top.
type throttledClient struct {
	model.Client
	limiter *rate.Limiter
}

func (t *throttledClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Client.Complete(ctx, req)
}

func (t *throttledClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Client.Stream(ctx, req)
}
