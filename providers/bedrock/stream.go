package bedrock

import (
	"io"

	"github.com/flowforge-ai/agentcore/model"
)

// replayStreamer adapts a completed model.Response to model.Streamer so
// Bedrock-backed agents can go through the same Stream call path as
// streaming-capable providers. It emits the response's text, each tool
// call, a usage chunk, and a final stop chunk, then drains to io.EOF.
type replayStreamer struct {
	chunks []model.Chunk
	pos    int
	meta   map[string]any
}

func newReplayStreamer(resp *model.Response) model.Streamer {
	s := &replayStreamer{meta: map[string]any{"usage": resp.Usage}}
	for _, msg := range resp.Content {
		m := msg
		s.chunks = append(s.chunks, model.Chunk{Type: model.ChunkText, Message: &m})
	}
	for _, tc := range resp.ToolCalls {
		call := tc
		s.chunks = append(s.chunks, model.Chunk{Type: model.ChunkToolCall, ToolCall: &call})
	}
	usage := resp.Usage
	s.chunks = append(s.chunks, model.Chunk{Type: model.ChunkUsage, UsageDelta: &usage})
	s.chunks = append(s.chunks, model.Chunk{Type: model.ChunkStop, StopReason: resp.StopReason})
	return s
}

func (s *replayStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *replayStreamer) Close() error { return nil }

func (s *replayStreamer) Metadata() map[string]any { return s.meta }
