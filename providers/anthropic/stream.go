package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/model"
)

// streamer adapts an Anthropic Messages streaming response to
// model.Streamer: it drains the SSE stream on a background goroutine,
// buffers each tool_use block's incremental JSON fragments, and emits a
// complete model.Chunk per content block rather than per-delta, matching
// the granularity model.Chunk supports.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan model.Chunk

	mu       sync.Mutex
	err      error
	errSet   bool
	metadata map[string]any

	nameMap map[string]string
}

func newStreamer(ctx context.Context, s *ssestream.Stream[sdk.MessageStreamEventUnion], nameMap map[string]string) model.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	st := &streamer{
		ctx:     cctx,
		cancel:  cancel,
		stream:  s,
		chunks:  make(chan model.Chunk, 32),
		nameMap: nameMap,
	}
	go st.run()
	return st
}

func (s *streamer) Recv() (model.Chunk, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
		if err := s.getErr(); err != nil {
			return model.Chunk{}, err
		}
		return model.Chunk{}, io.EOF
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return model.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) Metadata() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	toolBlocks := map[int64]*toolBuffer{}
	var stopReason string

	for s.stream.Next() {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}

		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if tu, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				name := tu.Name
				if canonical, ok := s.nameMap[name]; ok {
					name = canonical
				}
				toolBlocks[ev.Index] = &toolBuffer{id: tu.ID, name: name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !s.emit(model.Chunk{Type: model.ChunkText, Message: &model.Message{
					Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: delta.Text}},
				}}) {
					return
				}
			case sdk.InputJSONDelta:
				if tb := toolBlocks[ev.Index]; tb != nil {
					tb.fragments = append(tb.fragments, delta.PartialJSON)
				}
			case sdk.ThinkingDelta:
				if delta.Thinking == "" {
					continue
				}
				if !s.emit(model.Chunk{Type: model.ChunkThinking, Thinking: delta.Thinking}) {
					return
				}
			}
		case sdk.ContentBlockStopEvent:
			if tb := toolBlocks[ev.Index]; tb != nil {
				delete(toolBlocks, ev.Index)
				if !s.emit(model.Chunk{Type: model.ChunkToolCall, ToolCall: &model.ToolCall{
					Name: ident.Tool(tb.name), ID: tb.id, Payload: tb.payload(),
				}}) {
					return
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage := model.TokenUsage{
				InputTokens:      int(ev.Usage.InputTokens),
				OutputTokens:     int(ev.Usage.OutputTokens),
				TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				CacheReadTokens:  int(ev.Usage.CacheReadInputTokens),
				CacheWriteTokens: int(ev.Usage.CacheCreationInputTokens),
			}
			s.mu.Lock()
			if s.metadata == nil {
				s.metadata = map[string]any{}
			}
			s.metadata["usage"] = usage
			s.mu.Unlock()
			if !s.emit(model.Chunk{Type: model.ChunkUsage, UsageDelta: &usage}) {
				return
			}
		case sdk.MessageStopEvent:
			if !s.emit(model.Chunk{Type: model.ChunkStop, StopReason: stopReason}) {
				return
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
	}
}

func (s *streamer) emit(c model.Chunk) bool {
	select {
	case s.chunks <- c:
		return true
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return false
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	if errors.Is(err, context.Canceled) {
		return
	}
	s.err = err
}

func (s *streamer) getErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type toolBuffer struct {
	id        string
	name      string
	fragments []string
}

func (tb *toolBuffer) payload() json.RawMessage {
	joined := strings.Join(tb.fragments, "")
	if strings.TrimSpace(joined) == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}
