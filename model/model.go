// Package model defines the provider-agnostic message and streaming types
// used by the ReAct loop, the Plan Executor, and the provider adapters
// under providers/. Messages are modeled as typed parts (text, thinking,
// tool use/result, cache checkpoint) rather than flattened strings so the
// loop can reason about tool-call boundaries without re-parsing text.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/flowforge-ai/agentcore/ident"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is implemented by every message content block.
type Part interface{ isPart() }

// TextPart is a plain text content block.
type TextPart struct{ Text string }

// ThinkingPart carries provider-issued reasoning content. Callers treat it
// as opaque and surface it according to UI policy; it is never treated as
// the final answer.
type ThinkingPart struct {
	Text      string
	Signature string
	Index     int
	Final     bool
}

// ToolUsePart declares a tool invocation requested by the assistant.
type ToolUsePart struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultPart carries a tool result attached to a subsequent user
// message so the model can read it on the next turn.
type ToolResultPart struct {
	ToolUseID string
	Content   any
	IsError   bool
}

// CacheCheckpointPart marks a prompt-caching boundary. Providers that don't
// support caching ignore it.
type CacheCheckpointPart struct{}

func (TextPart) isPart()            {}
func (ThinkingPart) isPart()        {}
func (ToolUsePart) isPart()         {}
func (ToolResultPart) isPart()      {}
func (CacheCheckpointPart) isPart() {}

// Message is a single chat message with ordered, typed content parts.
type Message struct {
	Role  Role
	Parts []Part
	Meta  map[string]any
}

// ToolDefinition describes a tool exposed to the model, including its JSON
// Schema input shape.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema any
}

// ToolCall is a tool invocation requested by the model, with canonical JSON
// arguments and an optional provider-issued call id.
type ToolCall struct {
	Name    ident.Tool
	Payload json.RawMessage
	ID      string
}

// ToolChoiceMode controls how the model is nudged to use tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceTool ToolChoiceMode = "tool"
)

// ToolChoice optionally constrains tool-use behavior for a Request.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// TokenUsage tracks token counts for a model call.
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	TotalTokens      int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Class selects a model family when Model is left unset, letting callers
// pick "cheap and fast" vs. "high reasoning" without hardcoding a model
// string.
type Class string

const (
	ClassHighReasoning Class = "high-reasoning"
	ClassDefault       Class = "default"
	ClassSmall         Class = "small"
)

// ThinkingOptions configures provider reasoning behavior.
type ThinkingOptions struct {
	Enable       bool
	Interleaved  bool
	BudgetTokens int
}

// CacheOptions configures prompt caching. Providers without caching support
// ignore these flags.
type CacheOptions struct {
	AfterSystem bool
	AfterTools  bool
}

// Request captures the inputs to a model invocation.
type Request struct {
	RunID       string
	Model       string
	ModelClass  Class
	Messages    []*Message
	Temperature float32
	Tools       []*ToolDefinition
	ToolChoice  *ToolChoice
	MaxTokens   int
	Stream      bool
	Thinking    *ThinkingOptions
	Cache       *CacheOptions
}

// Response is the result of a non-streaming invocation.
type Response struct {
	Content    []Message
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// Chunk types streamed by a Streamer.
const (
	ChunkText      = "text"
	ChunkToolCall  = "tool_call"
	ChunkThinking  = "thinking"
	ChunkUsage     = "usage"
	ChunkStop      = "stop"
)

// Chunk is a single streaming event from the model.
type Chunk struct {
	Type       string
	Message    *Message
	Thinking   string
	ToolCall   *ToolCall
	UsageDelta *TokenUsage
	StopReason string
}

// Client is the provider-agnostic model client every provider adapter
// implements.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request) (Streamer, error)
}

// Streamer delivers incremental model output. Callers drain Recv until it
// returns io.EOF (or another terminal error) then call Close.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
	Metadata() map[string]any
}

// ErrStreamingUnsupported indicates the provider adapter does not support
// streaming for the requested model.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the provider rejected the request due to rate
// limiting after exhausting configured retries.
var ErrRateLimited = errors.New("model: rate limited")
