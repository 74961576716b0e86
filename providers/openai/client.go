// Package openai adapts OpenAI's Chat Completions API to model.Client.
// Grounded on the teacher's features/model/openai/client.go adapter, which
// wraps a single chat-completions call behind a narrow ChatClient
// interface and leaves streaming unsupported; this adapter keeps that
// shape but builds on the typed message/part model instead of the
// teacher's flat string-content messages, so tool_use/tool_result parts
// round-trip instead of being flattened to text.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/model"
)

// ChatClient is the subset of the OpenAI SDK's chat completions service the
// adapter uses. It is satisfied by client.Chat.Completions.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	Chat         ChatClient
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float64
}

// Client implements model.Client against OpenAI's Chat Completions API.
type Client struct {
	chat         ChatClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float64
}

// New builds an OpenAI-backed model client.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model identifier is required")
	}
	return &Client{
		chat:         opts.Chat,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey builds an adapter against the default OpenAI endpoint.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	sdk := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Chat: &sdk.Chat.Completions, DefaultModel: defaultModel})
}

// Complete issues a single chat-completions call and translates the
// response.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, nameMap, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return translateResponse(resp, nameMap)
}

// Stream is unimplemented: the teacher's own OpenAI adapter never
// implemented streaming either, so the ReAct loop's think phase falls
// back to Complete for OpenAI-backed agents.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func (c *Client) prepareRequest(req *model.Request) (*openai.ChatCompletionNewParams, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("openai: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, nil, errors.New("openai: model identifier is required")
	}
	tools, canonToSan, sanToCanon, err := encodeTools(req.Tools)
	if err != nil {
		return nil, nil, err
	}
	messages, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	if mt := c.effectiveMaxTokens(req.MaxTokens); mt > 0 {
		params.MaxCompletionTokens = openai.Int(int64(mt))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = openai.Float(t)
	}
	if req.ToolChoice != nil {
		choice, err := encodeToolChoice(*req.ToolChoice, canonToSan)
		if err != nil {
			return nil, nil, err
		}
		params.ToolChoice = choice
	}
	return params, sanToCanon, nil
}

func (c *Client) resolveModelID(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case model.ClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case model.ClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *Client) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTok
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func encodeMessages(msgs []*model.Message, nameMap map[string]string) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					out = append(out, openai.SystemMessage(v.Text))
				}
			}
		case model.RoleUser:
			text, results := splitParts(m.Parts)
			if text != "" {
				out = append(out, openai.UserMessage(text))
			}
			for _, r := range results {
				out = append(out, encodeToolResult(r))
			}
		case model.RoleAssistant:
			text, calls := assistantParts(m.Parts, nameMap)
			msg := openai.AssistantMessage(text)
			if len(calls) > 0 {
				msg.OfAssistant.ToolCalls = calls
			}
			out = append(out, msg)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one encodable message is required")
	}
	return out, nil
}

func splitParts(parts []model.Part) (string, []model.ToolResultPart) {
	var text string
	var results []model.ToolResultPart
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolResultPart:
			results = append(results, v)
		}
	}
	return text, results
}

func assistantParts(parts []model.Part, nameMap map[string]string) (string, []openai.ChatCompletionMessageToolCallParam) {
	var text string
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, p := range parts {
		switch v := p.(type) {
		case model.TextPart:
			text += v.Text
		case model.ToolUsePart:
			name := v.Name
			if sanitized, ok := nameMap[name]; ok {
				name = sanitized
			}
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      name,
					Arguments: string(v.Input),
				},
			})
		}
	}
	return text, calls
}

func encodeToolResult(v model.ToolResultPart) openai.ChatCompletionMessageParamUnion {
	var content string
	switch c := v.Content.(type) {
	case nil:
		content = ""
	case string:
		content = c
	default:
		if b, err := json.Marshal(c); err == nil {
			content = string(b)
		}
	}
	return openai.ToolMessage(content, v.ToolUseID)
}

func encodeTools(defs []*model.ToolDefinition) ([]openai.ChatCompletionToolParam, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("openai: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        sanitized,
				Description: openai.String(def.Description),
				Parameters:  toParameters(def.InputSchema),
			},
		})
	}
	return out, canonToSan, sanToCanon, nil
}

func encodeToolChoice(choice model.ToolChoice, canonToSan map[string]string) (openai.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", model.ToolChoiceAuto:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}, nil
	case model.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}, nil
	case model.ToolChoiceAny:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}, nil
	case model.ToolChoiceTool:
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return openai.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: tool choice name %q does not match any tool", choice.Name)
		}
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: sanitized},
			},
		}, nil
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func toParameters(schema any) shared.FunctionParameters {
	if schema == nil {
		return shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
	}
	switch v := schema.(type) {
	case shared.FunctionParameters:
		return v
	case map[string]any:
		return shared.FunctionParameters(v)
	case json.RawMessage:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err == nil {
			return shared.FunctionParameters(m)
		}
	}
	return shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
}

// sanitizeToolName maps a canonical, possibly dot-namespaced tool
// identifier to the charset OpenAI's function-calling API accepts.
func sanitizeToolName(in string) string {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	name := string(out)
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

func translateResponse(resp *openai.ChatCompletion, nameMap map[string]string) (*model.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	out := &model.Response{}
	choice := resp.Choices[0]
	if choice.Message.Content != "" {
		out.Content = append(out.Content, model.Message{
			Role:  model.RoleAssistant,
			Parts: []model.Part{model.TextPart{Text: choice.Message.Content}},
		})
	}
	for _, tc := range choice.Message.ToolCalls {
		name := tc.Function.Name
		if canonical, ok := nameMap[name]; ok {
			name = canonical
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			Name:    ident.Tool(name),
			Payload: json.RawMessage(tc.Function.Arguments),
			ID:      tc.ID,
		})
	}
	out.Usage = model.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	out.StopReason = string(choice.FinishReason)
	return out, nil
}
