// Package bedrock provides a model.Client implementation backed by the AWS
// Bedrock Converse API. It splits system vs. conversational messages,
// encodes tool schemas into Bedrock's ToolConfiguration, and translates
// Converse responses (text + tool_use blocks) back into the model types the
// ReAct loop reasons over.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/flowforge-ai/agentcore/ident"
	"github.com/flowforge-ai/agentcore/model"
)

// RuntimeClient is the subset of the AWS Bedrock runtime client the adapter
// uses. It is satisfied by *bedrockruntime.Client, so callers can pass
// either the real client or a test double.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float32
}

// New builds a Bedrock-backed model client.
func New(runtime *bedrockruntime.Client, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// Complete issues a Converse request and translates the response.
func (c *Client) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	input, nameMap, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}
	return translateResponse(output, nameMap)
}

// Stream satisfies model.Client by running Complete and replaying its
// result as a single-shot chunk sequence. Bedrock's ConverseStream delta
// protocol needs per-provider buffering symmetrical to the Anthropic
// adapter's; that machinery isn't carried over here (see DESIGN.md), so
// Bedrock-backed agents get the retry/backoff benefits of the ReAct loop's
// think phase without true token-level streaming.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return newReplayStreamer(resp), nil
}

func (c *Client) prepareRequest(req *model.Request) (*bedrockruntime.ConverseInput, map[string]string, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("bedrock: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, nil, errors.New("bedrock: model identifier is required")
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, nil, err
	}
	messages, system, err := encodeMessages(req.Messages, canonToSan)
	if err != nil {
		return nil, nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	infCfg := &brtypes.InferenceConfiguration{}
	if mt := c.effectiveMaxTokens(req.MaxTokens); mt > 0 {
		infCfg.MaxTokens = aws.Int32(int32(mt))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		infCfg.Temperature = aws.Float32(t)
	}
	input.InferenceConfig = infCfg
	return input, sanToCanon, nil
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

func (c *Client) effectiveTemperature(requested float32) float32 {
	if requested > 0 {
		return requested
	}
	return c.temp
}

func encodeMessages(msgs []*model.Message, nameMap map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(msgs))
	system := make([]brtypes.SystemContentBlock, 0, len(msgs))

	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == model.RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(model.TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
				}
			}
			continue
		}

		blocks := make([]brtypes.ContentBlock, 0, len(m.Parts))
		for _, part := range m.Parts {
			switch v := part.(type) {
			case model.TextPart:
				if v.Text != "" {
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
				}
			case model.ToolUsePart:
				if v.Name == "" {
					return nil, nil, errors.New("bedrock: tool_use part missing name")
				}
				sanitized, ok := nameMap[v.Name]
				if !ok {
					sanitized = sanitizeToolName(v.Name)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(v.ID),
					Name:      aws.String(sanitized),
					Input:     toDocument(v.Input),
				}})
			case model.ToolResultPart:
				blocks = append(blocks, encodeToolResult(v))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == model.RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeToolResult(v model.ToolResultPart) brtypes.ContentBlock {
	status := brtypes.ToolResultStatusSuccess
	if v.IsError {
		status = brtypes.ToolResultStatusError
	}
	var content []brtypes.ToolResultContentBlock
	switch c := v.Content.(type) {
	case nil:
		content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: ""}}
	case string:
		content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: c}}
	default:
		content = []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberJson{Value: toDocument(c)}}
	}
	return &brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
		ToolUseId: aws.String(v.ToolUseID),
		Content:   content,
		Status:    status,
	}}
}

func encodeTools(defs []*model.ToolDefinition, choice *model.ToolChoice) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	toolList := make([]brtypes.Tool, 0, len(defs))
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}
		sanitized := sanitizeToolName(def.Name)
		if prev, ok := sanToCanon[sanitized]; ok && prev != def.Name {
			return nil, nil, nil, fmt.Errorf("bedrock: tool name %q sanitizes to %q which collides with %q", def.Name, sanitized, prev)
		}
		sanToCanon[sanitized] = def.Name
		canonToSan[def.Name] = sanitized
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(sanitized),
			Description: aws.String(def.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(def.InputSchema)},
		}})
	}
	if len(toolList) == 0 {
		return nil, nil, nil, nil
	}
	cfg := &brtypes.ToolConfiguration{Tools: toolList}
	if choice == nil {
		return cfg, canonToSan, sanToCanon, nil
	}
	switch choice.Mode {
	case "", model.ToolChoiceAuto, model.ToolChoiceNone:
	case model.ToolChoiceAny:
		cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
	case model.ToolChoiceTool:
		sanitized, ok := canonToSan[choice.Name]
		if !ok {
			return nil, nil, nil, fmt.Errorf("bedrock: tool choice name %q does not match any tool", choice.Name)
		}
		cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(sanitized)}}
	default:
		return nil, nil, nil, fmt.Errorf("bedrock: unsupported tool choice mode %q", choice.Mode)
	}
	return cfg, canonToSan, sanToCanon, nil
}

// sanitizeToolName maps a canonical tool identifier to the
// [a-zA-Z0-9_-]{1,64} charset Bedrock requires, replacing disallowed runes
// with '_' and truncating to the documented length limit.
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

func toDocument(v any) document.Interface {
	if v == nil {
		return document.NewLazyDocument(map[string]any{})
	}
	switch raw := v.(type) {
	case json.RawMessage:
		var m any
		if err := json.Unmarshal(raw, &m); err == nil {
			return document.NewLazyDocument(m)
		}
	}
	return document.NewLazyDocument(v)
}

func decodeDocument(doc document.Interface) json.RawMessage {
	if doc == nil {
		return json.RawMessage("{}")
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return json.RawMessage("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

func translateResponse(output *bedrockruntime.ConverseOutput, nameMap map[string]string) (*model.Response, error) {
	if output == nil {
		return nil, errors.New("bedrock: response is nil")
	}
	resp := &model.Response{}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				if v.Value == "" {
					continue
				}
				resp.Content = append(resp.Content, model.Message{
					Role:  model.RoleAssistant,
					Parts: []model.Part{model.TextPart{Text: v.Value}},
				})
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					name = *v.Value.Name
					if canonical, ok := nameMap[name]; ok {
						name = canonical
					}
				}
				var id string
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
					Name:    ident.Tool(name),
					Payload: decodeDocument(v.Value.Input),
					ID:      id,
				})
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(ptrValue(usage.InputTokens)),
			OutputTokens: int(ptrValue(usage.OutputTokens)),
			TotalTokens:  int(ptrValue(usage.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp, nil
}

func ptrValue[T ~int32 | ~int64](ptr *T) T {
	if ptr == nil {
		var zero T
		return zero
	}
	return *ptr
}
