package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MarshalJSON encodes a Message with each Part tagged by an explicit Kind
// discriminator so decoding can recover the concrete Part type from the
// interface slice.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role  Role           `json:"Role"`
		Parts []any          `json:"Parts,omitempty"`
		Meta  map[string]any `json:"Meta"`
	}
	if len(m.Parts) == 0 {
		return json.Marshal(alias{Role: m.Role, Meta: m.Meta})
	}
	parts := make([]any, 0, len(m.Parts))
	for i, p := range m.Parts {
		enc, err := encodePart(p)
		if err != nil {
			return nil, fmt.Errorf("encode parts[%d]: %w", i, err)
		}
		parts = append(parts, enc)
	}
	return json.Marshal(alias{Role: m.Role, Parts: parts, Meta: m.Meta})
}

// UnmarshalJSON decodes a Message, materializing concrete Part
// implementations.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role  Role              `json:"Role"`
		Parts []json.RawMessage `json:"Parts"`
		Meta  map[string]any    `json:"Meta"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.Role, m.Meta = tmp.Role, tmp.Meta
	if len(tmp.Parts) == 0 {
		m.Parts = nil
		return nil
	}
	m.Parts = make([]Part, 0, len(tmp.Parts))
	for i, raw := range tmp.Parts {
		part, err := decodePart(raw)
		if err != nil {
			return fmt.Errorf("decode parts[%d]: %w", i, err)
		}
		m.Parts = append(m.Parts, part)
	}
	return nil
}

func encodePart(p Part) (any, error) {
	switch v := p.(type) {
	case ThinkingPart:
		return struct {
			Kind string `json:"Kind"`
			ThinkingPart
		}{"thinking", v}, nil
	case TextPart:
		return struct {
			Kind string `json:"Kind"`
			TextPart
		}{"text", v}, nil
	case ToolUsePart:
		return struct {
			Kind string `json:"Kind"`
			ToolUsePart
		}{"tool_use", v}, nil
	case ToolResultPart:
		return struct {
			Kind string `json:"Kind"`
			ToolResultPart
		}{"tool_result", v}, nil
	case CacheCheckpointPart:
		return struct {
			Kind string `json:"Kind"`
		}{"cache_checkpoint"}, nil
	default:
		return nil, fmt.Errorf("unknown part type %T", p)
	}
}

func decodePart(raw json.RawMessage) (Part, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		var text string
		if errText := json.Unmarshal(raw, &text); errText == nil {
			return TextPart{Text: text}, nil
		}
		return nil, fmt.Errorf("decode part object: %w", err)
	}
	kindRaw, ok := obj["Kind"]
	if !ok {
		return nil, errors.New("part payload missing Kind discriminator")
	}
	var kind string
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return nil, fmt.Errorf("decode Kind: %w", err)
	}
	switch kind {
	case "thinking":
		var p ThinkingPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "text":
		var p TextPart
		err := json.Unmarshal(raw, &p)
		return p, err
	case "tool_use":
		var p ToolUsePart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ToolUsePart: %w", err)
		}
		if p.Name == "" {
			return nil, errors.New("ToolUsePart requires Name")
		}
		return p, nil
	case "tool_result":
		var p ToolResultPart
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode ToolResultPart: %w", err)
		}
		if p.ToolUseID == "" {
			return nil, errors.New("ToolResultPart requires ToolUseID")
		}
		return p, nil
	case "cache_checkpoint":
		return CacheCheckpointPart{}, nil
	default:
		return nil, fmt.Errorf("unknown part kind %q", kind)
	}
}
