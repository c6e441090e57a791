package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openclaude/deltastream/internal/llm/openai"
)

// Format names a provider wire format.
type Format string

const (
	// FormatOpenAI is the chat.completion.chunk format used by OpenAI-compatible gateways.
	FormatOpenAI Format = "openai"
	// FormatAnthropic is the Messages API event stream.
	FormatAnthropic Format = "anthropic"
)

// ParseFormat resolves a format name, defaulting to OpenAI for an empty value.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatOpenAI:
		return FormatOpenAI, nil
	case FormatAnthropic:
		return FormatAnthropic, nil
	default:
		return "", fmt.Errorf("unknown stream format %q", name)
	}
}

// Decoder turns one event payload into a validated Frame.
// Implementations return a *DecodeError instead of panicking on bad input.
type Decoder interface {
	Decode(payload string) (*Frame, error)
}

// NewDecoder returns a fresh decoder for format.
// Decoders may keep per-stream state, so each stream attempt needs its own.
func NewDecoder(format Format) Decoder {
	switch format {
	case FormatAnthropic:
		return newAnthropicDecoder()
	default:
		return openAIDecoder{}
	}
}

// openAIDecoder decodes chat.completion.chunk payloads.
type openAIDecoder struct{}

// Decode validates the frame shape before unmarshalling into the wire structs.
func (openAIDecoder) Decode(payload string) (*Frame, error) {
	if !gjson.Valid(payload) {
		return nil, newDecodeError(payload, errors.New("invalid json"))
	}
	parsed := gjson.Parse(payload)
	if !parsed.IsObject() {
		return nil, newDecodeError(payload, fmt.Errorf("expected object, got %s", parsed.Type))
	}
	if message := parsed.Get("error.message"); message.Exists() {
		return nil, newDecodeError(payload, fmt.Errorf("provider error: %s", message.String()))
	}
	if err := requireField(parsed, "id", gjson.String); err != nil {
		return nil, newDecodeError(payload, err)
	}
	if err := requireField(parsed, "created", gjson.Number); err != nil {
		return nil, newDecodeError(payload, err)
	}
	if err := requireField(parsed, "model", gjson.String); err != nil {
		return nil, newDecodeError(payload, err)
	}
	if choices := parsed.Get("choices"); !choices.IsArray() {
		return nil, newDecodeError(payload, errors.New(`field "choices" must be an array`))
	}

	var wire struct {
		openai.StreamResponse
		// Created shadows the integer field; the timestamp comes from parsed.
		Created json.RawMessage `json:"created"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, newDecodeError(payload, fmt.Errorf("unmarshal frame: %w", err))
	}
	// Fractional and exponent timestamps are valid numbers; keep whole seconds.
	wire.StreamResponse.Created = int64(parsed.Get("created").Float())
	return frameFromWire(wire.StreamResponse), nil
}

// requireField checks that path exists with the given JSON type.
func requireField(parsed gjson.Result, path string, want gjson.Type) error {
	field := parsed.Get(path)
	if !field.Exists() {
		return fmt.Errorf("missing field %q", path)
	}
	if field.Type != want {
		return fmt.Errorf("field %q must be %s, got %s", path, want, field.Type)
	}
	return nil
}

// frameFromWire copies the wire struct into the strict internal frame.
func frameFromWire(wire openai.StreamResponse) *Frame {
	frame := &Frame{
		ID:      wire.ID,
		Object:  wire.Object,
		Created: wire.Created,
		Model:   wire.Model,
		Choices: make([]Choice, 0, len(wire.Choices)),
	}
	if wire.Usage != nil {
		usage := *wire.Usage
		frame.Usage = &usage
	}
	for _, choice := range wire.Choices {
		converted := Choice{
			Index:     choice.Index,
			Role:      choice.Delta.Role,
			Content:   choice.Delta.Content,
			ToolCalls: choice.Delta.ToolCalls,
		}
		// Some gateways send "" instead of null while generation is ongoing.
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			reason := *choice.FinishReason
			converted.FinishReason = &reason
		}
		frame.Choices = append(frame.Choices, converted)
	}
	return frame
}
