package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"
)

// anthropicDecoder maps Messages API stream events onto Frames.
// Message metadata only arrives in message_start, so the decoder carries it
// across the frames of one stream.
type anthropicDecoder struct {
	// id is the message id from message_start.
	id string
	// model is the model from message_start.
	model string
	// created is the local receive time of message_start in epoch seconds.
	created int64
	// promptTokens is the input token count reported at message_start.
	promptTokens int
	// now supplies the clock used for created.
	now func() time.Time
}

func newAnthropicDecoder() *anthropicDecoder {
	return &anthropicDecoder{now: time.Now}
}

// Decode converts one event payload.
// Events without text, tool input, stop reason, or usage yield an empty frame
// that the normalizer filters out.
func (decoder *anthropicDecoder) Decode(payload string) (*Frame, error) {
	if !gjson.Valid(payload) {
		return nil, newDecodeError(payload, errors.New("invalid json"))
	}
	eventType := gjson.Get(payload, "type")
	if eventType.Type != gjson.String {
		return nil, newDecodeError(payload, errors.New(`field "type" must be a string`))
	}
	if eventType.String() == "error" {
		return nil, newDecodeError(payload, fmt.Errorf("provider error: %s", gjson.Get(payload, "error.message").String()))
	}

	var event anthropic.MessageStreamEventUnion
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, newDecodeError(payload, fmt.Errorf("unmarshal event: %w", err))
	}

	switch variant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		decoder.id = variant.Message.ID
		decoder.model = string(variant.Message.Model)
		decoder.created = decoder.now().Unix()
		decoder.promptTokens = int(variant.Message.Usage.InputTokens)
		frame := decoder.frame()
		frame.Choices = []Choice{{Role: RoleAssistant}}
		return frame, nil

	case anthropic.ContentBlockStartEvent:
		frame := decoder.frame()
		choice := Choice{}
		if string(variant.ContentBlock.Type) == "tool_use" {
			choice.ToolCalls = []ToolCallDelta{{
				Index: int(variant.Index),
				ID:    variant.ContentBlock.ID,
				Type:  "function",
			}}
			choice.ToolCalls[0].Function.Name = variant.ContentBlock.Name
		}
		frame.Choices = []Choice{choice}
		return frame, nil

	case anthropic.ContentBlockDeltaEvent:
		frame := decoder.frame()
		choice := Choice{}
		switch string(variant.Delta.Type) {
		case "text_delta":
			choice.Content = variant.Delta.Text
		case "input_json_delta":
			if variant.Delta.PartialJSON != "" {
				choice.ToolCalls = []ToolCallDelta{{Index: int(variant.Index)}}
				choice.ToolCalls[0].Function.Arguments = variant.Delta.PartialJSON
			}
		}
		frame.Choices = []Choice{choice}
		return frame, nil

	case anthropic.MessageDeltaEvent:
		frame := decoder.frame()
		choice := Choice{}
		if stopReason := string(variant.Delta.StopReason); stopReason != "" {
			reason := finishReasonFromStopReason(stopReason)
			choice.FinishReason = &reason
		}
		frame.Choices = []Choice{choice}

		prompt := decoder.promptTokens
		if variant.Usage.InputTokens > 0 {
			prompt = int(variant.Usage.InputTokens)
		}
		completion := int(variant.Usage.OutputTokens)
		frame.Usage = &Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
		return frame, nil

	default:
		// content_block_stop, message_stop, ping, and future event types.
		return decoder.frame(), nil
	}
}

// frame returns an empty frame stamped with the stream metadata.
func (decoder *anthropicDecoder) frame() *Frame {
	return &Frame{
		ID:      decoder.id,
		Object:  "message",
		Created: decoder.created,
		Model:   decoder.model,
	}
}

// finishReasonFromStopReason maps Anthropic stop reasons onto OpenAI finish reasons.
func finishReasonFromStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}
