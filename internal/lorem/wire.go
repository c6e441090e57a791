package lorem

import (
	"encoding/json"
	"fmt"

	"github.com/openclaude/deltastream/internal/llm/openai"
)

// malformedPayload is a truncated frame used to exercise decoder recovery.
const malformedPayload = `{"id":"lorem","choices":[{"delta":{"content":"trunc`

// wireEncoder renders a script in a provider wire format.
type wireEncoder struct {
	// id is the completion or message id.
	id string
	// model is the reported model.
	model string
	// created is the creation time in epoch seconds.
	created int64
}

// openAI renders chat.completion.chunk frames ending in usage and [DONE].
func (encoder wireEncoder) openAI(chunks []string, malformedEvery int, script Script) ([]string, int, error) {
	events := []string{": lorem keep-alive\n\n"}
	malformed := 0

	add := func(choices []openai.StreamChoice, usage *openai.Usage) error {
		frame := openai.StreamResponse{
			ID:      encoder.id,
			Object:  "chat.completion.chunk",
			Created: encoder.created,
			Model:   encoder.model,
			Choices: choices,
			Usage:   usage,
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("marshal chunk: %w", err)
		}
		events = append(events, "data: "+string(data)+"\n\n")
		return nil
	}

	if err := add([]openai.StreamChoice{{Delta: openai.StreamDelta{Role: "assistant"}}}, nil); err != nil {
		return nil, 0, err
	}
	for index, chunk := range chunks {
		if err := add([]openai.StreamChoice{{Delta: openai.StreamDelta{Content: chunk}}}, nil); err != nil {
			return nil, 0, err
		}
		if malformedEvery > 0 && (index+1)%malformedEvery == 0 {
			events = append(events, "data: "+malformedPayload+"\n\n")
			malformed++
		}
	}

	if call := script.ToolCall; call != nil {
		head := openai.StreamToolCallDelta{Index: 0, ID: call.ID, Type: call.Type}
		head.Function.Name = call.Function.Name
		if err := add([]openai.StreamChoice{{Delta: openai.StreamDelta{ToolCalls: []openai.StreamToolCallDelta{head}}}}, nil); err != nil {
			return nil, 0, err
		}
		for _, part := range splitHalves(call.Function.Arguments) {
			fragment := openai.StreamToolCallDelta{Index: 0}
			fragment.Function.Arguments = part
			if err := add([]openai.StreamChoice{{Delta: openai.StreamDelta{ToolCalls: []openai.StreamToolCallDelta{fragment}}}}, nil); err != nil {
				return nil, 0, err
			}
		}
	}

	reason := script.FinishReason
	if err := add([]openai.StreamChoice{{FinishReason: &reason}}, nil); err != nil {
		return nil, 0, err
	}
	usage := script.Usage
	if err := add([]openai.StreamChoice{}, &usage); err != nil {
		return nil, 0, err
	}
	events = append(events, "data: [DONE]\n\n")
	return events, malformed, nil
}

// anthropic renders Messages API events from message_start to message_stop.
func (encoder wireEncoder) anthropic(chunks []string, malformedEvery int, script Script) ([]string, int, error) {
	var events []string
	malformed := 0

	add := func(event any) error {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		var typed struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &typed)
		events = append(events, "event: "+typed.Type+"\ndata: "+string(data)+"\n\n")
		return nil
	}

	steps := []any{
		messageStartEvent{
			Type: "message_start",
			Message: streamMessage{
				ID:      encoder.id,
				Type:    "message",
				Role:    "assistant",
				Model:   encoder.model,
				Content: []any{},
				Usage:   messageUsage{InputTokens: script.Usage.PromptTokens, OutputTokens: 1},
			},
		},
		contentBlockStartEvent{
			Type:         "content_block_start",
			Index:        0,
			ContentBlock: contentBlock{Type: "text"},
		},
	}
	for _, step := range steps {
		if err := add(step); err != nil {
			return nil, 0, err
		}
	}

	for index, chunk := range chunks {
		if err := add(contentBlockDeltaEvent{
			Type:  "content_block_delta",
			Index: 0,
			Delta: blockDelta{Type: "text_delta", Text: chunk},
		}); err != nil {
			return nil, 0, err
		}
		if malformedEvery > 0 && (index+1)%malformedEvery == 0 {
			events = append(events, "event: content_block_delta\ndata: "+malformedPayload+"\n\n")
			malformed++
		}
	}
	if err := add(contentBlockStopEvent{Type: "content_block_stop", Index: 0}); err != nil {
		return nil, 0, err
	}

	if call := script.ToolCall; call != nil {
		if err := add(contentBlockStartEvent{
			Type:         "content_block_start",
			Index:        1,
			ContentBlock: contentBlock{Type: "tool_use", ID: call.ID, Name: call.Function.Name},
		}); err != nil {
			return nil, 0, err
		}
		for _, part := range splitHalves(call.Function.Arguments) {
			if err := add(contentBlockDeltaEvent{
				Type:  "content_block_delta",
				Index: 1,
				Delta: blockDelta{Type: "input_json_delta", PartialJSON: part},
			}); err != nil {
				return nil, 0, err
			}
		}
		if err := add(contentBlockStopEvent{Type: "content_block_stop", Index: 1}); err != nil {
			return nil, 0, err
		}
	}

	closing := []any{
		messageDeltaEvent{
			Type:  "message_delta",
			Delta: messageDelta{StopReason: stopReasonFromFinishReason(script.FinishReason)},
			Usage: messageUsage{OutputTokens: script.Usage.CompletionTokens},
		},
		messageStopEvent{Type: "message_stop"},
	}
	for _, step := range closing {
		if err := add(step); err != nil {
			return nil, 0, err
		}
	}
	return events, malformed, nil
}

// stopReasonFromFinishReason maps OpenAI finish reasons onto Anthropic stop reasons.
func stopReasonFromFinishReason(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return "end_turn"
	}
}

// splitHalves splits text into two non-empty parts when it has at least two bytes.
func splitHalves(text string) []string {
	if len(text) < 2 {
		return []string{text}
	}
	middle := len(text) / 2
	return []string{text[:middle], text[middle:]}
}

// messageStartEvent represents the start of a streaming message.
type messageStartEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
	// Message describes the streaming message.
	Message streamMessage `json:"message"`
}

// streamMessage represents a streaming assistant message.
type streamMessage struct {
	// ID is the message identifier.
	ID string `json:"id"`
	// Type is always "message".
	Type string `json:"type"`
	// Role is "assistant" for streaming output.
	Role string `json:"role"`
	// Model is the model identifier.
	Model string `json:"model"`
	// Content is initially empty for streaming.
	Content []any `json:"content"`
	// StopReason is null until message_delta.
	StopReason any `json:"stop_reason"`
	// StopSequence is null unless a stop sequence matched.
	StopSequence any `json:"stop_sequence"`
	// Usage reports prompt tokens up front.
	Usage messageUsage `json:"usage"`
}

// messageUsage carries token counts.
type messageUsage struct {
	// InputTokens counts prompt tokens.
	InputTokens int `json:"input_tokens,omitempty"`
	// OutputTokens counts completion tokens.
	OutputTokens int `json:"output_tokens"`
}

// contentBlock describes a block at content_block_start.
type contentBlock struct {
	// Type is text or tool_use.
	Type string `json:"type"`
	// Text is empty at block start.
	Text string `json:"text,omitempty"`
	// ID identifies a tool_use block.
	ID string `json:"id,omitempty"`
	// Name is the tool name for tool_use blocks.
	Name string `json:"name,omitempty"`
}

// contentBlockStartEvent represents the start of a streaming content block.
type contentBlockStartEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
	// Index is the content block index.
	Index int `json:"index"`
	// ContentBlock contains the block metadata.
	ContentBlock contentBlock `json:"content_block"`
}

// contentBlockDeltaEvent represents a streaming content delta.
type contentBlockDeltaEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
	// Index is the content block index.
	Index int `json:"index"`
	// Delta contains the incremental update.
	Delta blockDelta `json:"delta"`
}

// blockDelta is a text_delta or input_json_delta payload.
type blockDelta struct {
	// Type is the delta type.
	Type string `json:"type"`
	// Text is the streamed text chunk.
	Text string `json:"text,omitempty"`
	// PartialJSON is a fragment of tool input.
	PartialJSON string `json:"partial_json,omitempty"`
}

// contentBlockStopEvent represents the end of a content block.
type contentBlockStopEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
	// Index is the content block index.
	Index int `json:"index"`
}

// messageDeltaEvent represents message-level stream metadata updates.
type messageDeltaEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
	// Delta reports stop reasons.
	Delta messageDelta `json:"delta"`
	// Usage reports cumulative output tokens.
	Usage messageUsage `json:"usage"`
}

// messageDelta contains message-level metadata changes.
type messageDelta struct {
	// StopReason reports why generation stopped.
	StopReason string `json:"stop_reason,omitempty"`
	// StopSequence reports the stop sequence if applicable.
	StopSequence any `json:"stop_sequence"`
}

// messageStopEvent represents the end of a streaming message.
type messageStopEvent struct {
	// Type identifies the stream event type.
	Type string `json:"type"`
}
