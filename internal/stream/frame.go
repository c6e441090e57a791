package stream

import (
	"time"

	"github.com/openclaude/deltastream/internal/llm/openai"
)

// RoleAssistant is the role carried by every normalized model event.
const RoleAssistant = "assistant"

// Usage is the token accounting record reported by providers.
type Usage = openai.Usage

// ToolCallDelta is one streamed tool call fragment.
type ToolCallDelta = openai.StreamToolCallDelta

// Frame is a validated provider completion-stream message.
type Frame struct {
	// ID is the provider completion id.
	ID string
	// Object is the provider frame kind.
	Object string
	// Created is the provider timestamp in epoch seconds.
	Created int64
	// Model is the model that produced the frame.
	Model string
	// Choices holds the per-choice deltas in wire order.
	Choices []Choice
	// Usage is set on frames that carry token accounting.
	Usage *Usage
}

// Choice is one choice delta within a frame.
type Choice struct {
	// Index is the provider choice index.
	Index int
	// Role is the announced role, usually only on the first frame.
	Role string
	// Content is the text fragment.
	Content string
	// ToolCalls holds tool call fragments.
	ToolCalls []ToolCallDelta
	// FinishReason is set on the frame that ends generation.
	FinishReason *string
}

// Event is the canonical delta unit handed to consumers.
type Event struct {
	// Content is the text fragment, possibly empty.
	Content string `json:"content"`
	// Role is always "assistant".
	Role string `json:"role"`
	// IsDelta is false once a finish reason arrives.
	IsDelta bool `json:"is_delta"`
	// FinishReason reports why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
	// ToolCalls holds tool call fragments carried by this delta.
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
	// Usage is set when the source frame carried token accounting.
	Usage *Usage `json:"usage,omitempty"`
	// Model is the source model name.
	Model string `json:"model,omitempty"`
	// ID is the source completion id.
	ID string `json:"id,omitempty"`
	// Created is the provider creation time.
	Created time.Time `json:"created"`
}

// Termination records how a stream ended.
type Termination string

const (
	// TerminationNone means the outcome is unknown, as for a bare event sequence.
	TerminationNone Termination = ""
	// TerminationSentinel means the [DONE] sentinel was observed.
	TerminationSentinel Termination = "sentinel"
	// TerminationFinishReason means the source ended after a finish reason without a sentinel.
	TerminationFinishReason Termination = "finish_reason"
	// TerminationEndOfStream means the source ended with neither sentinel nor finish reason.
	TerminationEndOfStream Termination = "end_of_stream"
	// TerminationError means the stream failed.
	TerminationError Termination = "error"
)

// Result is the terminal fold of an event sequence.
type Result struct {
	// Content is every content fragment concatenated in arrival order.
	Content string `json:"content"`
	// Usage is the last usage record observed.
	Usage *Usage `json:"usage,omitempty"`
	// FinishReason is the last finish reason observed.
	FinishReason *string `json:"finish_reason,omitempty"`
	// ToolCalls are complete tool calls assembled from fragments.
	ToolCalls []openai.ToolCall `json:"tool_calls,omitempty"`
	// ID is the first completion id observed.
	ID string `json:"id,omitempty"`
	// Model is the first model name observed.
	Model string `json:"model,omitempty"`
	// Termination records how the stream ended.
	Termination Termination `json:"termination"`
	// Events is every event consumed, in order.
	Events []Event `json:"events"`
}
