package openai

// StreamOptions configures OpenAI-compatible stream behavior.
type StreamOptions struct {
	// IncludeUsage requests token usage in the final stream payload.
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// StreamResponse is one chat.completion.chunk frame as sent on the wire.
type StreamResponse struct {
	// ID is the provider request id.
	ID string `json:"id"`
	// Object is the frame kind, usually "chat.completion.chunk".
	Object string `json:"object,omitempty"`
	// Created is the provider timestamp in epoch seconds.
	Created int64 `json:"created"`
	// Model is the model identifier for the stream.
	Model string `json:"model"`
	// Choices carries incremental delta updates.
	Choices []StreamChoice `json:"choices"`
	// Usage reports tokens when stream_options.include_usage is enabled.
	Usage *Usage `json:"usage,omitempty"`
}

// StreamChoice represents a streaming choice delta.
type StreamChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Delta holds the incremental message update.
	Delta StreamDelta `json:"delta"`
	// FinishReason signals why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamDelta represents incremental message content.
type StreamDelta struct {
	// Role sets the assistant role on the first delta.
	Role string `json:"role,omitempty"`
	// Content holds streamed text.
	Content string `json:"content,omitempty"`
	// ToolCalls streams tool call metadata and arguments.
	ToolCalls []StreamToolCallDelta `json:"tool_calls,omitempty"`
}

// StreamToolCallDelta represents incremental tool call data.
type StreamToolCallDelta struct {
	// Index identifies the tool call position.
	Index int `json:"index"`
	// ID is the tool call id.
	ID string `json:"id,omitempty"`
	// Type is the tool call type (typically "function").
	Type string `json:"type,omitempty"`
	// Function contains tool function deltas.
	Function StreamToolCallFunctionDelta `json:"function,omitempty"`
}

// StreamToolCallFunctionDelta contains incremental tool function fields.
type StreamToolCallFunctionDelta struct {
	// Name identifies the tool name.
	Name string `json:"name,omitempty"`
	// Arguments contains partial JSON argument text.
	Arguments string `json:"arguments,omitempty"`
}
