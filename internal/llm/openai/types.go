package openai

// ChatRequest is the minimal OpenAI-compatible chat/completions request used to open a stream.
type ChatRequest struct {
	// Model is the provider model identifier.
	Model string `json:"model"`
	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`
	// Stream toggles server-sent events in the response.
	Stream bool `json:"stream,omitempty"`
	// StreamOptions asks the gateway for trailing usage frames.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	// Temperature controls randomness, if supported by the backend.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens limits the model output, if supported by the backend.
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	// Role is one of system, user, assistant, or tool.
	Role string `json:"role"`
	// Content carries message text.
	Content string `json:"content,omitempty"`
}

// ToolCall represents a tool invocation assembled from streamed fragments.
type ToolCall struct {
	// ID is the unique tool call id.
	ID string `json:"id"`
	// Type is the tool type, typically "function".
	Type string `json:"type"`
	// Function includes the name and serialized arguments.
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function call payload.
type ToolCallFunction struct {
	// Name identifies which tool to invoke.
	Name string `json:"name"`
	// Arguments contains a JSON string to be parsed by the tool.
	Arguments string `json:"arguments"`
}

// Usage represents token usage info.
type Usage struct {
	// PromptTokens counts input tokens.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens counts output tokens.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}
