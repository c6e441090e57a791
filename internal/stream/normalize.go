package stream

import (
	"slices"
	"time"
)

// Normalize maps a decoded frame onto the canonical Event.
// Only the first choice is read. It reports false for frames that carry no
// content, tool call fragments, finish reason, or usage.
func Normalize(frame *Frame) (Event, bool) {
	if frame == nil {
		return Event{}, false
	}

	var choice Choice
	if len(frame.Choices) > 0 {
		choice = frame.Choices[0]
	}
	if choice.Content == "" && len(choice.ToolCalls) == 0 && choice.FinishReason == nil && frame.Usage == nil {
		return Event{}, false
	}

	event := Event{
		Content:   choice.Content,
		Role:      RoleAssistant,
		IsDelta:   choice.FinishReason == nil,
		ToolCalls: slices.Clone(choice.ToolCalls),
		Model:     frame.Model,
		ID:        frame.ID,
		Created:   time.UnixMilli(frame.Created * 1000),
	}
	if choice.FinishReason != nil {
		reason := *choice.FinishReason
		event.FinishReason = &reason
	}
	if frame.Usage != nil {
		usage := *frame.Usage
		event.Usage = &usage
	}
	return event, true
}
