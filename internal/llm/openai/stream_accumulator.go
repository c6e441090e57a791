package openai

import (
	"strings"
)

// ToolCallAccumulator merges streamed tool call fragments into complete calls.
type ToolCallAccumulator struct {
	// toolStates stores tool call data keyed by streaming index.
	toolStates map[int]*toolCallState
	// toolOrder preserves the order tool calls first appeared.
	toolOrder []int
}

// toolCallState accumulates a single tool call delta sequence.
type toolCallState struct {
	// id is the tool call id.
	id string
	// callType is the tool call type.
	callType string
	// name is the tool function name.
	name string
	// argumentsBuilder accumulates the raw JSON arguments.
	argumentsBuilder strings.Builder
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		toolStates: map[int]*toolCallState{},
	}
}

// Apply ingests tool call fragments from one delta.
func (acc *ToolCallAccumulator) Apply(deltas []StreamToolCallDelta) {
	for _, toolDelta := range deltas {
		state := acc.toolStates[toolDelta.Index]
		if state == nil {
			state = &toolCallState{}
			acc.toolStates[toolDelta.Index] = state
			acc.toolOrder = append(acc.toolOrder, toolDelta.Index)
		}
		if toolDelta.ID != "" {
			state.id = toolDelta.ID
		}
		if toolDelta.Type != "" {
			state.callType = toolDelta.Type
		}
		if toolDelta.Function.Name != "" {
			state.name = toolDelta.Function.Name
		}
		if toolDelta.Function.Arguments != "" {
			state.argumentsBuilder.WriteString(toolDelta.Function.Arguments)
		}
	}
}

// Len returns the number of distinct tool calls seen.
func (acc *ToolCallAccumulator) Len() int {
	return len(acc.toolOrder)
}

// ToolCalls returns tool calls in their first-seen order.
func (acc *ToolCallAccumulator) ToolCalls() []ToolCall {
	calls := make([]ToolCall, 0, len(acc.toolOrder))
	for _, index := range acc.toolOrder {
		state := acc.toolStates[index]
		if state == nil {
			continue
		}
		callType := state.callType
		if callType == "" {
			callType = "function"
		}
		calls = append(calls, ToolCall{
			ID:   state.id,
			Type: callType,
			Function: ToolCallFunction{
				Name:      state.name,
				Arguments: state.argumentsBuilder.String(),
			},
		})
	}
	return calls
}
