package stream

import (
	"iter"
	"slices"
	"strings"

	"github.com/openclaude/deltastream/internal/llm/openai"
)

// Aggregator folds events into a Result.
// Content is concatenated; usage and finish reason are last-write-wins.
type Aggregator struct {
	// contentBuilder accumulates streamed text content.
	contentBuilder strings.Builder
	// usage stores the latest usage record.
	usage *Usage
	// finishReason stores the latest finish reason.
	finishReason *string
	// tools merges tool call fragments.
	tools *openai.ToolCallAccumulator
	// events keeps every event for audit and replay.
	events []Event
	// id is the first completion id seen.
	id string
	// model is the first model name seen.
	model string
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		tools: openai.NewToolCallAccumulator(),
	}
}

// Add ingests one event.
func (agg *Aggregator) Add(event Event) {
	agg.events = append(agg.events, event)
	agg.contentBuilder.WriteString(event.Content)
	if agg.id == "" && event.ID != "" {
		agg.id = event.ID
	}
	if agg.model == "" && event.Model != "" {
		agg.model = event.Model
	}
	if event.Usage != nil {
		usage := *event.Usage
		agg.usage = &usage
	}
	if event.FinishReason != nil {
		reason := *event.FinishReason
		agg.finishReason = &reason
	}
	if len(event.ToolCalls) > 0 {
		agg.tools.Apply(event.ToolCalls)
	}
}

// Result returns a snapshot; later Add calls do not affect it.
// Termination is left unset: only the stream that owns the source knows
// whether it ended on the sentinel.
func (agg *Aggregator) Result() Result {
	result := Result{
		Content: agg.contentBuilder.String(),
		ID:      agg.id,
		Model:   agg.model,
		Events:  slices.Clone(agg.events),
	}
	if result.Events == nil {
		result.Events = []Event{}
	}
	if agg.usage != nil {
		usage := *agg.usage
		result.Usage = &usage
	}
	if agg.finishReason != nil {
		reason := *agg.finishReason
		result.FinishReason = &reason
	}
	if agg.tools.Len() > 0 {
		result.ToolCalls = agg.tools.ToolCalls()
	}
	return result
}

// Collect consumes seq to completion and folds it.
// When seq yields an error the partial result is returned with that error and
// TerminationError. A bare sequence cannot carry the [DONE] sentinel, so a
// successful fold leaves Termination as TerminationNone; Stream.Collect fills it in.
func Collect(seq iter.Seq2[Event, error]) (Result, error) {
	agg := NewAggregator()
	for event, err := range seq {
		if err != nil {
			result := agg.Result()
			result.Termination = TerminationError
			return result, err
		}
		agg.Add(event)
	}
	return agg.Result(), nil
}
