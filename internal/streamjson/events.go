// Package streamjson renders pipeline output as JSON Lines records.
package streamjson

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/openclaude/deltastream/internal/llm/openai"
	"github.com/openclaude/deltastream/internal/stream"
)

// Record types.
const (
	TypeSystem = "system"
	TypeDelta  = "delta"
	TypeResult = "result"
)

// SystemRecord reports stream lifecycle and diagnostics.
type SystemRecord struct {
	// Type is always "system".
	Type string `json:"type"`
	// Subtype is init, malformed_frame, overflow, or retry.
	Subtype string `json:"subtype"`
	// Source names the input for init records.
	Source string `json:"source,omitempty"`
	// Format is the wire format for init records.
	Format string `json:"format,omitempty"`
	// Attempt is the failed attempt number for retry records.
	Attempt int `json:"attempt,omitempty"`
	// Size is the buffered byte count for overflow records.
	Size int `json:"size,omitempty"`
	// Payload is the rejected payload for malformed_frame records.
	Payload string `json:"payload,omitempty"`
	// Error describes the failure, when there is one.
	Error string `json:"error,omitempty"`
	// StreamID scopes the record to one stream.
	StreamID string `json:"stream_id"`
	// UUID uniquely identifies the record.
	UUID string `json:"uuid"`
}

// DeltaRecord carries one normalized event.
type DeltaRecord struct {
	// Type is always "delta".
	Type string `json:"type"`
	// Event is the normalized event.
	Event stream.Event `json:"event"`
	// StreamID scopes the record to one stream.
	StreamID string `json:"stream_id"`
	// UUID uniquely identifies the record.
	UUID string `json:"uuid"`
}

// ResultRecord is the terminal record of a stream.
type ResultRecord struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype is success or error.
	Subtype string `json:"subtype"`
	// IsError reports whether the stream failed.
	IsError bool `json:"is_error"`
	// DurationMS is the wall time of the stream.
	DurationMS int64 `json:"duration_ms"`
	// Result is the aggregated text.
	Result string `json:"result"`
	// FinishReason is the last finish reason observed.
	FinishReason *string `json:"finish_reason"`
	// Termination records how the stream ended.
	Termination stream.Termination `json:"termination"`
	// Usage is the last usage record observed.
	Usage *openai.Usage `json:"usage"`
	// ToolCalls are the assembled tool calls.
	ToolCalls []openai.ToolCall `json:"tool_calls,omitempty"`
	// Model is the first model name observed.
	Model string `json:"model,omitempty"`
	// Stats are the pipeline counters.
	Stats stream.Stats `json:"stats"`
	// StreamID scopes the record to one stream.
	StreamID string `json:"stream_id"`
	// UUID uniquely identifies the record.
	UUID string `json:"uuid"`
	// Errors holds error messages for error subtypes.
	Errors []string `json:"errors,omitempty"`
}

// Writer emits records as JSON Lines.
type Writer struct {
	writer io.Writer
}

// NewWriter constructs a JSONL writer.
func NewWriter(writer io.Writer) *Writer {
	return &Writer{writer: writer}
}

// Write emits a single record as a JSON line.
func (w *Writer) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal stream-json record: %w", err)
	}
	if _, err := w.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stream-json record: %w", err)
	}
	return nil
}

// NewUUID returns a new UUID string for records.
func NewUUID() string {
	return uuid.NewString()
}

// Emitter writes the records of one stream.
// Write failures are sticky: after the first one every call returns it.
type Emitter struct {
	// writer emits JSONL records.
	writer *Writer
	// streamID scopes every record.
	streamID string
	// newUUID supplies record ids.
	newUUID func() string
	// err is the first write failure.
	err error
}

// NewEmitter returns an emitter for streamID.
func NewEmitter(writer *Writer, streamID string) *Emitter {
	return &Emitter{writer: writer, streamID: streamID, newUUID: NewUUID}
}

// Init announces the stream source and format.
func (emitter *Emitter) Init(source string, format stream.Format) error {
	return emitter.write(SystemRecord{
		Type:     TypeSystem,
		Subtype:  "init",
		Source:   source,
		Format:   string(format),
		StreamID: emitter.streamID,
		UUID:     emitter.newUUID(),
	})
}

// Delta emits one event.
func (emitter *Emitter) Delta(event stream.Event) error {
	return emitter.write(DeltaRecord{
		Type:     TypeDelta,
		Event:    event,
		StreamID: emitter.streamID,
		UUID:     emitter.newUUID(),
	})
}

// Malformed reports a skipped frame.
func (emitter *Emitter) Malformed(decodeErr *stream.DecodeError) error {
	return emitter.write(SystemRecord{
		Type:     TypeSystem,
		Subtype:  "malformed_frame",
		Payload:  decodeErr.Payload,
		Error:    decodeErr.Err.Error(),
		StreamID: emitter.streamID,
		UUID:     emitter.newUUID(),
	})
}

// Overflow reports a buffer overflow.
func (emitter *Emitter) Overflow(size int) error {
	return emitter.write(SystemRecord{
		Type:     TypeSystem,
		Subtype:  "overflow",
		Size:     size,
		StreamID: emitter.streamID,
		UUID:     emitter.newUUID(),
	})
}

// Retry reports a failed attempt.
func (emitter *Emitter) Retry(attempt int, err error) error {
	return emitter.write(SystemRecord{
		Type:     TypeSystem,
		Subtype:  "retry",
		Attempt:  attempt,
		Error:    err.Error(),
		StreamID: emitter.streamID,
		UUID:     emitter.newUUID(),
	})
}

// Result emits the terminal record.
func (emitter *Emitter) Result(result stream.Result, stats stream.Stats, duration time.Duration, streamErr error) error {
	return emitter.write(BuildResultRecord(emitter.streamID, emitter.newUUID(), result, stats, duration, streamErr))
}

// Err returns the first write failure.
func (emitter *Emitter) Err() error {
	return emitter.err
}

func (emitter *Emitter) write(record any) error {
	if emitter.err != nil {
		return emitter.err
	}
	emitter.err = emitter.writer.Write(record)
	return emitter.err
}

// BuildResultRecord converts a folded stream into its terminal record.
func BuildResultRecord(streamID string, recordID string, result stream.Result, stats stream.Stats, duration time.Duration, streamErr error) ResultRecord {
	record := ResultRecord{
		Type:         TypeResult,
		Subtype:      "success",
		DurationMS:   duration.Milliseconds(),
		Result:       result.Content,
		FinishReason: result.FinishReason,
		Termination:  result.Termination,
		Usage:        result.Usage,
		ToolCalls:    result.ToolCalls,
		Model:        result.Model,
		Stats:        stats,
		StreamID:     streamID,
		UUID:         recordID,
	}
	if streamErr != nil {
		record.Subtype = "error"
		record.IsError = true
		record.Errors = []string{streamErr.Error()}
	}
	return record
}
