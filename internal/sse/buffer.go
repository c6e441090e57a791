// Package sse splits server-sent event text into lines and data payloads.
package sse

import (
	"strings"
)

// lineDelimiter separates SSE lines on the wire.
const lineDelimiter = "\n"

// FrameBuffer reassembles complete lines from arbitrarily split text fragments.
// A FrameBuffer is owned by a single stream and is not safe for concurrent use.
type FrameBuffer struct {
	// pending holds text received after the last delimiter.
	pending strings.Builder
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Feed appends fragment and returns every line completed by it, in arrival order.
// Returned lines exclude the delimiter and a trailing carriage return.
func (buffer *FrameBuffer) Feed(fragment string) []string {
	if fragment == "" {
		return nil
	}
	if !strings.Contains(fragment, lineDelimiter) {
		buffer.pending.WriteString(fragment)
		return nil
	}

	buffer.pending.WriteString(fragment)
	text := buffer.pending.String()
	buffer.pending.Reset()

	parts := strings.Split(text, lineDelimiter)
	// The final element is the unterminated remainder, possibly empty.
	remainder := parts[len(parts)-1]
	buffer.pending.WriteString(remainder)

	lines := make([]string, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		lines = append(lines, strings.TrimSuffix(part, "\r"))
	}
	return lines
}

// Flush releases the unterminated remainder as a final line.
// It reports false when nothing is pending.
func (buffer *FrameBuffer) Flush() (string, bool) {
	if buffer.pending.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(buffer.pending.String(), "\r")
	buffer.pending.Reset()
	return line, true
}

// Pending returns the number of buffered bytes awaiting a delimiter.
func (buffer *FrameBuffer) Pending() int {
	return buffer.pending.Len()
}

// Reset discards any buffered text.
func (buffer *FrameBuffer) Reset() {
	buffer.pending.Reset()
}
