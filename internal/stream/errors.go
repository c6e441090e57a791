package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/openclaude/deltastream/internal/llm/openai"
)

// Sentinel errors for the parser pipeline.
// These can be checked with errors.Is().
var (
	// ErrMalformedFrame marks a data payload that failed to decode or validate.
	ErrMalformedFrame = errors.New("stream: malformed frame")

	// ErrBufferOverflow marks undelimited input that exceeded the configured buffer size.
	ErrBufferOverflow = errors.New("stream: buffer overflow")

	// ErrSourceRequired is returned when a pipeline is started without an opener.
	ErrSourceRequired = errors.New("stream: source opener is required")
)

// DecodeError describes a single frame that could not be decoded.
// It is reported to observers and never aborts the stream.
type DecodeError struct {
	Payload string // The data payload as received
	Err     error  // Underlying parse or validation failure
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrMalformedFrame, e.Err}
}

// newDecodeError wraps cause for payload.
func newDecodeError(payload string, cause error) *DecodeError {
	return &DecodeError{Payload: payload, Err: cause}
}

// TransportError wraps a failure of the underlying byte source.
type TransportError struct {
	Op  string // "open" or "read"
	Err error  // Underlying transport error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RetryError is the terminal failure returned once retries stop.
type RetryError struct {
	Attempts int   // Number of attempts made
	Err      error // Last error observed
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err describes a whole-connection failure worth another attempt.
// Cancellation, buffer overflows, and client-side API errors are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrBufferOverflow) || errors.Is(err, ErrSourceRequired) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	return true
}
