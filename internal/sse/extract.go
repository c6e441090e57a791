package sse

import "strings"

// Kind classifies a buffered line.
type Kind int

const (
	// KindIgnored marks blank lines, comments, and non-data fields.
	KindIgnored Kind = iota
	// KindSentinel marks the end-of-stream payload.
	KindSentinel
	// KindPayload marks a data line carrying a frame.
	KindPayload
)

const (
	// DataPrefix introduces a data field.
	DataPrefix = "data:"
	// DoneSentinel is the payload that terminates a completion stream.
	DoneSentinel = "[DONE]"
)

// String returns a readable kind name.
func (kind Kind) String() string {
	switch kind {
	case KindSentinel:
		return "sentinel"
	case KindPayload:
		return "payload"
	default:
		return "ignored"
	}
}

// Extract classifies line and returns the payload with the data prefix stripped.
// Matching is case-sensitive; a single space after the colon is optional.
func Extract(line string) (Kind, string) {
	if !strings.HasPrefix(line, DataPrefix) {
		return KindIgnored, ""
	}
	payload := strings.TrimPrefix(line, DataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	if strings.TrimSpace(payload) == DoneSentinel {
		return KindSentinel, ""
	}
	if strings.TrimSpace(payload) == "" {
		return KindIgnored, ""
	}
	return KindPayload, payload
}
