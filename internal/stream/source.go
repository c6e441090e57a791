package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"unicode/utf8"
)

// defaultReadSize is the read chunk used when SourceOptions.ReadSize is unset.
const defaultReadSize = 4096

// OverflowPolicy decides what happens to undelimited text beyond MaxBufferSize.
type OverflowPolicy string

const (
	// OverflowFlush emits the partial text as if it were a complete line.
	OverflowFlush OverflowPolicy = "flush"
	// OverflowDrop discards the partial text and everything up to the next newline.
	OverflowDrop OverflowPolicy = "drop"
	// OverflowError stops the stream with ErrBufferOverflow.
	OverflowError OverflowPolicy = "error"
)

// ParseOverflowPolicy resolves a policy name, defaulting to flush for an empty value.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch OverflowPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", OverflowFlush:
		return OverflowFlush, nil
	case OverflowDrop:
		return OverflowDrop, nil
	case OverflowError:
		return OverflowError, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", name)
	}
}

// Opener acquires the byte source for one stream attempt.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// SourceOptions tunes a single source adapter.
type SourceOptions struct {
	// MaxBufferSize bounds undelimited text in bytes; zero or less disables the bound.
	MaxBufferSize int
	// Policy selects the overflow behavior.
	Policy OverflowPolicy
	// ReadSize is the chunk size passed to Read.
	ReadSize int
	// OnOverflow observes every overflow with the buffered size in bytes.
	OnOverflow func(size int)
}

// Fragments reads reader as UTF-8 text and yields newline-terminated fragments.
// Incomplete multi-byte sequences and undelimited text are held back until
// more input arrives. The reader is closed on every exit path, including a
// consumer that stops iterating early and a cancelled ctx.
func Fragments(ctx context.Context, reader io.ReadCloser, options SourceOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		closer := &onceCloser{closer: reader}
		defer closer.Close()
		// A blocked Read only returns once the body is closed.
		stopWatch := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stopWatch()

		readSize := options.ReadSize
		if readSize <= 0 {
			readSize = defaultReadSize
		}
		chunk := make([]byte, readSize)

		var carry []byte
		var pending strings.Builder
		discarding := false

		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			n, readErr := reader.Read(chunk)
			if n > 0 {
				data := make([]byte, 0, len(carry)+n)
				data = append(data, carry...)
				data = append(data, chunk[:n]...)
				var complete []byte
				complete, carry = splitIncompleteRune(data)
				text := string(complete)

				if discarding {
					newline := strings.IndexByte(text, '\n')
					if newline < 0 {
						text = ""
					} else {
						text = text[newline+1:]
						discarding = false
					}
				}

				pending.WriteString(text)
				buffered := pending.String()
				if last := strings.LastIndexByte(buffered, '\n'); last >= 0 {
					pending.Reset()
					pending.WriteString(buffered[last+1:])
					if !yield(buffered[:last+1], nil) {
						return
					}
				}

				if options.MaxBufferSize > 0 && pending.Len() > options.MaxBufferSize {
					size := pending.Len()
					if options.OnOverflow != nil {
						options.OnOverflow(size)
					}
					switch options.Policy {
					case OverflowDrop:
						pending.Reset()
						discarding = true
					case OverflowError:
						yield("", fmt.Errorf("%w: %d bytes without a line delimiter", ErrBufferOverflow, size))
						return
					default:
						partial := pending.String()
						pending.Reset()
						if !yield(partial+"\n", nil) {
							return
						}
					}
				}
			}

			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					pending.Write(carry)
					if pending.Len() > 0 && !discarding {
						yield(pending.String(), nil)
					}
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield("", ctxErr)
					return
				}
				yield("", &TransportError{Op: "read", Err: readErr})
				return
			}
		}
	}
}

// splitIncompleteRune separates a trailing partial UTF-8 sequence from data.
func splitIncompleteRune(data []byte) ([]byte, []byte) {
	for back := 1; back < utf8.UTFMax && back <= len(data); back++ {
		start := len(data) - back
		if !utf8.RuneStart(data[start]) {
			continue
		}
		if utf8.FullRune(data[start:]) {
			return data, nil
		}
		return data[:start], data[start:]
	}
	return data, nil
}

// onceCloser makes Close idempotent so cancellation and normal exit can both call it.
type onceCloser struct {
	closer io.Closer
	once   sync.Once
	err    error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		c.err = c.closer.Close()
	})
	return c.err
}
