package stream

import (
	"context"
	"io"
	"sync/atomic"
)

// chunkedSource returns one chunk per Read, then finalErr (io.EOF when nil).
type chunkedSource struct {
	chunks   [][]byte
	finalErr error
	closed   atomic.Bool
	reads    int
}

func newChunkedSource(chunks ...string) *chunkedSource {
	source := &chunkedSource{}
	for _, chunk := range chunks {
		source.chunks = append(source.chunks, []byte(chunk))
	}
	return source
}

func (source *chunkedSource) Read(buffer []byte) (int, error) {
	if source.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	if source.reads >= len(source.chunks) {
		if source.finalErr != nil {
			return 0, source.finalErr
		}
		return 0, io.EOF
	}
	chunk := source.chunks[source.reads]
	source.reads++
	return copy(buffer, chunk), nil
}

func (source *chunkedSource) Close() error {
	source.closed.Store(true)
	return nil
}

// openerFor returns an opener that hands out sources in order and counts opens.
func openerFor(opens *int, sources ...*chunkedSource) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		source := sources[*opens]
		*opens++
		return source, nil
	}
}

// frameLine renders an OpenAI chunk as an SSE event.
func frameLine(payload string) string {
	return "data: " + payload + "\n\n"
}

func stringPointer(value string) *string {
	return &value
}
