package lorem

import (
	"context"
	"io"
	"sync"
	"time"
)

// pacedReader serves SSE events one per Read, waiting delay between them.
type pacedReader struct {
	// ctx bounds the waits.
	ctx context.Context
	// pending holds the unread remainder of the stream.
	pending []string
	// current is the unread part of the event being served.
	current []byte
	// delay is the wait before each event after the first.
	delay time.Duration
	// started reports whether the first event was served.
	started bool
	// done is closed by Close.
	done chan struct{}
	// closeOnce guards done.
	closeOnce sync.Once
}

func newPacedReader(ctx context.Context, events []string, delay time.Duration) *pacedReader {
	return &pacedReader{
		ctx:     ctx,
		pending: append([]string(nil), events...),
		delay:   delay,
		done:    make(chan struct{}),
	}
}

// Read returns at most one event per call.
func (reader *pacedReader) Read(buffer []byte) (int, error) {
	select {
	case <-reader.done:
		return 0, io.ErrClosedPipe
	default:
	}

	if len(reader.current) == 0 {
		if len(reader.pending) == 0 {
			return 0, io.EOF
		}
		if reader.started && reader.delay > 0 {
			timer := time.NewTimer(reader.delay)
			select {
			case <-reader.ctx.Done():
				timer.Stop()
				return 0, reader.ctx.Err()
			case <-reader.done:
				timer.Stop()
				return 0, io.ErrClosedPipe
			case <-timer.C:
			}
		}
		reader.started = true
		reader.current = []byte(reader.pending[0])
		reader.pending = reader.pending[1:]
	}

	n := copy(buffer, reader.current)
	reader.current = reader.current[n:]
	return n, nil
}

// Close unblocks a waiting Read.
func (reader *pacedReader) Close() error {
	reader.closeOnce.Do(func() { close(reader.done) })
	return nil
}
