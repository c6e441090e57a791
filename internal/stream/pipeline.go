// Package stream parses provider SSE streams into normalized delta events and folds them into results.
//
// Data flows source → fragments → lines → payloads → frames → events:
//
//	pipeline := stream.NewPipeline(cfg, logger)
//	for event, err := range pipeline.Stream(ctx, opener).All() {
//	    if err != nil { handle terminal error }
//	    render(event.Content)
//	}
//
// Per-frame decode failures never end a stream; whole-connection failures do,
// after the retry budget is spent.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/openclaude/deltastream/internal/sse"
)

// maxLoggedPayload bounds payload text copied into log fields.
const maxLoggedPayload = 256

// DefaultMaxBufferSize is the buffer bound applied when Config.MaxBufferSize is not positive.
const DefaultMaxBufferSize = 1 << 20

// Config tunes a Pipeline.
type Config struct {
	// Format selects the provider wire format.
	Format Format
	// MaxBufferSize bounds undelimited text per stream in bytes.
	// Zero or less selects DefaultMaxBufferSize; a pipeline is never unbounded.
	MaxBufferSize int
	// OverflowPolicy selects what happens past MaxBufferSize.
	OverflowPolicy OverflowPolicy
	// ReadSize is the transport read chunk size.
	ReadSize int
	// Retry bounds whole-pipeline retries.
	Retry RetryPolicy
	// OnMalformed observes frames that failed to decode.
	OnMalformed func(err *DecodeError)
	// OnOverflow observes buffer overflows with the buffered size.
	OnOverflow func(size int)
}

// Stats counts what one stream saw. Counters accumulate across attempts.
type Stats struct {
	// Attempts is the number of times the source was opened.
	Attempts int `json:"attempts"`
	// Payloads counts data lines handed to the decoder.
	Payloads int `json:"payloads"`
	// Events counts events yielded to the consumer.
	Events int `json:"events"`
	// Malformed counts payloads that failed to decode.
	Malformed int `json:"malformed"`
	// Filtered counts non-informative frames.
	Filtered int `json:"filtered"`
	// Overflows counts buffer overflows.
	Overflows int `json:"overflows"`
	// Sentinel reports whether [DONE] ended the stream.
	Sentinel bool `json:"sentinel"`
}

// Pipeline builds independent streams that share configuration only.
type Pipeline struct {
	config Config
	logger logrus.FieldLogger
}

// NewPipeline returns a pipeline. A nil logger discards output.
func NewPipeline(config Config, logger logrus.FieldLogger) *Pipeline {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	if config.Format == "" {
		config.Format = FormatOpenAI
	}
	if config.OverflowPolicy == "" {
		config.OverflowPolicy = OverflowFlush
	}
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = DefaultMaxBufferSize
	}
	return &Pipeline{config: config, logger: logger}
}

// Stream is one logical stream. It must be consumed at most once.
type Stream struct {
	// pipeline supplies configuration and logging.
	pipeline *Pipeline
	// ctx bounds the whole stream.
	ctx context.Context
	// open acquires the source for each attempt.
	open Opener
	// id correlates log lines for this stream.
	id string
	// buffer is exclusively owned by this stream.
	buffer *sse.FrameBuffer
	// retry enables restarting before the first event is yielded.
	retry bool
	// logger carries the stream id field.
	logger logrus.FieldLogger
	// stats counts stream activity.
	stats Stats
}

// Stream prepares a stream over open. Nothing is read until All is iterated.
// Failed attempts are retried only while no event has reached the consumer.
func (pipeline *Pipeline) Stream(ctx context.Context, open Opener) *Stream {
	return pipeline.newStream(ctx, open, true)
}

func (pipeline *Pipeline) newStream(ctx context.Context, open Opener, retry bool) *Stream {
	id := uuid.NewString()
	return &Stream{
		pipeline: pipeline,
		ctx:      ctx,
		open:     open,
		id:       id,
		buffer:   sse.NewFrameBuffer(),
		retry:    retry,
		logger:   pipeline.logger.WithField("stream_id", id),
	}
}

// ID returns the stream correlation id.
func (s *Stream) ID() string {
	return s.id
}

// Stats returns the counters collected so far.
func (s *Stream) Stats() Stats {
	return s.stats
}

// All returns the event sequence. A yielded error is terminal.
// Breaking out of the loop releases the underlying source.
func (s *Stream) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if s.open == nil {
			yield(Event{}, ErrSourceRequired)
			return
		}

		yielded := false
		stopped := false
		run := func(ctx context.Context, attempt int) (struct{}, error) {
			s.stats.Attempts = attempt
			keepGoing, err := s.attempt(ctx, func(event Event) bool {
				yielded = true
				s.stats.Events++
				return yield(event, nil)
			})
			stopped = !keepGoing
			return struct{}{}, err
		}

		var err error
		if s.retry {
			_, err = Retry(s.ctx, s.retryPolicy(func() bool { return yielded }), run)
		} else {
			_, err = run(s.ctx, 1)
		}
		if stopped {
			return
		}
		if err != nil {
			s.logger.WithField("error", err.Error()).Warn("stream failed")
			yield(Event{}, err)
			return
		}
		s.logger.WithFields(logrus.Fields{
			"events":    s.stats.Events,
			"malformed": s.stats.Malformed,
			"filtered":  s.stats.Filtered,
			"overflows": s.stats.Overflows,
			"sentinel":  s.stats.Sentinel,
		}).Debug("stream completed")
	}
}

// retryPolicy adapts the configured policy so that no attempt is retried once
// events have reached the consumer, and so that failures are logged.
func (s *Stream) retryPolicy(yielded func() bool) RetryPolicy {
	policy := s.pipeline.config.Retry
	classify := policy.Retryable
	if classify == nil {
		classify = IsRetryable
	}
	policy.Retryable = func(err error) bool {
		return !yielded() && classify(err)
	}
	observe := policy.OnError
	policy.OnError = func(attempt int, err error) {
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Info("stream attempt failed")
		if observe != nil {
			observe(attempt, err)
		}
	}
	return policy
}

// attempt runs the pipeline once. It reports false when the consumer stopped.
func (s *Stream) attempt(ctx context.Context, emit func(Event) bool) (bool, error) {
	reader, err := s.open(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}
		return true, &TransportError{Op: "open", Err: err}
	}
	if reader == nil {
		return true, &TransportError{Op: "open", Err: errors.New("opener returned no reader")}
	}

	s.buffer.Reset()
	s.stats.Sentinel = false
	decoder := NewDecoder(s.pipeline.config.Format)
	options := SourceOptions{
		MaxBufferSize: s.pipeline.config.MaxBufferSize,
		Policy:        s.pipeline.config.OverflowPolicy,
		ReadSize:      s.pipeline.config.ReadSize,
		OnOverflow:    s.reportOverflow,
	}

	for fragment, err := range Fragments(ctx, reader, options) {
		if err != nil {
			return true, err
		}
		for _, line := range s.buffer.Feed(fragment) {
			done, keepGoing := s.handleLine(line, decoder, emit)
			if !keepGoing {
				return false, nil
			}
			if done {
				return true, nil
			}
		}
	}

	if line, ok := s.buffer.Flush(); ok {
		_, keepGoing := s.handleLine(line, decoder, emit)
		if !keepGoing {
			return false, nil
		}
	}
	return true, nil
}

// handleLine runs one line through extraction, decoding, and normalization.
// It reports whether the stream is done and whether the consumer wants more.
func (s *Stream) handleLine(line string, decoder Decoder, emit func(Event) bool) (bool, bool) {
	kind, payload := sse.Extract(line)
	switch kind {
	case sse.KindSentinel:
		s.stats.Sentinel = true
		return true, true
	case sse.KindIgnored:
		return false, true
	}

	s.stats.Payloads++
	frame, err := decoder.Decode(payload)
	if err != nil {
		s.reportMalformed(payload, err)
		return false, true
	}

	event, ok := Normalize(frame)
	if !ok {
		s.stats.Filtered++
		return false, true
	}
	return false, emit(event)
}

// reportMalformed counts, logs, and forwards a decode failure.
func (s *Stream) reportMalformed(payload string, err error) {
	s.stats.Malformed++
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		decodeErr = newDecodeError(payload, err)
	}
	s.logger.WithFields(logrus.Fields{
		"payload": truncate(payload, maxLoggedPayload),
		"error":   decodeErr.Err.Error(),
	}).Warn("skipping malformed frame")
	if s.pipeline.config.OnMalformed != nil {
		s.pipeline.config.OnMalformed(decodeErr)
	}
}

// reportOverflow counts, logs, and forwards a buffer overflow.
func (s *Stream) reportOverflow(size int) {
	s.stats.Overflows++
	s.logger.WithFields(logrus.Fields{
		"buffered": size,
		"limit":    s.pipeline.config.MaxBufferSize,
		"policy":   string(s.pipeline.config.OverflowPolicy),
	}).Warn("stream buffer overflow")
	if s.pipeline.config.OnOverflow != nil {
		s.pipeline.config.OnOverflow(size)
	}
}

// Collect runs the whole pipeline with retries and folds it into a Result.
// On failure the partial result of the last attempt is returned with the error.
func (pipeline *Pipeline) Collect(ctx context.Context, open Opener) (Result, error) {
	policy := pipeline.config.Retry
	observe := policy.OnError
	policy.OnError = func(attempt int, err error) {
		pipeline.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Info("collect attempt failed")
		if observe != nil {
			observe(attempt, err)
		}
	}

	return Retry(ctx, policy, func(ctx context.Context, attempt int) (Result, error) {
		return pipeline.newStream(ctx, open, false).Collect(nil)
	})
}

// Collect folds this stream into a Result. When observe is non-nil it sees each
// event before aggregation; an observe error stops the stream and is returned.
func (s *Stream) Collect(observe func(Event) error) (Result, error) {
	seq := s.All()
	if observe != nil {
		events := seq
		seq = func(yield func(Event, error) bool) {
			for event, err := range events {
				if err == nil {
					if observeErr := observe(event); observeErr != nil {
						yield(Event{}, observeErr)
						return
					}
				}
				if !yield(event, err) {
					return
				}
			}
		}
	}

	result, err := Collect(seq)
	if err == nil {
		result.Termination = s.termination(result)
	}
	return result, err
}

// termination classifies a cleanly ended stream.
func (s *Stream) termination(result Result) Termination {
	switch {
	case s.stats.Sentinel:
		return TerminationSentinel
	case result.FinishReason != nil:
		return TerminationFinishReason
	default:
		return TerminationEndOfStream
	}
}

// truncate shortens text to at most limit bytes for logging.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "...[truncated]"
}
