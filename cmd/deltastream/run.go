package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openclaude/deltastream/internal/config"
	"github.com/openclaude/deltastream/internal/logging"
	"github.com/openclaude/deltastream/internal/stream"
	"github.com/openclaude/deltastream/internal/streamjson"
)

// runRequest describes one pipeline run.
type runRequest struct {
	// source labels the input in records.
	source string
	// open acquires the byte source for each attempt.
	open stream.Opener
	// format overrides the configured wire format when set.
	format stream.Format
	// singleAttempt disables retries for sources that cannot be reopened.
	singleAttempt bool
}

// runner carries what every subcommand needs to drive a pipeline.
type runner struct {
	// cmd supplies the context and output streams.
	cmd *cobra.Command
	// opts are the parsed flags.
	opts *options
	// cfg is the loaded configuration with flag overrides applied.
	cfg *config.Config
	// logger writes diagnostics to stderr.
	logger *logrus.Logger
}

// newRunner loads configuration and builds the logger for cmd.
func newRunner(cmd *cobra.Command, opts *options) (*runner, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return &runner{
		cmd:    cmd,
		opts:   opts,
		cfg:    cfg,
		logger: logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()),
	}, nil
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Format != "" {
		cfg.Stream.Format = opts.Format
	}
	if opts.OverflowPolicy != "" {
		cfg.Stream.OverflowPolicy = opts.OverflowPolicy
	}
	if opts.MaxBufferBytes > 0 {
		cfg.Stream.MaxBufferBytes = opts.MaxBufferBytes
	}
	if opts.MaxAttempts > 0 {
		cfg.Retry.MaxAttempts = opts.MaxAttempts
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.Log.Format = opts.LogFormat
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// run drives one stream and renders it in the selected output format.
// The folded result is returned even when the stream failed.
func (r *runner) run(request runRequest) (stream.Result, error) {
	pipelineConfig, err := r.cfg.PipelineConfig()
	if err != nil {
		return stream.Result{}, err
	}
	if request.format != "" {
		pipelineConfig.Format = request.format
	}
	if request.singleAttempt {
		pipelineConfig.Retry.MaxAttempts = 1
	}

	var emitter *streamjson.Emitter
	if r.opts.OutputFormat == outputStreamJSON {
		// The emitter is bound to the stream id before iteration starts.
		pipelineConfig.OnMalformed = func(decodeErr *stream.DecodeError) { _ = emitter.Malformed(decodeErr) }
		pipelineConfig.OnOverflow = func(size int) { _ = emitter.Overflow(size) }
		pipelineConfig.Retry.OnError = func(attempt int, err error) { _ = emitter.Retry(attempt, err) }
	}

	ctx, stop := signal.NotifyContext(r.cmd.Context(), os.Interrupt)
	defer stop()

	out := r.cmd.OutOrStdout()
	started := time.Now()
	pipeline := stream.NewPipeline(pipelineConfig, r.logger)
	current := pipeline.Stream(ctx, request.open)
	r.logger.WithFields(logrus.Fields{
		"stream_id": current.ID(),
		"source":    request.source,
		"format":    string(pipelineConfig.Format),
	}).Debug("starting stream")

	switch r.opts.OutputFormat {
	case outputStreamJSON:
		emitter = streamjson.NewEmitter(streamjson.NewWriter(out), current.ID())
		if err := emitter.Init(request.source, pipelineConfig.Format); err != nil {
			return stream.Result{}, err
		}
		result, streamErr := current.Collect(emitter.Delta)
		_ = emitter.Result(result, current.Stats(), time.Since(started), streamErr)
		if streamErr != nil {
			return result, streamErr
		}
		return result, emitter.Err()
	case outputJSON:
		result, streamErr := current.Collect(nil)
		record := streamjson.BuildResultRecord(current.ID(), streamjson.NewUUID(), result, current.Stats(), time.Since(started), streamErr)
		if err := streamjson.NewWriter(out).Write(record); err != nil {
			return result, err
		}
		return result, streamErr
	default:
		printer := newTextPrinter(out)
		var observe func(stream.Event) error
		if !r.opts.Markdown {
			observe = printer.OnEvent
		}
		result, streamErr := current.Collect(observe)
		if r.opts.Markdown && result.Content != "" {
			if err := printer.WriteMarkdown(result.Content); err != nil && streamErr == nil {
				streamErr = err
			}
		}
		printer.EnsureNewline()
		summary := newSummaryRenderer(r.cmd.ErrOrStderr())
		summary.Write(result, current.Stats(), time.Since(started), streamErr)
		return result, streamErr
	}
}
