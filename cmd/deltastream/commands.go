package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openclaude/deltastream/internal/config"
	"github.com/openclaude/deltastream/internal/llm/openai"
	"github.com/openclaude/deltastream/internal/lorem"
	"github.com/openclaude/deltastream/internal/stream"
)

// parseCommand replays a recorded SSE stream from a file or stdin.
func parseCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a recorded SSE stream from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(cmd, opts)
			if err != nil {
				return err
			}

			request := runRequest{source: "stdin"}
			if len(args) == 1 && args[0] != "-" {
				path := args[0]
				request.source = path
				request.open = func(ctx context.Context) (io.ReadCloser, error) {
					return os.Open(path)
				}
			} else {
				// Stdin cannot be reopened, so a failed read is final.
				input := cmd.InOrStdin()
				request.open = func(ctx context.Context) (io.ReadCloser, error) {
					return io.NopCloser(input), nil
				}
				request.singleAttempt = true
			}

			_, err = runner.run(request)
			return err
		},
	}
}

// fetchCommand streams a chat completion from the configured gateway.
func fetchCommand(opts *options) *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [prompt]",
		Short: "Stream a chat completion from the configured gateway",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "" && opts.Format != string(stream.FormatOpenAI) {
				return fmt.Errorf("fetch only supports --format %s", stream.FormatOpenAI)
			}
			runner, err := newRunner(cmd, opts)
			if err != nil {
				return err
			}
			if err := runner.cfg.Provider.Validate(); err != nil {
				return fmt.Errorf("provider config invalid: %w", err)
			}

			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			request := buildChatRequest(runner.cfg, opts, prompt)
			client := openai.NewClient(runner.cfg.Provider.APIBaseURL, runner.cfg.Provider.APIKey, runner.cfg.Provider.Timeout())
			runner.logger.WithField("model", request.Model).Debug("opening chat stream")

			_, err = runner.run(runRequest{
				source: runner.cfg.Provider.APIBaseURL,
				format: stream.FormatOpenAI,
				open: func(ctx context.Context) (io.ReadCloser, error) {
					return client.OpenStream(ctx, request)
				},
			})
			return err
		},
	}

	flags := fetchCmd.Flags()
	flags.StringVar(&opts.Model, "model", "", "Model or alias for the request")
	flags.StringVar(&opts.SystemPrompt, "system-prompt", "", "System prompt")
	flags.IntVar(&opts.MaxTokens, "max-tokens", 0, "Maximum completion tokens")
	return fetchCmd
}

// readPrompt joins prompt arguments or falls back to stdin.
func readPrompt(input io.Reader, args []string) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && input != nil {
		data, err := io.ReadAll(input)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return "", errors.New("prompt is required")
	}
	return prompt, nil
}

// buildChatRequest assembles the streaming chat request for prompt.
func buildChatRequest(cfg *config.Config, opts *options, prompt string) *openai.ChatRequest {
	request := &openai.ChatRequest{
		Model:  config.ResolveModel(&cfg.Provider, opts.Model),
		Stream: true,
	}
	if opts.SystemPrompt != "" {
		request.Messages = append(request.Messages, openai.Message{Role: "system", Content: opts.SystemPrompt})
	}
	request.Messages = append(request.Messages, openai.Message{Role: "user", Content: prompt})
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		request.MaxTokens = &maxTokens
	}
	return request
}

// demoCommand streams a synthetic lorem ipsum response through the pipeline.
func demoCommand(opts *options) *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Stream a synthetic response without a gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := newRunner(cmd, opts)
			if err != nil {
				return err
			}
			format, err := stream.ParseFormat(runner.cfg.Stream.Format)
			if err != nil {
				return err
			}

			script, err := lorem.NewGenerator().Script(lorem.Options{
				Words:          opts.Words,
				MaxWords:       opts.MaxWords,
				Format:         format,
				WordsPerChunk:  opts.WordsPerChunk,
				ToolCall:       opts.ToolCall,
				MalformedEvery: opts.MalformedEvery,
				Delay:          opts.Delay,
			})
			if err != nil {
				return err
			}

			result, err := runner.run(runRequest{source: "lorem", format: format, open: script.Opener()})
			if err != nil {
				return err
			}
			if result.Content != script.Text {
				runner.logger.WithFields(logrus.Fields{
					"want_bytes": len(script.Text),
					"got_bytes":  len(result.Content),
				}).Warn("demo content differs from the generated script")
			}
			return nil
		},
	}

	flags := demoCmd.Flags()
	flags.IntVar(&opts.Words, "words", 60, "Approximate number of words to generate")
	flags.IntVar(&opts.MaxWords, "max-words", 0, "Truncate the response and finish with length")
	flags.IntVar(&opts.WordsPerChunk, "words-per-chunk", 1, "Words per delta")
	flags.BoolVar(&opts.ToolCall, "tool-call", false, "Append a tool call")
	flags.IntVar(&opts.MalformedEvery, "malformed-every", 0, "Inject a malformed frame after every n content frames")
	flags.DurationVar(&opts.Delay, "delay", 0, "Delay between events")
	return demoCmd
}

// doctorCommand validates configuration and file permissions.
func doctorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check deltastream configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			out := cmd.OutOrStdout()

			if cfg.Path != "" {
				info, err := os.Stat(cfg.Path)
				if err != nil {
					return fmt.Errorf("stat config: %w", err)
				}
				mode := info.Mode().Perm()
				if mode&0o077 != 0 {
					return fmt.Errorf("config permissions too open: %s", mode)
				}
			}
			fmt.Fprintf(out, "config: %s\n", displayPath(cfg.Path))
			fmt.Fprintf(out, ".env: %s\n", displayPath(cfg.DotEnvPath))

			if _, err := cfg.PipelineConfig(); err != nil {
				return err
			}
			if err := cfg.Provider.Validate(); err != nil {
				return fmt.Errorf("provider config invalid: %w", err)
			}
			fmt.Fprintf(out, "OK: provider %s model %s\n", cfg.Provider.APIBaseURL, config.ResolveModel(&cfg.Provider, ""))
			return nil
		},
	}
}

// displayPath renders an optional path.
func displayPath(path string) string {
	if path == "" {
		return "(none)"
	}
	return path
}
