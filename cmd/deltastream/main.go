package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openclaude/deltastream/internal/stream"
)

// version is the CLI build version.
const version = "0.1.0"

// Output formats accepted by --output-format.
const (
	outputText       = "text"
	outputJSON       = "json"
	outputStreamJSON = "stream-json"
)

// options holds all CLI flags.
type options struct {
	// ConfigPath overrides the config file location.
	ConfigPath string
	// Format selects the provider wire format (openai|anthropic).
	Format string
	// OutputFormat controls output encoding.
	OutputFormat string
	// MaxBufferBytes bounds undelimited text per stream.
	MaxBufferBytes int
	// OverflowPolicy selects flush, drop, or error on buffer overflow.
	OverflowPolicy string
	// MaxAttempts bounds whole-stream attempts, including the first.
	MaxAttempts int
	// LogLevel overrides the configured log level.
	LogLevel string
	// LogFormat overrides the configured log format.
	LogFormat string
	// Markdown renders the finished text with glamour instead of streaming it.
	Markdown bool
	// Verbose forces debug logging.
	Verbose bool
	// Version prints the CLI version.
	Version bool

	// Model overrides the default model for fetch.
	Model string
	// SystemPrompt is sent ahead of the user prompt for fetch.
	SystemPrompt string
	// MaxTokens limits the completion length for fetch.
	MaxTokens int

	// Words is the approximate demo response length.
	Words int
	// MaxWords truncates the demo response and reports finish reason length.
	MaxWords int
	// WordsPerChunk is the number of words per demo delta.
	WordsPerChunk int
	// ToolCall appends a demo tool call.
	ToolCall bool
	// MalformedEvery injects a broken demo frame after every n content frames.
	MalformedEvery int
	// Delay paces demo events.
	Delay time.Duration
}

// main wires Cobra and executes the CLI.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "deltastream",
		Short:        "Parse and aggregate streaming LLM responses",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormatOptions(opts)
		},
	}
	rootCmd.Args = cobra.NoArgs

	applyFlags(rootCmd.PersistentFlags(), opts)
	rootCmd.Flags().BoolVarP(&opts.Version, "version", "v", false, "Output the version number")

	rootCmd.AddCommand(parseCommand(opts))
	rootCmd.AddCommand(fetchCommand(opts))
	rootCmd.AddCommand(demoCommand(opts))
	rootCmd.AddCommand(doctorCommand(opts))
	return rootCmd
}

// applyFlags defines the flags shared by every subcommand.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.SetNormalizeFunc(normalizeFlagName)

	flags.StringVar(&opts.ConfigPath, "config", "", "Config file path (default ~/.deltastream/config.yaml)")
	flags.StringVar(&opts.Format, "format", "", "Provider wire format (openai|anthropic)")
	flags.StringVar(&opts.OutputFormat, "output-format", outputText, "Output format (text|json|stream-json)")
	flags.IntVar(&opts.MaxBufferBytes, "max-buffer-bytes", 0, "Maximum undelimited bytes buffered per stream")
	flags.StringVar(&opts.OverflowPolicy, "overflow-policy", "", "Buffer overflow policy (flush|drop|error)")
	flags.IntVar(&opts.MaxAttempts, "max-attempts", 0, "Maximum stream attempts including the first")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "Log format (text|json)")
	flags.BoolVar(&opts.Markdown, "markdown", false, "Render the finished response as Markdown (text output only)")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Verbose output")
}

// normalizeFlagName maps alternate flag spellings to canonical names.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "max-buffer-size":
		return "max-buffer-bytes"
	case "retries":
		return "max-attempts"
	default:
		return pflag.NormalizedName(name)
	}
}

// validateFormatOptions rejects flag values before any work starts.
func validateFormatOptions(opts *options) error {
	switch opts.OutputFormat {
	case outputText, outputJSON, outputStreamJSON:
	default:
		return fmt.Errorf("unsupported --output-format %q (text|json|stream-json)", opts.OutputFormat)
	}
	if opts.Format != "" {
		if _, err := stream.ParseFormat(opts.Format); err != nil {
			return fmt.Errorf("--format: %w", err)
		}
	}
	if opts.OverflowPolicy != "" {
		if _, err := stream.ParseOverflowPolicy(opts.OverflowPolicy); err != nil {
			return fmt.Errorf("--overflow-policy: %w", err)
		}
	}
	if opts.MaxBufferBytes < 0 {
		return fmt.Errorf("--max-buffer-bytes must not be negative")
	}
	if opts.MaxAttempts < 0 {
		return fmt.Errorf("--max-attempts must not be negative")
	}
	switch opts.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported --log-format %q (text|json)", opts.LogFormat)
	}
	if opts.Markdown && opts.OutputFormat != outputText {
		return fmt.Errorf("--markdown only works with --output-format=text")
	}
	if opts.Verbose && opts.LogLevel != "" {
		return fmt.Errorf("--verbose cannot be combined with --log-level")
	}
	return nil
}
