// Package config loads deltastream settings from YAML, .env files, and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openclaude/deltastream/internal/stream"
)

// Defaults applied after parsing.
const (
	DefaultTimeoutMS      = 600000
	DefaultMaxBufferBytes = stream.DefaultMaxBufferSize
	DefaultReadChunkBytes = 4096
	DefaultMaxAttempts    = 3
	DefaultRetryDelayMS   = 500
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

var (
	// ErrConfigMissing is returned when an explicitly named config file does not exist.
	ErrConfigMissing = errors.New("config missing")
	// ErrConfigInvalid is returned when a field has an unusable value.
	ErrConfigInvalid = errors.New("config invalid")
)

// Config is the full deltastream configuration.
type Config struct {
	// Provider describes the upstream gateway.
	Provider ProviderConfig `yaml:"provider"`
	// Stream tunes parsing.
	Stream StreamConfig `yaml:"stream"`
	// Retry bounds whole-stream retries.
	Retry RetryConfig `yaml:"retry"`
	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Path is the config file that was read, empty when none was found.
	Path string `yaml:"-"`
	// DotEnvPath is the .env file that was read, empty when none was found.
	DotEnvPath string `yaml:"-"`
}

// StreamConfig tunes the parser pipeline.
type StreamConfig struct {
	// Format is the provider wire format (openai|anthropic).
	Format string `yaml:"format"`
	// MaxBufferBytes bounds undelimited text per stream.
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
	// OverflowPolicy is flush, drop, or error.
	OverflowPolicy string `yaml:"overflow_policy"`
	// ReadChunkBytes is the transport read size.
	ReadChunkBytes int `yaml:"read_chunk_bytes"`
}

// RetryConfig bounds retries.
type RetryConfig struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int `yaml:"max_attempts"`
	// DelayMS is the wait between attempts; zero means the default, negative means none.
	DelayMS int `yaml:"delay_ms"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultPath returns the default config path.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".deltastream", "config.yaml"), nil
}

// Load reads the config file, then overlays .env and environment values.
// An empty path means DefaultPath, which may be absent; a named path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working dir: %w", err)
	}
	env, err := loadEnvironment(cwd)
	if err != nil {
		return nil, err
	}
	env.apply(cfg)
	cfg.DotEnvPath = env.dotenvPath

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values.
func (cfg *Config) applyDefaults() {
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = DefaultTimeoutMS
	}
	if cfg.Provider.ModelAliases == nil {
		cfg.Provider.ModelAliases = make(map[string]string)
	}
	if cfg.Stream.Format == "" {
		cfg.Stream.Format = string(stream.FormatOpenAI)
	}
	if cfg.Stream.MaxBufferBytes <= 0 {
		cfg.Stream.MaxBufferBytes = DefaultMaxBufferBytes
	}
	if cfg.Stream.OverflowPolicy == "" {
		cfg.Stream.OverflowPolicy = string(stream.OverflowFlush)
	}
	if cfg.Stream.ReadChunkBytes <= 0 {
		cfg.Stream.ReadChunkBytes = DefaultReadChunkBytes
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.DelayMS == 0 {
		cfg.Retry.DelayMS = DefaultRetryDelayMS
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// validate checks enumerated fields.
func (cfg *Config) validate() error {
	if _, err := stream.ParseFormat(cfg.Stream.Format); err != nil {
		return invalidf("stream.format: %v", err)
	}
	if _, err := stream.ParseOverflowPolicy(cfg.Stream.OverflowPolicy); err != nil {
		return invalidf("stream.overflow_policy: %v", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return invalidf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

// PipelineConfig converts the stream and retry sections for stream.NewPipeline.
func (cfg *Config) PipelineConfig() (stream.Config, error) {
	format, err := stream.ParseFormat(cfg.Stream.Format)
	if err != nil {
		return stream.Config{}, invalidf("stream.format: %v", err)
	}
	policy, err := stream.ParseOverflowPolicy(cfg.Stream.OverflowPolicy)
	if err != nil {
		return stream.Config{}, invalidf("stream.overflow_policy: %v", err)
	}
	delay := time.Duration(max(cfg.Retry.DelayMS, 0)) * time.Millisecond
	return stream.Config{
		Format:         format,
		MaxBufferSize:  cfg.Stream.MaxBufferBytes,
		OverflowPolicy: policy,
		ReadSize:       cfg.Stream.ReadChunkBytes,
		Retry: stream.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       delay,
		},
	}, nil
}

// invalidf wraps ErrConfigInvalid with detail.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, fmt.Sprintf(format, args...))
}
