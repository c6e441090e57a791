package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvAPIBaseURL = "DELTASTREAM_API_BASE_URL"
	EnvAPIKey     = "DELTASTREAM_API_KEY"
	EnvModel      = "DELTASTREAM_MODEL"
)

// environment resolves override variables from the process and a .env file.
// Process variables win over .env values.
type environment struct {
	// dotenv holds values read from the nearest .env file.
	dotenv map[string]string
	// dotenvPath is the file dotenv was read from, if any.
	dotenvPath string
}

// loadEnvironment reads the nearest .env file at or above cwd, stopping at the project root.
func loadEnvironment(cwd string) (*environment, error) {
	env := &environment{dotenv: map[string]string{}}
	path := findDotEnv(cwd)
	if path == "" {
		return env, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	env.dotenv = values
	env.dotenvPath = path
	return env, nil
}

// lookup returns the first non-empty value for key.
func (env *environment) lookup(key string) (string, bool) {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value, true
	}
	if value := strings.TrimSpace(env.dotenv[key]); value != "" {
		return value, true
	}
	return "", false
}

// apply overlays environment values onto cfg.
func (env *environment) apply(cfg *Config) {
	if value, ok := env.lookup(EnvAPIBaseURL); ok {
		cfg.Provider.APIBaseURL = value
	}
	if value, ok := env.lookup(EnvAPIKey); ok {
		cfg.Provider.APIKey = value
	}
	if value, ok := env.lookup(EnvModel); ok {
		cfg.Provider.DefaultModel = value
	}
}

// findDotEnv walks up from cwd to the project root looking for a .env file.
func findDotEnv(cwd string) string {
	if cwd == "" {
		return ""
	}
	root := findProjectRoot(cwd)
	current := filepath.Clean(cwd)
	for {
		candidate := filepath.Join(current, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return ""
		}
		parent := filepath.Dir(current)
		if current == root || parent == current {
			return ""
		}
		current = parent
	}
}

// findProjectRoot locates the nearest parent directory containing .git.
func findProjectRoot(cwd string) string {
	current := filepath.Clean(cwd)
	for {
		if _, err := os.Stat(filepath.Join(current, ".git")); err == nil {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			// Without a repository root the walk continues to the filesystem root.
			return parent
		}
		current = parent
	}
}
