package config

import "time"

// ProviderConfig defines how deltastream connects to an OpenAI-compatible gateway.
type ProviderConfig struct {
	// APIBaseURL is the base URL for OpenAI-compatible chat completions.
	APIBaseURL string `yaml:"api_base_url"`
	// APIKey is the bearer token used for Authorization.
	APIKey string `yaml:"api_key"`
	// TimeoutMS configures the response header timeout in milliseconds.
	TimeoutMS int `yaml:"timeout_ms"`
	// DefaultModel is used when no flag override is provided.
	DefaultModel string `yaml:"default_model"`
	// ModelAliases maps friendly names (e.g., fast) to provider model ids.
	ModelAliases map[string]string `yaml:"model_aliases"`
}

// Timeout returns TimeoutMS as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Validate reports whether the fields needed to open a live stream are set.
func (p ProviderConfig) Validate() error {
	switch {
	case p.APIBaseURL == "":
		return invalidf("provider.api_base_url is required")
	case p.APIKey == "":
		return invalidf("provider.api_key is required")
	case p.DefaultModel == "":
		return invalidf("provider.default_model is required")
	}
	return nil
}

// ResolveModel returns the model to request.
func ResolveModel(cfg *ProviderConfig, requested string) string {
	// An explicit request takes precedence over the configured default.
	if requested != "" {
		return aliasModel(cfg, requested)
	}
	if cfg == nil {
		return ""
	}
	return aliasModel(cfg, cfg.DefaultModel)
}

// aliasModel resolves an alias to a provider model name.
func aliasModel(cfg *ProviderConfig, name string) string {
	if cfg == nil {
		return name
	}
	if aliased, ok := cfg.ModelAliases[name]; ok {
		return aliased
	}
	return name
}
