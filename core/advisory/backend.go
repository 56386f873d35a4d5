package advisory

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider names an advisory backend.
type Provider string

const (
	ProviderNone      Provider = "none"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

var defaultModels = map[Provider]string{
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderOpenAI:    "gpt-5-mini",
	ProviderGemini:    "gemini-2.5-flash",
}

var apiKeyEnv = map[Provider]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// BackendConfig configures a model backend.
type BackendConfig struct {
	Provider    Provider `yaml:"provider" json:"provider"`
	APIKey      string   `yaml:"api_key" json:"-"`
	Model       string   `yaml:"model" json:"model"`
	BaseURL     string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64  `yaml:"temperature" json:"temperature"`
}

// withDefaults fills model, token budget and API key. The key falls back to
// the provider's conventional environment variable.
func (c BackendConfig) withDefaults(p Provider) BackendConfig {
	c.Provider = p
	if c.Model == "" {
		c.Model = defaultModels[p]
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(apiKeyEnv[p])
	}
	return c
}

// Validate checks the configuration.
func (c BackendConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%s advisory: api key is required (set %s)", c.Provider, apiKeyEnv[c.Provider])
	}
	if c.Model == "" {
		return fmt.Errorf("%s advisory: model is required", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%s advisory: temperature must be between 0 and 2", c.Provider)
	}
	return nil
}

// ParseProvider parses a provider name. The empty string means none.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "", ProviderNone:
		return ProviderNone, nil
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
		return p, nil
	case "google":
		return ProviderGemini, nil
	default:
		return ProviderNone, fmt.Errorf("unknown advisory provider %q", name)
	}
}

// NewClassifier builds the backend named by config. It returns a nil
// Classifier for ProviderNone.
func NewClassifier(ctx context.Context, config BackendConfig) (Classifier, error) {
	p, err := ParseProvider(string(config.Provider))
	if err != nil {
		return nil, err
	}

	var (
		backend  Classifier
		buildErr error
	)
	switch p {
	case ProviderAnthropic:
		backend, buildErr = NewAnthropicClassifier(config)
	case ProviderOpenAI:
		backend, buildErr = NewOpenAIClassifier(config)
	case ProviderGemini:
		backend, buildErr = NewGeminiClassifier(ctx, config)
	default:
		return nil, nil
	}
	if buildErr != nil {
		return nil, buildErr
	}
	return backend, nil
}
