package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Supported transformation providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// DefaultModels is the model used per provider when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenAI:    "o3-2025-04-16",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderGemini:    "gemini-2.5-pro",
}

// LLMConfig configures the code transformation collaborator.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, anthropic, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"` // OpenAI-compatible endpoints, Anthropic proxies
	Temperature float64 `yaml:"temperature"`
	Timeout     string  `yaml:"timeout"` // per request, 0 = none
	MaxRetries  int     `yaml:"max_retries"`
}

// ResolvedModel returns the configured model or the provider default.
func (l LLMConfig) ResolvedModel() string {
	if l.Model != "" {
		return l.Model
	}
	return DefaultModels[l.Provider]
}

// GetTimeout returns the request timeout as a duration (0 = none).
func (l LLMConfig) GetTimeout() time.Duration {
	d, err := parseDuration(l.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// applyEnvOverrides reads the credential and tuning variables for the
// configured provider. OPENAI_API_KEY_CYC wins over OPENAI_API_KEY so a
// dedicated key can be given to mend without touching the shared one.
func (l *LLMConfig) applyEnvOverrides() error {
	switch l.Provider {
	case ProviderOpenAI:
		if key := os.Getenv("OPENAI_API_KEY_CYC"); key != "" {
			l.APIKey = key
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			l.APIKey = key
		}
		if model := os.Getenv("OPENAI_MODEL"); model != "" {
			l.Model = model
		}
		if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
			l.BaseURL = url
		}
		if raw := os.Getenv("OPENAI_TEMPERATURE"); raw != "" {
			temp, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid OPENAI_TEMPERATURE %q: %w", raw, err)
			}
			l.Temperature = temp
		}
	case ProviderAnthropic:
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			l.APIKey = key
		}
	case ProviderGemini:
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			l.APIKey = key
		}
	}
	return nil
}

// Validate checks provider and tuning values. Credentials are checked by the
// client factory, since commands like `mend history` never call the LLM.
func (l LLMConfig) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if l.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", l.Provider, ValidProviders)
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("LLM temperature must be within [0, 2], got %g", l.Temperature)
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("LLM max retries must not be negative, got %d", l.MaxRetries)
	}
	if _, err := parseDuration(l.Timeout); err != nil {
		return fmt.Errorf("invalid llm.timeout: %w", err)
	}
	return nil
}

// SwitchProvider selects another provider after loading, as the --provider
// flag does. Credentials and model loaded for the previous provider are
// dropped and the new provider's environment variables are read.
func (l *LLMConfig) SwitchProvider(provider string) error {
	if provider == l.Provider {
		return nil
	}
	l.Provider = provider
	l.APIKey = ""
	l.Model = ""
	l.BaseURL = ""
	return l.applyEnvOverrides()
}
