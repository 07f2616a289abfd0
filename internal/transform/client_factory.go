package transform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mender/internal/config"
)

// NewClientFromConfig builds the client for the configured provider. It is
// called once at startup so a missing credential fails before any program
// execution.
func NewClientFromConfig(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s (set %s)", ErrMissingAPIKey, cfg.Provider, keyHint(cfg.Provider))
	}

	cc := ClientConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.ResolvedModel(),
		Temperature: cfg.Temperature,
		Timeout:     cfg.GetTimeout(),
		MaxRetries:  cfg.MaxRetries,
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cc, logger), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(cc, logger), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, cc, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// NewTransformerFromConfig is NewClientFromConfig wrapped in an LLMTransformer
// for sources with the given extension.
func NewTransformerFromConfig(ctx context.Context, cfg config.LLMConfig, ext string, logger *zap.Logger) (*LLMTransformer, error) {
	client, err := NewClientFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewLLMTransformer(client, LanguageForExtension(ext), logger), nil
}

func keyHint(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return "OPENAI_API_KEY_CYC or OPENAI_API_KEY"
	case config.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case config.ProviderGemini:
		return "GEMINI_API_KEY"
	}
	return "llm.api_key"
}
