package transform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient implements Client using the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	config ClientConfig
	logger *zap.Logger
}

// NewGeminiClient creates a new Gemini client. BaseURL overrides the SDK
// endpoint (used by tests and proxies).
func NewGeminiClient(ctx context.Context, config ClientConfig, logger *zap.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	config = config.withDefaults("", "gemini-2.5-pro")

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Timeout: config.Timeout},
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	c.logger.Debug("gemini request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.config.Temperature)),
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.config.BaseDelay, attempt-1)
			c.logger.Warn("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.config.Model, genai.Text(userPrompt), genCfg)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
					return "", fmt.Errorf("%w (%d): %s", ErrAuth, apiErr.Code, apiErr.Message)
				case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
					lastErr = fmt.Errorf("GenAI generate failed: %w", err)
					continue
				}
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("GenAI generate failed: %w", err)
		}

		response := resp.Text()
		if strings.TrimSpace(response) == "" {
			return "", ErrEmptyCompletion
		}
		c.logger.Info("gemini request completed",
			zap.Duration("elapsed", time.Since(startTime)),
			zap.Int("response_len", len(response)))
		return response, nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetModel returns the current model.
func (c *GeminiClient) GetModel() string {
	return c.config.Model
}
