package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAnthropicBaseURL is the public Anthropic endpoint.
const DefaultAnthropicBaseURL = "https://api.anthropic.com/v1"

const anthropicVersion = "2023-06-01"

// AnthropicClient implements Client for the Anthropic Messages API.
type AnthropicClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// AnthropicMessage represents a message in the conversation.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicRequest represents the API request structure.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []AnthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

// AnthropicResponse represents the API response structure.
type AnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(config ClientConfig, logger *zap.Logger) *AnthropicClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults(DefaultAnthropicBaseURL, "claude-sonnet-4-20250514")
	return &AnthropicClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	c.logger.Debug("anthropic request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	if c.config.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	reqBody := AnthropicRequest{
		Model:     c.config.Model,
		MaxTokens: 16384, // whole-file replies
		System:    systemPrompt,
		Messages: []AnthropicMessage{
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.config.Temperature,
	}

	body, err := postJSON(ctx, c.httpClient,
		strings.TrimRight(c.config.BaseURL, "/")+"/messages",
		map[string]string{
			"x-api-key":         c.config.APIKey,
			"anthropic-version": anthropicVersion,
		},
		reqBody, c.config, c.logger)
	if err != nil {
		c.logger.Error("anthropic request failed", zap.Duration("elapsed", time.Since(startTime)), zap.Error(err))
		return "", err
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if anthropicResp.Error != nil {
		return "", fmt.Errorf("API error: %s", anthropicResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	response := sb.String()
	if strings.TrimSpace(response) == "" {
		return "", ErrEmptyCompletion
	}

	c.logger.Info("anthropic request completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.String("stop_reason", anthropicResp.StopReason),
		zap.Int("response_len", len(response)))
	return response, nil
}

// GetModel returns the current model.
func (c *AnthropicClient) GetModel() string {
	return c.config.Model
}
