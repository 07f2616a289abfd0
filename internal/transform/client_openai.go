package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultOpenAIBaseURL is the public OpenAI endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements Client for OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// OpenAIMessage represents a message in the conversation.
type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIRequest represents the API request structure.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
}

// OpenAIResponse represents the API response structure.
type OpenAIResponse struct {
	Choices []struct {
		Message OpenAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(config ClientConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults(DefaultOpenAIBaseURL, "o3-2025-04-16")
	return &OpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// reasoningModel matches the o-series, which only accept the default temperature.
var reasoningModel = regexp.MustCompile(`^o\d`)

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	c.logger.Debug("openai request",
		zap.String("model", c.config.Model),
		zap.Int("system_len", len(systemPrompt)),
		zap.Int("user_len", len(userPrompt)))

	if c.config.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	reqBody := OpenAIRequest{
		Model: c.config.Model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	if !reasoningModel.MatchString(c.config.Model) {
		temp := c.config.Temperature
		reqBody.Temperature = &temp
	}

	body, err := postJSON(ctx, c.httpClient,
		strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.config.APIKey},
		reqBody, c.config, c.logger)
	if err != nil {
		c.logger.Error("openai request failed", zap.Duration("elapsed", time.Since(startTime)), zap.Error(err))
		return "", err
	}

	var openaiResp OpenAIResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if openaiResp.Error != nil {
		return "", fmt.Errorf("API error: %s", openaiResp.Error.Message)
	}
	if len(openaiResp.Choices) == 0 || strings.TrimSpace(openaiResp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyCompletion
	}

	response := openaiResp.Choices[0].Message.Content
	c.logger.Info("openai request completed",
		zap.Duration("elapsed", time.Since(startTime)),
		zap.Int("response_len", len(response)))
	return response, nil
}

// GetModel returns the current model.
func (c *OpenAIClient) GetModel() string {
	return c.config.Model
}
