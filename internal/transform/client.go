package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client defines the interface for LLM providers.
type Client interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ClientConfig is shared by the HTTP-backed clients.
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64

	// Timeout bounds a single request. Zero means no client-side timeout.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for rate
	// limits, server errors and network failures.
	MaxRetries int

	// BaseDelay is the first backoff step; it doubles per retry.
	BaseDelay time.Duration
}

func (c ClientConfig) withDefaults(baseURL, model string) ClientConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// statusError is a non-retryable HTTP failure.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.code, e.body)
}

// postJSON sends body to url and returns the 200 response body. Rate limits
// (429), server errors (5xx) and transport errors are retried with
// exponential backoff and jitter; 401/403 fail fast with ErrAuth.
func postJSON(ctx context.Context, hc *http.Client, url string, headers map[string]string, body any, cfg ClientConfig, logger *zap.Logger) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(cfg.BaseDelay, attempt-1)
			logger.Warn("retrying request",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", cfg.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return data, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w (%d): %s", ErrAuth, resp.StatusCode, truncate(string(data), 200))
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (429)")
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
		default:
			return nil, &statusError{code: resp.StatusCode, body: truncate(string(data), 500)}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoff returns base*2^step with up to 25% jitter.
func backoff(base time.Duration, step int) time.Duration {
	d := base << uint(step)
	return d + time.Duration(rand.Int64N(int64(d)/4+1))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
