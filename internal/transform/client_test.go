package transform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(url string) ClientConfig {
	return ClientConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	}
}

func TestOpenAIClient_CompleteWithSystem(t *testing.T) {
	var got OpenAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"` + "```python\\nok()\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Model = "gpt-4.1"
	cfg.Temperature = 0.2
	reply, err := NewOpenAIClient(cfg, nil).CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "```python\nok()\n```", reply)

	assert.Equal(t, "gpt-4.1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, OpenAIMessage{Role: "system", Content: "sys"}, got.Messages[0])
	assert.Equal(t, OpenAIMessage{Role: "user", Content: "user"}, got.Messages[1])
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestOpenAIClient_ReasoningModelOmitsTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Model = "o3-2025-04-16"
	_, err := NewOpenAIClient(cfg, nil).CompleteWithSystem(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.NotContains(t, raw, "temperature")
}

func TestOpenAIClient_RetriesRateLimitAndServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Write([]byte(`{"choices":[{"message":{"content":"third time"}}]}`))
		}
	}))
	defer srv.Close()

	reply, err := NewOpenAIClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "third time", reply)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load(), "first attempt plus two retries")
}

func TestOpenAIClient_AuthErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClient_BadRequestFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"context length exceeded"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIClient_MissingKey(t *testing.T) {
	cfg := fastConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	_, err := NewOpenAIClient(cfg, nil).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestOpenAIClient_ContextCanceledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.BaseDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOpenAIClient(cfg, nil).CompleteWithSystem(ctx, "s", "u")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnthropicClient_CompleteWithSystem(t *testing.T) {
	var got AnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	reply, err := NewAnthropicClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", reply)

	assert.Equal(t, "claude-sonnet-4-20250514", got.Model)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Content)
	assert.Positive(t, got.MaxTokens)
}

func TestAnthropicClient_ForbiddenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewAnthropicClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestAnthropicClient_APIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	_, err := NewAnthropicClient(fastConfig(srv.URL), nil).CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Overloaded")
}

func TestGeminiClient_CompleteWithSystem(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-pro:generateContent"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"fixed"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), fastConfig(srv.URL), nil)
	require.NoError(t, err)

	reply, err := client.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "fixed", reply)
	assert.Contains(t, body, "systemInstruction")
	assert.Contains(t, body, "contents")
}

func TestGeminiClient_ForbiddenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient(context.Background(), fastConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = client.CompleteWithSystem(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGeminiClient_MissingKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), ClientConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestBackoffGrowsWithJitterBound(t *testing.T) {
	for step := 0; step < 4; step++ {
		base := 100 * time.Millisecond << uint(step)
		d := backoff(100*time.Millisecond, step)
		assert.GreaterOrEqual(t, d, base)
		assert.LessOrEqual(t, d, base+base/4)
	}
}
