package nvidia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fxsettle/confirm-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-ai/deepseek-r1", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.6, *req.Temperature, 1e-9)

		resp := ChatCompletionResponse{
			ID:    "cmpl-1",
			Model: req.Model,
			Choices: []Choice{
				{Index: 0, Message: Message{Role: "assistant", Content: `{"TradeType":"FX"}`}},
			},
			Usage: Usage{PromptTokens: 100, CompletionTokens: 20},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	temperature := 0.6
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "parse this"},
			{Role: "user", Content: "confirmation text"},
		},
		Temperature: &temperature,
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, `{"TradeType":"FX"}`, resp.Choices[0].Message.Content)
	assert.Equal(t, 100, resp.Usage.PromptTokens)
}

func TestChatCompletion_ModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "custom/model", req.Model)
		require.NoError(t, json.NewEncoder(w).Encode(ChatCompletionResponse{}))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "custom/model"})
	require.NoError(t, err)
}

func TestChatCompletion_RetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Content: "ok"}}},
		}))
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL)).(*httpClient)
	c.retry = resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}

	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
	assert.Equal(t, 2, calls)
}

func TestChatCompletion_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRequestsPerMinute(t *testing.T) {
	c := NewClient("k", WithRequestsPerMinute(60)).(*httpClient)
	assert.NotNil(t, c.limiter)

	c = NewClient("k", WithRequestsPerMinute(0)).(*httpClient)
	assert.Nil(t, c.limiter)
}
