package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/config"
	"docmind/internal/models"
	"docmind/internal/provider"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	return newThinkingProvider(t, 0, h)
}

func newThinkingProvider(t *testing.T, budget int, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := New(config.ProviderConfig{
		ID:             "claude",
		Type:           config.ProviderTypeClaude,
		BaseURL:        srv.URL,
		APIKey:         "sk-ant",
		Model:          "claude-test",
		MaxTokens:      2048,
		ThinkingBudget: budget,
	}, srv.Client())
	require.NoError(t, err)
	return p
}

func request(stream bool) models.RequestConfig {
	return models.RequestConfig{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleSystem, Content: "be kind"},
			{Role: models.RoleUser, Content: "hello"},
		},
		Stream:      stream,
		Temperature: 0.2,
	}
}

func writeEvent(w io.Writer, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func TestChatNonStreaming(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var payload messagePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "be brief\n\nbe kind", payload.System)
		assert.Len(t, payload.Messages, 1)
		assert.Equal(t, 2048, payload.MaxTokens)
		assert.Nil(t, payload.Thinking)
		assert.Equal(t, 0.2, payload.Temperature)

		_, _ = io.WriteString(w, `{"model":"claude-test","content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"Hi!"}],"usage":{"input_tokens":4,"output_tokens":2}}`)
	})

	reply, err := p.Chat(context.Background(), request(false))
	require.NoError(t, err)
	assert.Equal(t, "Hi!", reply.Result.Content)
	assert.Equal(t, "hmm", reply.Result.ReasoningText)
	assert.Equal(t, 6, reply.Result.Usage.TotalTokens)
}

func TestChatStreaming(t *testing.T) {
	p := newThinkingProvider(t, 1024, func(w http.ResponseWriter, r *http.Request) {
		var payload messagePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.Stream)
		if assert.NotNil(t, payload.Thinking) {
			assert.Equal(t, thinkingConfig{Type: "enabled", BudgetTokens: 1024}, *payload.Thinking)
		}
		assert.Equal(t, 2048, payload.MaxTokens)
		assert.Equal(t, 1.0, payload.Temperature)

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"usage":{"input_tokens":4,"output_tokens":1}}}`)
		writeEvent(w, "ping", `{"type":"ping"}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"thinking_delta","thinking":"hmm"}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`)
		writeEvent(w, "content_block_delta", `{bad`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"!"}}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","usage":{"output_tokens":2}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	})

	reply, err := p.Chat(context.Background(), request(true))
	require.NoError(t, err)

	res, err := provider.Collect(reply.Stream)
	require.NoError(t, err)
	assert.Equal(t, "Hi!", res.Content)
	assert.Equal(t, "hmm", res.ReasoningText)
	assert.Equal(t, models.Usage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6}, res.Usage)
}

func TestThinkingKeepsAnswerBudget(t *testing.T) {
	p := newThinkingProvider(t, 1024, func(w http.ResponseWriter, r *http.Request) {})

	req := request(false)
	req.MaxTokens = 512
	payload, err := p.buildMessagePayload(req)
	require.NoError(t, err)
	assert.Equal(t, 1536, payload.MaxTokens)
	assert.Greater(t, payload.MaxTokens, payload.Thinking.BudgetTokens)
}

func TestStreamErrorEvent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvent(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	})

	reply, err := p.Chat(context.Background(), request(true))
	require.NoError(t, err)

	_, err = reply.Stream.Recv()
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Overloaded", perr.Message)
}

func TestChatRequiresNonSystemMessage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := p.Chat(context.Background(), models.RequestConfig{
		Messages: []models.Message{{Role: models.RoleSystem, Content: "only system"}},
	})
	var perr *provider.Error
	assert.ErrorAs(t, err, &perr)
}

func TestChatStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	_, err := p.Chat(context.Background(), request(false))
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Equal(t, "rate_limit_error: slow down", perr.Message)
}
