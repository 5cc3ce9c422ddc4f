package ollama

import (
	"context"
	"encoding/json"
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
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := New(config.ProviderConfig{
		ID:        "local",
		Type:      config.ProviderTypeOllama,
		BaseURL:   srv.URL,
		Model:     "qwen3",
		MaxTokens: 512,
	}, srv.Client())
	require.NoError(t, err)
	return p
}

func request(stream bool) models.RequestConfig {
	return models.RequestConfig{
		Messages: []models.Message{{Role: models.RoleUser, Content: "hello"}},
		Stream:   stream,
	}
}

func TestChatStreamingNDJSON(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var payload chatPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.Stream)
		assert.Equal(t, 512, payload.Options.NumPredict)

		_, _ = io.WriteString(w, `{"message":{"role":"assistant","thinking":"hmm"}}`+"\n")
		_, _ = io.WriteString(w, "garbage\n")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"Hel"}}`+"\n")
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"lo"},"done":true,"prompt_eval_count":3,"eval_count":2}`+"\n")
	})

	reply, err := p.Chat(context.Background(), request(true))
	require.NoError(t, err)

	var deltas []models.StreamDelta
	for {
		d, err := reply.Stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		deltas = append(deltas, d)
	}

	require.Len(t, deltas, 6)
	assert.Equal(t, models.MarkerReasoningOpen, deltas[0].Marker)
	assert.Equal(t, "hmm", deltas[1].Content)
	assert.Equal(t, models.MarkerReasoningClose, deltas[2].Marker)
	assert.Equal(t, "Hel", deltas[3].Content)
	assert.Equal(t, "lo", deltas[4].Content)
	require.True(t, deltas[5].Done)
	assert.Equal(t, 5, deltas[5].Usage.TotalTokens)
}

func TestChatNonStreaming(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"model":"qwen3","message":{"role":"assistant","content":"Hello"},"done":true,"prompt_eval_count":3,"eval_count":2}`)
	})

	reply, err := p.Chat(context.Background(), request(false))
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply.Result.Content)
	assert.Equal(t, "qwen3", reply.Result.ModelID)
	assert.Equal(t, 5, reply.Result.Usage.TotalTokens)
}

func TestStreamErrorFrame(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"model not loaded"}`+"\n")
	})

	reply, err := p.Chat(context.Background(), request(true))
	require.NoError(t, err)
	_, err = reply.Stream.Recv()
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "model not loaded", perr.Message)
}

func TestIsAvailable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = io.WriteString(w, `{"models":[]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	assert.True(t, p.IsAvailable(context.Background()))
}
