// Package ollama adapts the native Ollama chat API, which streams one JSON
// object per line and marks the final object with done=true.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"docmind/internal/config"
	"docmind/internal/models"
	"docmind/internal/provider"
	"docmind/internal/provider/stream"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "docmind/0.1"
)

// Provider implements provider.Provider against /api/chat.
type Provider struct {
	id          string
	displayName string
	model       string
	maxTokens   int
	headers     map[string]string
	client      *http.Client
	chatURL     string
	tagsURL     string
}

var _ provider.Provider = (*Provider)(nil)

// New creates an Ollama provider. No API key is required.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		id:          cfg.ID,
		displayName: cfg.DisplayName,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		headers:     cfg.Headers,
		client:      client,
		chatURL:     baseURL + "/api/chat",
		tagsURL:     baseURL + "/api/tags",
	}, nil
}

func (p *Provider) ID() string          { return p.id }
func (p *Provider) DisplayName() string { return p.displayName }

// IsAvailable checks that the daemon answers the tag listing.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	header := http.Header{}
	for k, v := range p.headers {
		header.Set(k, v)
	}
	return provider.ProbeGET(ctx, p.client, p.tagsURL, header)
}

func (p *Provider) Chat(ctx context.Context, req models.RequestConfig) (*provider.Reply, error) {
	payload := p.buildChatPayload(req)

	slog.Debug("ollama chat request", "provider", p.id, "model", payload.Model, "message_count", len(payload.Messages))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.NewTransportError(p.id, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, parseAPIError(p.id, httpResp)
	}

	if req.Stream {
		return &provider.Reply{ProviderID: p.id, Stream: p.newStream(httpResp.Body)}, nil
	}

	defer httpResp.Body.Close()
	var frame chatFrame
	if err := json.NewDecoder(httpResp.Body).Decode(&frame); err != nil {
		return nil, provider.NewTransportError(p.id, fmt.Errorf("decode provider response: %w", err))
	}
	if frame.Error != "" {
		return nil, &provider.Error{Provider: p.id, Message: frame.Error}
	}

	modelID := frame.Model
	if modelID == "" {
		modelID = payload.Model
	}
	return &provider.Reply{ProviderID: p.id, Result: &models.CompletionResult{
		Content:       frame.Message.Content,
		ReasoningText: frame.Message.Thinking,
		ModelID:       modelID,
		Usage:         *frame.usage(),
		ProviderID:    p.id,
	}}, nil
}

func (p *Provider) newStream(body io.ReadCloser) *stream.Reader {
	objects := stream.NewObjectReader(body, p.id)
	var tracker stream.PhaseTracker

	decode := func() ([]models.StreamDelta, error) {
		raw, err := objects.Next()
		if err != nil {
			return nil, err
		}
		var frame chatFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Warn("skipping malformed frame", "provider", p.id, "err", err)
			return nil, nil
		}
		if frame.Error != "" {
			return nil, &provider.Error{Provider: p.id, Message: frame.Error}
		}

		out := tracker.Reasoning(frame.Message.Thinking)
		out = append(out, tracker.Content(frame.Message.Content)...)
		if frame.Done {
			out = append(out, tracker.Finish(frame.usage())...)
		}
		return out, nil
	}

	finish := func() []models.StreamDelta { return tracker.Finish(nil) }
	return stream.NewReader(p.id, body, decode, finish)
}

type chatPayload struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type chatFrame struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error,omitempty"`
}

func (f chatFrame) usage() *models.Usage {
	return &models.Usage{
		PromptTokens:     f.PromptEvalCount,
		CompletionTokens: f.EvalCount,
		TotalTokens:      f.PromptEvalCount + f.EvalCount,
	}
}

func (p *Provider) buildChatPayload(req models.RequestConfig) chatPayload {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	model := p.model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}
	return chatPayload{
		Model:    model,
		Messages: messages,
		Stream:   req.Stream,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  provider.ClampMaxTokens(req.MaxTokens, p.maxTokens),
		},
	}
}

func parseAPIError(providerID string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return provider.NewStatusError(providerID, resp.StatusCode, fmt.Sprintf("failed to read error body: %v", err))
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return provider.NewStatusError(providerID, resp.StatusCode, apiErr.Error)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return provider.NewStatusError(providerID, resp.StatusCode, msg)
}
