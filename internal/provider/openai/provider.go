// Package openai adapts OpenAI-compatible chat completion endpoints. The same
// wire serves DeepSeek-style reasoning backends, which interleave a
// reasoning_content field with the answer content across one frame stream.
package openai

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

// Provider implements provider.Provider for OpenAI-compatible APIs.
type Provider struct {
	id          string
	displayName string
	apiKey      string
	model       string
	maxTokens   int
	headers     map[string]string
	client      *http.Client
	reasoning   bool
	chatURL     string
	modelsURL   string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new OpenAI-compatible provider. A config of type reasoning
// enables the two-phase stream decoding.
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
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		headers:     cfg.Headers,
		client:      client,
		reasoning:   cfg.Type == config.ProviderTypeReasoning,
		chatURL:     baseURL + "/chat/completions",
		modelsURL:   baseURL + "/models",
	}, nil
}

func (p *Provider) ID() string          { return p.id }
func (p *Provider) DisplayName() string { return p.displayName }

// IsAvailable lists models with the configured key.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		header.Set(k, v)
	}
	return provider.ProbeGET(ctx, p.client, p.modelsURL, header)
}

func (p *Provider) Chat(ctx context.Context, req models.RequestConfig) (*provider.Reply, error) {
	payload := p.buildChatPayload(req)

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.chatURL, payload)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
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
	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, provider.NewTransportError(p.id, err)
	}
	result, err := providerResp.toResult(p.reasoning)
	if err != nil {
		return nil, &provider.Error{Provider: p.id, Message: err.Error(), Err: err}
	}
	if result.ModelID == "" {
		result.ModelID = payload.Model
	}
	result.ProviderID = p.id
	return &provider.Reply{ProviderID: p.id, Result: result}, nil
}

func (p *Provider) newStream(body io.ReadCloser) *stream.Reader {
	events := stream.NewEventReader(body)
	var (
		tracker stream.PhaseTracker
		usage   *models.Usage
	)

	decode := func() ([]models.StreamDelta, error) {
		ev, err := events.Next()
		if err != nil {
			return nil, err
		}
		data := strings.TrimSpace(ev.Data)
		if data == stream.DoneSentinel {
			return tracker.Finish(usage), nil
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("skipping malformed frame", "provider", p.id, "err", err)
			return nil, nil
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return nil, &provider.Error{Provider: p.id, Message: chunk.Error.Message}
		}
		if chunk.Usage != nil {
			usage = chunk.Usage.toModel()
		}

		var out []models.StreamDelta
		for _, choice := range chunk.Choices {
			if p.reasoning {
				out = append(out, tracker.Reasoning(choice.Delta.ReasoningContent)...)
			}
			out = append(out, tracker.Content(choice.Delta.Content)...)
		}
		return out, nil
	}

	finish := func() []models.StreamDelta { return tracker.Finish(usage) }
	return stream.NewReader(p.id, body, decode, finish)
}

func (p *Provider) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model         string          `json:"model"`
	Messages      []openAIMessage `json:"messages"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *streamOptions  `json:"stream_options,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   float64         `json:"temperature"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

func (p *Provider) buildChatPayload(req models.RequestConfig) chatPayload {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}

	model := p.model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}

	payload := chatPayload{
		Model:       model,
		Messages:    messages,
		Stream:      req.Stream,
		MaxTokens:   provider.ClampMaxTokens(req.MaxTokens, p.maxTokens),
		Temperature: req.Temperature,
	}
	if req.Stream {
		payload.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return payload
}

type chatResponse struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []chatChoice    `json:"choices"`
	Usage   *usageBlock     `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type chatChunk struct {
	Choices []chunkChoice   `json:"choices"`
	Usage   *usageBlock     `json:"usage,omitempty"`
	Error   *apiErrorObject `json:"error,omitempty"`
}

type chunkChoice struct {
	Delta        openAIMessage `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usageBlock) toModel() *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func (r chatResponse) toResult(reasoning bool) (*models.CompletionResult, error) {
	if r.Error != nil && r.Error.Message != "" {
		return nil, errors.New(r.Error.Message)
	}
	if len(r.Choices) == 0 {
		return nil, errors.New("openai response did not include choices")
	}

	choice := r.Choices[0]
	result := &models.CompletionResult{
		Content: choice.Message.Content,
		ModelID: r.Model,
	}
	if reasoning {
		result.ReasoningText = choice.Message.ReasoningContent
	}
	if u := r.Usage.toModel(); u != nil {
		result.Usage = *u
	}
	return result, nil
}

type apiErrorResponse struct {
	Error apiErrorObject `json:"error"`
}

type apiErrorObject struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func parseAPIError(providerID string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return provider.NewStatusError(providerID, resp.StatusCode, fmt.Sprintf("failed to read error body: %v", err))
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg := apiErr.Error.Message
		if apiErr.Error.Type != "" {
			msg = apiErr.Error.Type + ": " + msg
		}
		return provider.NewStatusError(providerID, resp.StatusCode, msg)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return provider.NewStatusError(providerID, resp.StatusCode, msg)
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
