package claude

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
	apiVersion      = "2023-06-01"
)

// Provider implements Anthropic Messages API interactions. Extended thinking
// blocks are surfaced as a reasoning run ahead of the answer text.
type Provider struct {
	id             string
	displayName    string
	apiKey         string
	model          string
	maxTokens      int
	thinkingBudget int
	headers        map[string]string
	client         *http.Client
	messages       string
	modelsURL      string
}

var _ provider.Provider = (*Provider)(nil)

// New constructs a Claude provider instance.
func New(cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Provider{
		id:             cfg.ID,
		displayName:    cfg.DisplayName,
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		thinkingBudget: cfg.ThinkingBudget,
		headers:        cfg.Headers,
		client:         client,
		messages:       baseURL + "/v1/messages",
		modelsURL:      baseURL + "/v1/models",
	}, nil
}

func (p *Provider) ID() string          { return p.id }
func (p *Provider) DisplayName() string { return p.displayName }

func (p *Provider) IsAvailable(ctx context.Context) bool {
	return provider.ProbeGET(ctx, p.client, p.modelsURL, p.authHeader())
}

func (p *Provider) Chat(ctx context.Context, req models.RequestConfig) (*provider.Reply, error) {
	payload, err := p.buildMessagePayload(req)
	if err != nil {
		return nil, &provider.Error{Provider: p.id, Message: err.Error(), Err: err}
	}

	httpReq, err := p.newRequest(ctx, http.MethodPost, p.messages, payload)
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
	var providerResp messageResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		return nil, provider.NewTransportError(p.id, err)
	}
	result, err := providerResp.toResult()
	if err != nil {
		return nil, &provider.Error{Provider: p.id, Message: err.Error(), Err: err}
	}
	if result.ModelID == "" {
		result.ModelID = payload.Model
	}
	result.ProviderID = p.id
	return &provider.Reply{ProviderID: p.id, Result: result}, nil
}

// newStream decodes named events; message_stop terminates the stream.
func (p *Provider) newStream(body io.ReadCloser) *stream.Reader {
	events := stream.NewEventReader(body)
	var (
		tracker stream.PhaseTracker
		usage   models.Usage
		seen    bool
	)
	finalUsage := func() *models.Usage {
		if !seen {
			return nil
		}
		u := usage
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		return &u
	}

	decode := func() ([]models.StreamDelta, error) {
		ev, err := events.Next()
		if err != nil {
			return nil, err
		}

		var frame streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &frame); err != nil {
			slog.Warn("skipping malformed frame", "provider", p.id, "event", ev.Name, "err", err)
			return nil, nil
		}
		name := ev.Name
		if name == "" {
			name = frame.Type
		}

		switch name {
		case "message_start":
			if frame.Message != nil {
				usage.PromptTokens = frame.Message.Usage.InputTokens
				usage.CompletionTokens = frame.Message.Usage.OutputTokens
				seen = true
			}
		case "content_block_delta":
			if frame.Delta == nil {
				return nil, nil
			}
			switch frame.Delta.Type {
			case "thinking_delta":
				return tracker.Reasoning(frame.Delta.Thinking), nil
			case "text_delta":
				return tracker.Content(frame.Delta.Text), nil
			}
		case "message_delta":
			if frame.Usage != nil {
				usage.CompletionTokens = frame.Usage.OutputTokens
				seen = true
			}
		case "message_stop":
			return tracker.Finish(finalUsage()), nil
		case "error":
			msg := "stream error"
			if frame.Error != nil && frame.Error.Message != "" {
				msg = frame.Error.Message
			}
			return nil, &provider.Error{Provider: p.id, Message: msg}
		}
		return nil, nil
	}

	finish := func() []models.StreamDelta { return tracker.Finish(finalUsage()) }
	return stream.NewReader(p.id, body, decode, finish)
}

func (p *Provider) authHeader() http.Header {
	header := http.Header{}
	header.Set("x-api-key", p.apiKey)
	header.Set("anthropic-version", apiVersion)
	for k, v := range p.headers {
		header.Set(k, v)
	}
	return header
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
	for k, vs := range p.authHeader() {
		req.Header[k] = vs
	}

	return req, nil
}

type messagePayload struct {
	Model       string          `json:"model"`
	Messages    []message       `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Stream      bool            `json:"stream,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

func (p *Provider) buildMessagePayload(req models.RequestConfig) (messagePayload, error) {
	messages := make([]message, 0, len(req.Messages))
	var systemParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				systemParts = append(systemParts, msg.Content)
			}
		default:
			messages = append(messages, message{
				Role:    msg.Role,
				Content: []contentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}

	if len(messages) == 0 {
		return messagePayload{}, errors.New("claude request requires at least one non-system message")
	}

	model := p.model
	if req.ModelOverride != "" {
		model = req.ModelOverride
	}

	payload := messagePayload{
		Model:       model,
		Messages:    messages,
		MaxTokens:   provider.ClampMaxTokens(req.MaxTokens, p.maxTokens),
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if len(systemParts) > 0 {
		payload.System = strings.Join(systemParts, "\n\n")
	}
	if p.thinkingBudget > 0 {
		// max_tokens counts the thinking budget, and the API only accepts
		// temperature 1 while thinking is enabled.
		payload.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: p.thinkingBudget}
		if payload.MaxTokens <= p.thinkingBudget {
			payload.MaxTokens += p.thinkingBudget
		}
		payload.Temperature = 1
	}
	return payload, nil
}

type messageResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Usage      usageBlock     `json:"usage"`
	StopReason string         `json:"stop_reason"`
	Error      *apiError      `json:"error,omitempty"`
}

type usageBlock struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamEvent struct {
	Type    string           `json:"type"`
	Message *messageResponse `json:"message,omitempty"`
	Delta   *streamDelta     `json:"delta,omitempty"`
	Usage   *usageBlock      `json:"usage,omitempty"`
	Error   *apiError        `json:"error,omitempty"`
}

type streamDelta struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

func (r messageResponse) toResult() (*models.CompletionResult, error) {
	if r.Error != nil && r.Error.Message != "" {
		return nil, errors.New(r.Error.Message)
	}
	if len(r.Content) == 0 {
		return nil, errors.New("claude response missing content blocks")
	}

	var text, thinking strings.Builder
	for _, block := range r.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
		default:
			slog.Debug("ignoring claude content block", "type", block.Type)
		}
	}

	return &models.CompletionResult{
		Content:       text.String(),
		ReasoningText: thinking.String(),
		ModelID:       r.Model,
		Usage: models.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}, nil
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func parseAPIError(providerID string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return provider.NewStatusError(providerID, resp.StatusCode, fmt.Sprintf("failed to read error body: %v", err))
	}

	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return provider.NewStatusError(providerID, resp.StatusCode, fmt.Sprintf("%s: %s", apiErr.Error.Type, apiErr.Error.Message))
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
