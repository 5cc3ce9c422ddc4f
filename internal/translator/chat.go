package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"docmind/internal/models"
)

// ValidationError reports malformed caller input. It is raised before any
// provider is contacted and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var allowedRoles = map[string]struct{}{
	models.RoleSystem:    {},
	models.RoleUser:      {},
	models.RoleAssistant: {},
}

// ChatMessage is one inbound conversational message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest models the POST /v1/chat payload.
type ChatRequest struct {
	Messages    []ChatMessage
	Stream      bool
	Temperature *float64
	MaxTokens   *int
	Model       string
	Provider    string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Messages    []ChatMessage `json:"messages"`
		Stream      bool          `json:"stream"`
		Temperature *float64      `json:"temperature"`
		MaxTokens   *int          `json:"max_tokens"`
		Model       string        `json:"model"`
		Provider    string        `json:"provider"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	r.Messages = raw.Messages
	r.Stream = raw.Stream
	r.Temperature = raw.Temperature
	r.MaxTokens = raw.MaxTokens
	r.Model = strings.TrimSpace(raw.Model)
	r.Provider = strings.TrimSpace(raw.Provider)

	if r.MaxTokens != nil && *r.MaxTokens < 0 {
		return invalid("max_tokens", "must not be negative")
	}
	return ValidateRequestConfig(r.ToRequestConfig())
}

// ToRequestConfig converts the request into the canonical format.
func (r ChatRequest) ToRequestConfig() models.RequestConfig {
	messages := make([]models.Message, 0, len(r.Messages))
	for _, msg := range r.Messages {
		messages = append(messages, models.Message{
			Role:    strings.ToLower(strings.TrimSpace(msg.Role)),
			Content: msg.Content,
		})
	}

	cfg := models.RequestConfig{
		Messages:          messages,
		Stream:            r.Stream,
		Temperature:       models.DefaultTemperature,
		ModelOverride:     r.Model,
		PreferredProvider: r.Provider,
	}
	if r.Temperature != nil {
		cfg.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		cfg.MaxTokens = *r.MaxTokens
	}
	return cfg
}

// ValidateRequestConfig checks the fields the core depends on. Role
// sequencing is left to the caller.
func ValidateRequestConfig(req models.RequestConfig) error {
	if len(req.Messages) == 0 {
		return invalid("messages", "at least one message is required")
	}
	for i, msg := range req.Messages {
		if _, ok := allowedRoles[msg.Role]; !ok {
			return invalid(fmt.Sprintf("messages[%d].role", i), "invalid role %q", msg.Role)
		}
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		return invalid("temperature", "must be within [0, 1], got %v", req.Temperature)
	}
	if req.MaxTokens < 0 {
		return invalid("max_tokens", "must not be negative")
	}
	return nil
}

// ChatResponse is the JSON body of a non-streaming chat reply.
type ChatResponse struct {
	Content       string `json:"content"`
	ReasoningText string `json:"reasoning_text,omitempty"`
	Model         string `json:"model"`
	Provider      string `json:"provider"`
	Usage         Usage  `json:"usage"`
}

// Usage mirrors models.Usage on the wire.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func fromUsage(u models.Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// FromResult converts a finished completion for the wire.
func FromResult(res *models.CompletionResult) ChatResponse {
	return ChatResponse{
		Content:       res.Content,
		ReasoningText: res.ReasoningText,
		Model:         res.ModelID,
		Provider:      res.ProviderID,
		Usage:         fromUsage(res.Usage),
	}
}
