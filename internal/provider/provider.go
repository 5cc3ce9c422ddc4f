package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docmind/internal/models"
)

// ErrNoProviderAvailable indicates every registered provider was unavailable or failed.
var ErrNoProviderAvailable = errors.New("no provider available")

// ErrStreamClosed is returned by Recv after the consumer closed the stream.
var ErrStreamClosed = errors.New("stream closed")

// Provider defines the behaviour required to serve generic chat requests.
type Provider interface {
	ID() string
	DisplayName() string
	// IsAvailable performs a cheap reachability or credential probe. It must not
	// block past the context deadline and reports any failure as false.
	IsAvailable(ctx context.Context) bool
	Chat(ctx context.Context, req models.RequestConfig) (*Reply, error)
}

// Stream is a lazy, single-consumption sequence of deltas. Recv returns io.EOF
// after the terminal delta. Close releases the underlying connection and is
// safe to call more than once.
type Stream interface {
	Recv() (models.StreamDelta, error)
	Close() error
}

// Reply carries either a stream or a finished result, depending on RequestConfig.Stream.
type Reply struct {
	ProviderID string
	Stream     Stream
	Result     *models.CompletionResult
}

// Error is a backend transport, auth or rate failure. StatusCode is zero for
// network-level failures such as timeouts or connection resets.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewStatusError builds an Error for a non-success HTTP status.
func NewStatusError(providerID string, status int, message string) *Error {
	return &Error{Provider: providerID, StatusCode: status, Message: message}
}

// NewTransportError builds an Error for a network-level failure. An error that
// is already an *Error is returned unchanged.
func NewTransportError(providerID string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: providerID, Message: err.Error(), Err: err}
}

// Collect drains s into a CompletionResult. Marker deltas are dropped,
// reasoning deltas go to ReasoningText. The stream is always closed.
func Collect(s Stream) (*models.CompletionResult, error) {
	defer s.Close()

	var content, reasoning strings.Builder
	result := &models.CompletionResult{}
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if delta.Usage != nil {
			result.Usage = *delta.Usage
		}
		if delta.IsMarker() {
			continue
		}
		if delta.ReasoningPhase {
			reasoning.WriteString(delta.Content)
		} else {
			content.WriteString(delta.Content)
		}
	}
	result.Content = content.String()
	result.ReasoningText = reasoning.String()
	return result, nil
}
