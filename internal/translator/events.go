package translator

import "docmind/internal/models"

// SSE event names written by the chat endpoint.
const (
	EventReasoningStart = "reasoning_start"
	EventReasoning      = "reasoning"
	EventReasoningEnd   = "reasoning_end"
	EventDelta          = "delta"
	EventDone           = "done"
	EventError          = "error"
)

// StreamEvent is one outbound server-sent event.
type StreamEvent struct {
	Name    string
	Payload any
}

type deltaPayload struct {
	Content string `json:"content"`
}

type donePayload struct {
	Provider string `json:"provider"`
	Usage    *Usage `json:"usage,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// EventFor maps a delta onto the event a client renders. Reasoning markers
// become dedicated events so clients never parse tags out of text.
func EventFor(delta models.StreamDelta, providerID string) StreamEvent {
	switch {
	case delta.Marker == models.MarkerReasoningOpen:
		return StreamEvent{Name: EventReasoningStart, Payload: struct{}{}}
	case delta.Marker == models.MarkerReasoningClose:
		return StreamEvent{Name: EventReasoningEnd, Payload: struct{}{}}
	case delta.Done:
		payload := donePayload{Provider: providerID}
		if delta.Usage != nil {
			u := fromUsage(*delta.Usage)
			payload.Usage = &u
		}
		return StreamEvent{Name: EventDone, Payload: payload}
	case delta.ReasoningPhase:
		return StreamEvent{Name: EventReasoning, Payload: deltaPayload{Content: delta.Content}}
	default:
		return StreamEvent{Name: EventDelta, Payload: deltaPayload{Content: delta.Content}}
	}
}

// ErrorEvent is the final marker written when a stream fails after output
// has already been delivered.
func ErrorEvent(message, errType string) StreamEvent {
	return StreamEvent{Name: EventError, Payload: errorPayload{Message: message, Type: errType}}
}
