package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docmind/internal/models"
)

func TestEventFor(t *testing.T) {
	usage := &models.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}
	tests := []struct {
		name  string
		delta models.StreamDelta
		want  StreamEvent
	}{
		{
			name:  "open marker",
			delta: models.StreamDelta{Marker: models.MarkerReasoningOpen, ReasoningPhase: true},
			want:  StreamEvent{Name: EventReasoningStart, Payload: struct{}{}},
		},
		{
			name:  "reasoning text",
			delta: models.StreamDelta{Content: "hmm", ReasoningPhase: true},
			want:  StreamEvent{Name: EventReasoning, Payload: deltaPayload{Content: "hmm"}},
		},
		{
			name:  "close marker",
			delta: models.StreamDelta{Marker: models.MarkerReasoningClose},
			want:  StreamEvent{Name: EventReasoningEnd, Payload: struct{}{}},
		},
		{
			name:  "content",
			delta: models.StreamDelta{Content: "answer"},
			want:  StreamEvent{Name: EventDelta, Payload: deltaPayload{Content: "answer"}},
		},
		{
			name:  "done with usage",
			delta: models.StreamDelta{Done: true, Usage: usage},
			want:  StreamEvent{Name: EventDone, Payload: donePayload{Provider: "p", Usage: &Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}}},
		},
		{
			name:  "done without usage",
			delta: models.StreamDelta{Done: true},
			want:  StreamEvent{Name: EventDone, Payload: donePayload{Provider: "p"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EventFor(tc.delta, "p"))
		})
	}
}

func TestErrorEvent(t *testing.T) {
	ev := ErrorEvent("stream interrupted", "upstream_error")
	assert.Equal(t, EventError, ev.Name)
	assert.Equal(t, errorPayload{Message: "stream interrupted", Type: "upstream_error"}, ev.Payload)
}
