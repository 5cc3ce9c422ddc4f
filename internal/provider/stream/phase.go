package stream

import (
	"log/slog"

	"docmind/internal/models"
)

// PhaseTracker follows the reasoning/answer transition of a dual-phase
// backend. There is at most one open/close marker pair per response and no
// reasoning delta is emitted after the close marker.
type PhaseTracker struct {
	opened bool
	closed bool
}

// Open reports whether a reasoning run is currently open.
func (t *PhaseTracker) Open() bool { return t.opened && !t.closed }

// Reasoning returns the deltas for a frame's reasoning text.
func (t *PhaseTracker) Reasoning(text string) []models.StreamDelta {
	if text == "" {
		return nil
	}
	if t.closed {
		slog.Debug("dropping reasoning text after answer started", "len", len(text))
		return nil
	}
	var out []models.StreamDelta
	if !t.opened {
		t.opened = true
		out = append(out, models.StreamDelta{ReasoningPhase: true, Marker: models.MarkerReasoningOpen})
	}
	return append(out, models.StreamDelta{Content: text, ReasoningPhase: true})
}

// Content returns the deltas for a frame's answer text, closing an open
// reasoning run first.
func (t *PhaseTracker) Content(text string) []models.StreamDelta {
	if text == "" {
		return nil
	}
	out := t.closeRun()
	t.closed = true
	return append(out, models.StreamDelta{Content: text})
}

// Finish returns the terminal deltas: the close marker when a run is still
// open, then the done delta.
func (t *PhaseTracker) Finish(usage *models.Usage) []models.StreamDelta {
	out := t.closeRun()
	return append(out, models.StreamDelta{Done: true, Usage: usage})
}

func (t *PhaseTracker) closeRun() []models.StreamDelta {
	if !t.Open() {
		return nil
	}
	t.closed = true
	return []models.StreamDelta{{ReasoningPhase: true, Marker: models.MarkerReasoningClose}}
}
