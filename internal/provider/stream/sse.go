// Package stream turns backend chunk framing into ordered StreamDelta sequences.
package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// DoneSentinel terminates OpenAI-compatible event streams.
const DoneSentinel = "[DONE]"

// Event is one server-sent event frame.
type Event struct {
	Name string
	Data string
}

// EventReader reads `event:` / `data:` frames separated by blank lines.
type EventReader struct {
	br *bufio.Reader
}

// NewEventReader wraps r. Lines are read without a length limit.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{br: bufio.NewReader(r)}
}

// Next returns the next frame carrying data. It returns io.EOF once the
// underlying reader is exhausted and no partial frame remains.
func (r *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
	)
	for {
		line, err := r.br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if hasData {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		}

		if eof {
			if hasData {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			return Event{}, io.EOF
		}
	}
}
