package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

// ObjectReader reads newline-delimited JSON objects. Lines that are not valid
// JSON are logged and skipped rather than aborting the stream.
type ObjectReader struct {
	br     *bufio.Reader
	source string
}

// NewObjectReader wraps r; source names the backend in log lines.
func NewObjectReader(r io.Reader, source string) *ObjectReader {
	return &ObjectReader{br: bufio.NewReader(r), source: source}
}

// Next returns the next well-formed JSON object, or io.EOF.
func (r *ObjectReader) Next() (json.RawMessage, error) {
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		eof := errors.Is(err, io.EOF)

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			if json.Valid(line) {
				return json.RawMessage(line), nil
			}
			slog.Warn("skipping malformed frame", "provider", r.source, "frame", truncate(string(line), 200))
		}
		if eof {
			return nil, io.EOF
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
