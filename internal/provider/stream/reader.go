package stream

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"docmind/internal/models"
	"docmind/internal/provider"
)

// DecodeFunc decodes the next backend frame into zero or more deltas and
// returns io.EOF once the backend body is exhausted.
type DecodeFunc func() ([]models.StreamDelta, error)

// FinishFunc produces the terminal deltas when the backend ended without an
// explicit terminal frame.
type FinishFunc func() []models.StreamDelta

// Reader adapts a frame decoder to provider.Stream. Nothing is read from the
// backend until Recv is called, exactly one Done delta is delivered, and the
// body is closed as soon as the stream terminates, fails, or is closed.
type Reader struct {
	providerID string
	body       io.Closer
	decode     DecodeFunc
	finish     FinishFunc

	pending    []models.StreamDelta
	exhausted  bool
	terminated bool
	err        error

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ provider.Stream = (*Reader)(nil)

// NewReader builds a Reader. finish may be nil, in which case a bare Done
// delta terminates a stream that ended early.
func NewReader(providerID string, body io.Closer, decode DecodeFunc, finish FinishFunc) *Reader {
	if finish == nil {
		finish = func() []models.StreamDelta { return []models.StreamDelta{{Done: true}} }
	}
	return &Reader{providerID: providerID, body: body, decode: decode, finish: finish}
}

// Recv returns the next delta, or io.EOF after the terminal delta.
func (r *Reader) Recv() (models.StreamDelta, error) {
	for len(r.pending) == 0 {
		switch {
		case r.err != nil:
			return models.StreamDelta{}, r.err
		case r.terminated:
			return models.StreamDelta{}, io.EOF
		case r.closed.Load():
			return models.StreamDelta{}, provider.ErrStreamClosed
		case r.exhausted:
			// finish produced no terminal delta
			r.pending = append(r.pending, models.StreamDelta{Done: true})
			continue
		}

		deltas, err := r.decode()
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			deltas = append(deltas, r.finish()...)
		} else if err != nil {
			r.err = provider.NewTransportError(r.providerID, err)
			_ = r.Close()
			return models.StreamDelta{}, r.err
		}
		r.pending = append(r.pending, deltas...)
	}

	delta := r.pending[0]
	r.pending = r.pending[1:]
	if delta.Done {
		r.terminated = true
		r.pending = nil
		_ = r.Close()
	}
	return delta, nil
}

// Close releases the backend body. It may be called from a goroutine other
// than the one blocked in Recv.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.body != nil {
			err = r.body.Close()
		}
	})
	return err
}
