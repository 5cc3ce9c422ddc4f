package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/models"
	"docmind/internal/provider"
)

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func TestEventReader(t *testing.T) {
	input := ": keep-alive\n\n" +
		"event: message_start\ndata: {\"a\":1}\n\n" +
		"data: line one\r\ndata: line two\r\n\r\n" +
		"data: [DONE]"
	r := NewEventReader(strings.NewReader(input))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Name: "message_start", Data: `{"a":1}`}, ev)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", ev.Data)
	assert.Empty(t, ev.Name)

	ev, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, DoneSentinel, ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestObjectReaderSkipsMalformedLines(t *testing.T) {
	input := "{\"n\":1}\nnot json\n\n{\"n\":2}"
	r := NewObjectReader(strings.NewReader(input), "test")

	obj, err := r.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(obj))

	obj, err = r.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":2}`, string(obj))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPhaseTracker(t *testing.T) {
	var tr PhaseTracker

	out := tr.Reasoning("think")
	require.Len(t, out, 2)
	assert.Equal(t, models.MarkerReasoningOpen, out[0].Marker)
	assert.True(t, out[1].ReasoningPhase)
	assert.True(t, tr.Open())

	out = tr.Reasoning(" more")
	require.Len(t, out, 1)
	assert.Equal(t, " more", out[0].Content)

	out = tr.Content("answer")
	require.Len(t, out, 2)
	assert.Equal(t, models.MarkerReasoningClose, out[0].Marker)
	assert.Equal(t, "answer", out[1].Content)
	assert.False(t, out[1].ReasoningPhase)

	assert.Nil(t, tr.Reasoning("late"), "reasoning after the answer started must be dropped")

	out = tr.Finish(&models.Usage{TotalTokens: 3})
	require.Len(t, out, 1)
	assert.True(t, out[0].Done)
	assert.Equal(t, 3, out[0].Usage.TotalTokens)
}

func TestPhaseTrackerFinishClosesOpenRun(t *testing.T) {
	var tr PhaseTracker
	tr.Reasoning("only thinking")

	out := tr.Finish(nil)
	require.Len(t, out, 2)
	assert.Equal(t, models.MarkerReasoningClose, out[0].Marker)
	assert.True(t, out[1].Done)
}

func TestPhaseTrackerContentOnly(t *testing.T) {
	var tr PhaseTracker
	out := tr.Content("hi")
	require.Len(t, out, 1)
	assert.False(t, out[0].IsMarker())
	assert.Len(t, tr.Finish(nil), 1)
}

func TestReaderDeliversSingleDoneThenEOF(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("")}
	frames := [][]models.StreamDelta{
		{{Content: "a"}},
		nil,
		{{Content: "b"}, {Done: true}},
	}
	i := 0
	decode := func() ([]models.StreamDelta, error) {
		if i >= len(frames) {
			return nil, io.EOF
		}
		f := frames[i]
		i++
		return f, nil
	}

	r := NewReader("p", body, decode, nil)

	var got []string
	for {
		d, err := r.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if d.Done {
			got = append(got, "<done>")
			continue
		}
		got = append(got, d.Content)
	}
	assert.Equal(t, []string{"a", "b", "<done>"}, got)
	assert.Equal(t, 1, body.closed)

	_, err := r.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderSynthesisesDoneOnEarlyEOF(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("")}
	calls := 0
	decode := func() ([]models.StreamDelta, error) {
		calls++
		if calls == 1 {
			return []models.StreamDelta{{Content: "partial"}}, nil
		}
		return nil, io.EOF
	}

	r := NewReader("p", body, decode, nil)
	d, err := r.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", d.Content)

	d, err = r.Recv()
	require.NoError(t, err)
	assert.True(t, d.Done)
	assert.Equal(t, 1, body.closed)
}

func TestReaderWrapsDecodeErrorAndCloses(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("")}
	boom := errors.New("connection reset")
	r := NewReader("p", body, func() ([]models.StreamDelta, error) { return nil, boom }, nil)

	_, err := r.Recv()
	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "p", perr.Provider)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, body.closed)

	_, again := r.Recv()
	assert.Equal(t, err, again)
}

func TestReaderCloseBeforeRecv(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("")}
	decoded := false
	r := NewReader("p", body, func() ([]models.StreamDelta, error) {
		decoded = true
		return nil, io.EOF
	}, nil)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, body.closed)

	_, err := r.Recv()
	assert.ErrorIs(t, err, provider.ErrStreamClosed)
	assert.False(t, decoded, "nothing may be read before the first Recv")
}

func TestReaderCloseFromAnotherGoroutine(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader("p", pr, func() ([]models.StreamDelta, error) {
		buf := make([]byte, 1)
		if _, err := pr.Read(buf); err != nil {
			return nil, err
		}
		return []models.StreamDelta{{Content: string(buf)}}, nil
	}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Recv()
		done <- err
	}()

	require.NoError(t, r.Close())
	assert.Error(t, <-done)

	_, err := r.Recv()
	assert.Error(t, err)
}
