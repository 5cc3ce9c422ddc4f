package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/cache"
)

type fakeProvider struct {
	id        string
	available bool
	panics    bool
	err       error
	results   []Result
	calls     atomic.Int32
	lastQuery string
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) IsAvailable(context.Context) bool {
	if f.panics {
		panic("probe")
	}
	return f.available
}

func (f *fakeProvider) Search(_ context.Context, query string, _ Options) ([]Result, error) {
	f.calls.Add(1)
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func hits(n int) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{Title: "t", URL: "https://example.com/" + string(rune('a'+i)), Source: "fake"}
	}
	return out
}

func TestSearchCachesByNormalizedQuery(t *testing.T) {
	p := &fakeProvider{id: "p", available: true, results: hits(3)}
	agg := NewAggregator(cache.NewMemory[Response](time.Minute, 10), p)
	ctx := context.Background()

	first, err := agg.Search(ctx, "Go  Generics", Options{})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "p", first.Provider)

	second, err := agg.Search(ctx, "  go generics ", Options{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.Provider, second.Provider)
	assert.EqualValues(t, 1, p.calls.Load())

	_, err = agg.Search(ctx, "go generics", Options{Language: "de"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load(), "different options are a different cache key")
}

func TestSearchCacheExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	p := &fakeProvider{id: "p", available: true, results: hits(1)}
	agg := NewAggregator(cache.NewMemory[Response](time.Minute, 10, cache.WithClock(func() time.Time { return now })), p)
	ctx := context.Background()

	_, err := agg.Search(ctx, "q", Options{})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	resp, err := agg.Search(ctx, "q", Options{})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestSearchCachedCopyIsIsolated(t *testing.T) {
	p := &fakeProvider{id: "p", available: true, results: hits(2)}
	agg := NewAggregator(cache.NewMemory[Response](time.Minute, 10), p)

	first, err := agg.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	first.Results[0].Title = "mutated"

	second, err := agg.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "t", second.Results[0].Title)
}

func TestSearchFailover(t *testing.T) {
	broken := &fakeProvider{id: "broken", available: true, err: errors.New("500")}
	offline := &fakeProvider{id: "offline"}
	panicky := &fakeProvider{id: "panicky", panics: true}
	good := &fakeProvider{id: "good", available: true, results: hits(15)}
	agg := NewAggregator(nil, broken, offline, panicky, good)

	resp, err := agg.Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "good", resp.Provider)
	assert.Len(t, resp.Results, 10, "default limit applies")
	assert.Zero(t, offline.calls.Load())
	assert.Equal(t, []string{"broken", "offline", "panicky", "good"}, agg.Providers())
}

func TestSearchExhausted(t *testing.T) {
	last := errors.New("quota")
	agg := NewAggregator(nil, &fakeProvider{id: "a", available: true, err: last})
	_, err := agg.Search(context.Background(), "q", Options{})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
	assert.ErrorIs(t, err, last)

	agg = NewAggregator(nil, &fakeProvider{id: "a"})
	_, err = agg.Search(context.Background(), "q", Options{})
	assert.ErrorIs(t, err, ErrNoProviderAvailable)
}

func TestSearchEmptyQuery(t *testing.T) {
	p := &fakeProvider{id: "p", available: true}
	agg := NewAggregator(nil, p)
	_, err := agg.Search(context.Background(), "   ", Options{})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, p.calls.Load())
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{Limit: 500, Language: " EN ", Region: "Us"}.withDefaults()
	assert.Equal(t, 50, o.Limit)
	assert.Equal(t, "en", o.Language)
	assert.Equal(t, "us", o.Region)
}
