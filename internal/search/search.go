// Package search aggregates web search backends behind the same
// probe-then-failover pattern as the chat providers, with a TTL cache in
// front of them.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docmind/internal/cache"
)

const (
	defaultLimit        = 10
	maxLimit            = 50
	defaultProbeTimeout = 5 * time.Second
)

var (
	// ErrNoProviderAvailable is returned when every backend was unavailable or failed.
	ErrNoProviderAvailable = errors.New("no search provider available")
	// ErrEmptyQuery rejects blank queries before any backend is contacted.
	ErrEmptyQuery = errors.New("search query must not be empty")
)

// Result is one search hit.
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Source    string `json:"source"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Options narrows a search.
type Options struct {
	Limit    int
	Language string
	Region   string
}

// Response is what the aggregator returns upward.
type Response struct {
	Results  []Result `json:"results"`
	Provider string   `json:"provider"`
	Cached   bool     `json:"cached"`
}

// Provider is one search backend.
type Provider interface {
	ID() string
	IsAvailable(ctx context.Context) bool
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Aggregator tries providers in priority order and returns the first success.
type Aggregator struct {
	providers []Provider
	cache     cache.Cache[Response]
}

// NewAggregator builds an aggregator; providers are in priority order.
func NewAggregator(c cache.Cache[Response], providers ...Provider) *Aggregator {
	return &Aggregator{providers: providers, cache: c}
}

// Providers lists backend ids in priority order.
func (a *Aggregator) Providers() []string {
	ids := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		ids = append(ids, p.ID())
	}
	return ids
}

// Search returns a cached response when one exists for the same normalized
// query and options, otherwise the first backend that succeeds.
func (a *Aggregator) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}
	opts = opts.withDefaults()
	key := cacheKey(normalized, opts)

	if a.cache != nil {
		if hit, ok := a.cache.Get(key); ok {
			out := hit
			out.Results = append([]Result(nil), hit.Results...)
			out.Cached = true
			return &out, nil
		}
	}

	var lastErr error
	for _, p := range a.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !probe(ctx, p) {
			slog.Debug("skipping unavailable search provider", "provider", p.ID())
			continue
		}
		results, err := p.Search(ctx, query, opts)
		if err != nil {
			slog.Warn("search provider failed", "provider", p.ID(), "err", err)
			lastErr = err
			continue
		}
		if len(results) > opts.Limit {
			results = results[:opts.Limit]
		}
		resp := Response{Results: results, Provider: p.ID()}
		if a.cache != nil {
			stored := resp
			stored.Results = append([]Result(nil), results...)
			a.cache.Set(key, stored)
		}
		return &resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProviderAvailable, lastErr)
	}
	return nil, ErrNoProviderAvailable
}

func probe(ctx context.Context, p Provider) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("search availability probe panicked", "provider", p.ID(), "panic", r)
			ok = false
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()
	return p.IsAvailable(ctx)
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	o.Language = strings.ToLower(strings.TrimSpace(o.Language))
	o.Region = strings.ToLower(strings.TrimSpace(o.Region))
	return o
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func cacheKey(normalized string, o Options) string {
	return fmt.Sprintf("%s\x00%d\x00%s\x00%s", normalized, o.Limit, o.Language, o.Region)
}
