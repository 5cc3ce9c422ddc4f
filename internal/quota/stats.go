package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"docmind/internal/store"
)

// Record is one finished unit of metered work.
type Record struct {
	AccountID        string
	Category         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	QuotaUnits       int
	Success          bool
	Latency          time.Duration
}

// Bucket aggregates usage events.
type Bucket struct {
	Requests     int     `json:"requests"`
	QuotaUnits   int     `json:"quota_units"`
	TotalTokens  int     `json:"total_tokens"`
	Successes    int     `json:"successes"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`

	latencySum int64
}

func (b *Bucket) add(e *store.UsageEvent) {
	b.Requests++
	b.QuotaUnits += e.QuotaUnits
	b.TotalTokens += e.TotalTokens
	b.latencySum += e.LatencyMs
	if e.Status == store.StatusSuccess {
		b.Successes++
	}
}

func (b *Bucket) finalize() {
	if b.Requests == 0 {
		return
	}
	b.AvgLatencyMs = float64(b.latencySum) / float64(b.Requests)
	b.SuccessRate = float64(b.Successes) / float64(b.Requests)
}

// DayStats is the usage on one UTC calendar day.
type DayStats struct {
	Date       string            `json:"date"`
	Total      Bucket            `json:"total"`
	ByCategory map[string]Bucket `json:"by_category"`
}

// Stats is the aggregate over a window.
type Stats struct {
	From       time.Time         `json:"from"`
	To         time.Time         `json:"to"`
	Total      Bucket            `json:"total"`
	ByCategory map[string]Bucket `json:"by_category"`
	ByDay      []DayStats        `json:"by_day"`
}

// RecordUsage appends r to the usage event log.
func (c *Client) RecordUsage(ctx context.Context, r Record) error {
	status := store.StatusError
	if r.Success {
		status = store.StatusSuccess
	}
	_, err := c.store.CreateUsageEvent(ctx, &store.UsageEvent{
		ID:               uuid.NewString(),
		AccountID:        r.AccountID,
		Category:         normalizeCategory(r.Category),
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		QuotaUnits:       r.QuotaUnits,
		Status:           status,
		LatencyMs:        r.Latency.Milliseconds(),
		CreatedTs:        c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", r.AccountID, err)
	}
	return nil
}

// Stats aggregates the account's events in [from, to).
func (c *Client) Stats(ctx context.Context, accountID string, from, to time.Time) (Stats, error) {
	if !to.After(from) {
		return Stats{}, fmt.Errorf("stats window end %s must be after start %s", to, from)
	}
	fromTs, toTs := from.Unix(), to.Unix()
	events, err := c.store.ListUsageEvents(ctx, &store.FindUsageEvent{
		AccountID: &accountID,
		FromTs:    &fromTs,
		ToTs:      &toTs,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("list usage events for %s: %w", accountID, err)
	}
	return Aggregate(events, from, to), nil
}

// Aggregate buckets events by UTC day and by category.
func Aggregate(events []*store.UsageEvent, from, to time.Time) Stats {
	stats := Stats{From: from, To: to, ByCategory: map[string]Bucket{}}
	days := map[string]*DayStats{}

	for _, e := range events {
		category := normalizeCategory(e.Category)
		date := time.Unix(e.CreatedTs, 0).UTC().Format(time.DateOnly)

		stats.Total.add(e)
		cb := stats.ByCategory[category]
		cb.add(e)
		stats.ByCategory[category] = cb

		day, ok := days[date]
		if !ok {
			day = &DayStats{Date: date, ByCategory: map[string]Bucket{}}
			days[date] = day
		}
		day.Total.add(e)
		db := day.ByCategory[category]
		db.add(e)
		day.ByCategory[category] = db
	}

	stats.Total.finalize()
	finalizeAll(stats.ByCategory)
	for _, day := range days {
		day.Total.finalize()
		finalizeAll(day.ByCategory)
		stats.ByDay = append(stats.ByDay, *day)
	}
	sort.Slice(stats.ByDay, func(i, j int) bool { return stats.ByDay[i].Date < stats.ByDay[j].Date })
	return stats
}

func finalizeAll(m map[string]Bucket) {
	for k, b := range m {
		b.finalize()
		m[k] = b
	}
}

func normalizeCategory(category string) string {
	switch category {
	case store.CategoryChat, store.CategoryImage:
		return category
	default:
		return store.CategoryOther
	}
}
