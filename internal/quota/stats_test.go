package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/store"
)

func TestAggregate(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC).Unix()

	events := []*store.UsageEvent{
		{Category: "chat", QuotaUnits: 1, TotalTokens: 10, Status: store.StatusSuccess, LatencyMs: 100, CreatedTs: day1},
		{Category: "chat", QuotaUnits: 0, TotalTokens: 0, Status: store.StatusError, LatencyMs: 300, CreatedTs: day1},
		{Category: "image", QuotaUnits: 2, TotalTokens: 5, Status: store.StatusSuccess, LatencyMs: 200, CreatedTs: day2},
		{Category: "video", QuotaUnits: 1, Status: store.StatusSuccess, CreatedTs: day2},
	}

	stats := Aggregate(events, time.Unix(day1, 0), time.Unix(day2+60, 0))

	assert.Equal(t, 4, stats.Total.Requests)
	assert.Equal(t, 4, stats.Total.QuotaUnits)
	assert.Equal(t, 15, stats.Total.TotalTokens)
	assert.InDelta(t, 0.75, stats.Total.SuccessRate, 1e-9)
	assert.InDelta(t, 150.0, stats.Total.AvgLatencyMs, 1e-9)

	require.Contains(t, stats.ByCategory, "other", "unknown categories fold into other")
	assert.Equal(t, 2, stats.ByCategory["chat"].Requests)
	assert.InDelta(t, 0.5, stats.ByCategory["chat"].SuccessRate, 1e-9)
	assert.Equal(t, 1, stats.ByCategory["image"].Requests)

	require.Len(t, stats.ByDay, 2)
	assert.Equal(t, "2026-03-01", stats.ByDay[0].Date)
	assert.Equal(t, 2, stats.ByDay[0].Total.Requests)
	assert.Equal(t, "2026-03-02", stats.ByDay[1].Date)
	assert.Equal(t, 2, stats.ByDay[1].ByCategory["image"].QuotaUnits)
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, time.Now(), time.Now().Add(time.Hour))
	assert.Zero(t, stats.Total.Requests)
	assert.Zero(t, stats.Total.SuccessRate)
	assert.Empty(t, stats.ByDay)
}

func TestRecordUsageAndStats(t *testing.T) {
	c, _, clk := newTestClient(t, nil)
	ctx := context.Background()

	require.NoError(t, c.RecordUsage(ctx, Record{AccountID: "a", Category: "chat", QuotaUnits: 1, TotalTokens: 9, Success: true, Latency: 250 * time.Millisecond}))
	require.NoError(t, c.RecordUsage(ctx, Record{AccountID: "a", Category: "chat", Success: false}))
	require.NoError(t, c.RecordUsage(ctx, Record{AccountID: "b", Category: "image", QuotaUnits: 2, Success: true}))

	now := clk.Now()
	stats, err := c.Stats(ctx, "a", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total.Requests)
	assert.Equal(t, 1, stats.Total.Successes)
	assert.Equal(t, 9, stats.Total.TotalTokens)
	assert.InDelta(t, 125.0, stats.Total.AvgLatencyMs, 1e-9)

	stats, err = c.Stats(ctx, "a", now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, stats.Total.Requests, "window is half-open and excludes earlier events")

	_, err = c.Stats(ctx, "a", now, now)
	assert.Error(t, err)
}
