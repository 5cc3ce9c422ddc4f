package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/config"
	"docmind/internal/models"
	"docmind/internal/store"
	"docmind/internal/store/db/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestClient(t *testing.T, tiers map[string]config.TierConfig) (*Client, *store.Store, *clock) {
	t.Helper()
	st := store.New(memory.New())
	clk := &clock{t: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}
	c, err := New(st, config.QuotaConfig{ResetSchedule: "0 0 1 * *", Tiers: tiers}, WithClock(clk.Now))
	require.NoError(t, err)
	return c, st, clk
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(store.New(memory.New()), config.QuotaConfig{ResetSchedule: "every tuesday"})
	assert.Error(t, err)
	_, err = New(nil, config.QuotaConfig{ResetSchedule: "0 0 1 * *"})
	assert.Error(t, err)
}

func TestNextResetIsStartOfNextMonth(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	got := c.NextReset(time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestEnsureAccount(t *testing.T) {
	c, _, clk := newTestClient(t, nil)
	ctx := context.Background()

	snap, err := c.EnsureAccount(ctx, "alice", models.TierFree)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.AITotal)
	assert.Equal(t, 50, snap.AIRemaining())
	assert.Equal(t, 100, snap.StorageTotalMB)
	assert.True(t, snap.AIResetAt.After(clk.Now()))

	snap, err = c.EnsureAccount(ctx, "alice", models.TierPro)
	require.NoError(t, err)
	assert.Equal(t, models.TierPro, snap.Tier)
	assert.Equal(t, 1000, snap.AITotal)

	_, err = c.EnsureAccount(ctx, "bob", "gold")
	assert.Error(t, err)
}

func TestSnapshotUnknownAccount(t *testing.T) {
	c, _, _ := newTestClient(t, nil)
	_, err := c.Snapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestSnapshotLazyReset(t *testing.T) {
	c, _, clk := newTestClient(t, map[string]config.TierConfig{"free": {AICalls: 100}})
	ctx := context.Background()

	_, err := c.EnsureAccount(ctx, "a", models.TierFree)
	require.NoError(t, err)
	require.NoError(t, c.Consume(ctx, "a", 100))

	snap, err := c.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, snap.AIRemaining())

	clk.Set(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
	snap, err = c.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, snap.AIUsed)
	assert.Equal(t, 100, snap.AIRemaining())
	assert.True(t, snap.AIResetAt.After(clk.Now()))
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), snap.AIResetAt)
}

func TestConsumeWithoutPartialUsage(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]config.TierConfig{"free": {AICalls: 10, StorageMB: 5}})
	ctx := context.Background()
	_, err := c.EnsureAccount(ctx, "a", models.TierFree)
	require.NoError(t, err)

	require.NoError(t, c.Consume(ctx, "a", 7))

	err = c.Consume(ctx, "a", 5)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	snap, err := c.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 7, snap.AIUsed, "a denied consume leaves usage unchanged")

	_, err = c.Check(ctx, "a", 3)
	assert.NoError(t, err)
	_, err = c.Check(ctx, "a", 4)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	assert.NoError(t, c.Consume(ctx, "a", 0))
	assert.Error(t, c.Consume(ctx, "a", -1))

	require.NoError(t, c.ConsumeStorage(ctx, "a", 5))
	assert.ErrorIs(t, c.ConsumeStorage(ctx, "a", 1), ErrQuotaExceeded)
}

func TestConcurrentConsumeNeverOvershoots(t *testing.T) {
	c, _, _ := newTestClient(t, map[string]config.TierConfig{"free": {AICalls: 20}})
	ctx := context.Background()
	_, err := c.EnsureAccount(ctx, "a", models.TierFree)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Consume(ctx, "a", 1) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	snap, err := c.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 20, ok)
	assert.Equal(t, 20, snap.AIUsed)
}
