// Package quota computes per-account allowances against the usage ledger.
// Snapshots are read per call and never cached; the AI counter resets lazily
// on the first read after its period expired.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"docmind/internal/config"
	"docmind/internal/models"
	"docmind/internal/store"
)

// ErrQuotaExceeded is a user-visible, non-retryable denial.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Snapshot is one read of an account's allowance.
type Snapshot struct {
	AccountID      string
	Tier           models.Tier
	AITotal        int
	AIUsed         int
	AIResetAt      time.Time
	StorageTotalMB int
	StorageUsedMB  int
}

// AIRemaining is never negative.
func (s Snapshot) AIRemaining() int { return max(s.AITotal-s.AIUsed, 0) }

func (s Snapshot) StorageRemainingMB() int { return max(s.StorageTotalMB-s.StorageUsedMB, 0) }

// Client reads and mutates the ledger on behalf of callers.
type Client struct {
	store    *store.Store
	tiers    map[string]config.TierConfig
	schedule robfigcron.Schedule
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New builds a client. cfg.ResetSchedule is a five-field cron expression.
func New(st *store.Store, cfg config.QuotaConfig, opts ...Option) (*Client, error) {
	if st == nil {
		return nil, errors.New("store must not be nil")
	}
	parser := robfigcron.NewParser(
		robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
	)
	schedule, err := parser.Parse(cfg.ResetSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse quota reset schedule %q: %w", cfg.ResetSchedule, err)
	}
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = config.DefaultTiers()
	}

	c := &Client{store: st, tiers: tiers, schedule: schedule, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NextReset returns the first instant of the period following t.
func (c *Client) NextReset(t time.Time) time.Time {
	return c.schedule.Next(t.UTC())
}

// EnsureAccount creates the account on first sight and keeps its tier in
// sync with the account resolver.
func (c *Client) EnsureAccount(ctx context.Context, accountID string, tier models.Tier) (Snapshot, error) {
	if !tier.Valid() {
		return Snapshot{}, fmt.Errorf("account %s: unknown tier %q", accountID, tier)
	}
	now := c.now()
	if _, err := c.store.UpsertAccount(ctx, &store.UpsertAccount{
		ID:        accountID,
		Tier:      string(tier),
		AIResetTs: c.NextReset(now).Unix(),
		NowTs:     now.Unix(),
	}); err != nil {
		return Snapshot{}, fmt.Errorf("upsert account %s: %w", accountID, err)
	}
	return c.Snapshot(ctx, accountID)
}

// Snapshot reads the account, performing the period reset first when the
// stored reset time is at or before now.
func (c *Client) Snapshot(ctx context.Context, accountID string) (Snapshot, error) {
	account, err := c.store.GetAccount(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}

	now := c.now()
	if account.AIResetTs <= now.Unix() {
		next := c.NextReset(now)
		reset, err := c.store.ResetAIUsage(ctx, &store.ResetAIUsage{
			ID:              accountID,
			ExpectedResetTs: account.AIResetTs,
			NextResetTs:     next.Unix(),
			NowTs:           now.Unix(),
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("reset ai usage for %s: %w", accountID, err)
		}
		if reset {
			slog.Info("quota period reset", "account", accountID, "next_reset", next)
		}
		// a concurrent reader may have won the reset; either way re-read
		if account, err = c.store.GetAccount(ctx, accountID); err != nil {
			return Snapshot{}, err
		}
	}

	return c.toSnapshot(account), nil
}

// Check denies with ErrQuotaExceeded when fewer than units AI calls remain.
func (c *Client) Check(ctx context.Context, accountID string, units int) (Snapshot, error) {
	snap, err := c.Snapshot(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.AIRemaining() < units {
		return snap, fmt.Errorf("%w: %d ai calls requested, %d remaining", ErrQuotaExceeded, units, snap.AIRemaining())
	}
	return snap, nil
}

// Consume records units AI calls. It fails without partial consumption when
// fewer than units remain. The increment is a single conditional update, so
// concurrent callers cannot overshoot the allowance.
func (c *Client) Consume(ctx context.Context, accountID string, units int) error {
	return c.consume(ctx, accountID, store.UsageKindAI, units)
}

// ConsumeStorage records mb megabytes of storage with the same semantics.
func (c *Client) ConsumeStorage(ctx context.Context, accountID string, mb int) error {
	return c.consume(ctx, accountID, store.UsageKindStorage, mb)
}

func (c *Client) consume(ctx context.Context, accountID string, kind store.UsageKind, units int) error {
	if units < 0 {
		return fmt.Errorf("usage units must not be negative, got %d", units)
	}
	snap, err := c.Snapshot(ctx, accountID)
	if err != nil {
		return err
	}

	remaining, limit := snap.AIRemaining(), snap.AITotal
	if kind == store.UsageKindStorage {
		remaining, limit = snap.StorageRemainingMB(), snap.StorageTotalMB
	}
	if remaining < units {
		return fmt.Errorf("%w: %d %s units requested, %d remaining", ErrQuotaExceeded, units, kind, remaining)
	}
	if units == 0 {
		return nil
	}

	ok, err := c.store.IncrementUsage(ctx, &store.IncrementUsage{
		ID:    accountID,
		Kind:  kind,
		Units: units,
		Limit: limit,
		NowTs: c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("increment %s usage for %s: %w", kind, accountID, err)
	}
	if !ok {
		return fmt.Errorf("%w: concurrent usage exhausted the %s allowance", ErrQuotaExceeded, kind)
	}
	return nil
}

func (c *Client) toSnapshot(a *store.Account) Snapshot {
	limits := c.tiers[a.Tier]
	return Snapshot{
		AccountID:      a.ID,
		Tier:           models.Tier(a.Tier),
		AITotal:        limits.AICalls,
		AIUsed:         a.AIUsed,
		AIResetAt:      time.Unix(a.AIResetTs, 0).UTC(),
		StorageTotalMB: limits.StorageMB,
		StorageUsedMB:  a.StorageUsedMB,
	}
}
