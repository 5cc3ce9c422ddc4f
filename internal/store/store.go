// Package store is the usage ledger: account counters plus an append-only
// usage event log, backed by a pluggable driver.
package store

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned when an account id has no ledger row.
var ErrAccountNotFound = errors.New("account not found")

// Driver is implemented by each ledger backend.
type Driver interface {
	EnsureTables(ctx context.Context) error

	UpsertAccount(ctx context.Context, upsert *UpsertAccount) (*Account, error)
	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, find *FindAccount) (*Account, error)
	// ResetAIUsage zeroes AI usage only while the stored reset timestamp still
	// equals ExpectedResetTs, so one expired period resets exactly once.
	ResetAIUsage(ctx context.Context, reset *ResetAIUsage) (bool, error)
	// IncrementUsage adds Units only when the result stays within Limit. It
	// reports false without mutating state otherwise.
	IncrementUsage(ctx context.Context, inc *IncrementUsage) (bool, error)

	CreateUsageEvent(ctx context.Context, create *UsageEvent) (*UsageEvent, error)
	ListUsageEvents(ctx context.Context, find *FindUsageEvent) ([]*UsageEvent, error)

	Close() error
}

// Store delegates to the configured driver.
type Store struct {
	driver Driver
}

// New wraps driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.EnsureTables(ctx)
}

// UpsertAccount creates an account or refreshes its tier.
func (s *Store) UpsertAccount(ctx context.Context, upsert *UpsertAccount) (*Account, error) {
	return s.driver.UpsertAccount(ctx, upsert)
}

// GetAccount returns the account or ErrAccountNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	account, err := s.driver.GetAccount(ctx, &FindAccount{ID: id})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) ResetAIUsage(ctx context.Context, reset *ResetAIUsage) (bool, error) {
	return s.driver.ResetAIUsage(ctx, reset)
}

func (s *Store) IncrementUsage(ctx context.Context, inc *IncrementUsage) (bool, error) {
	return s.driver.IncrementUsage(ctx, inc)
}

// CreateUsageEvent appends one event to the log.
func (s *Store) CreateUsageEvent(ctx context.Context, create *UsageEvent) (*UsageEvent, error) {
	return s.driver.CreateUsageEvent(ctx, create)
}

// ListUsageEvents returns events matching find, oldest first.
func (s *Store) ListUsageEvents(ctx context.Context, find *FindUsageEvent) ([]*UsageEvent, error) {
	return s.driver.ListUsageEvents(ctx, find)
}

func (s *Store) Close() error {
	return s.driver.Close()
}
