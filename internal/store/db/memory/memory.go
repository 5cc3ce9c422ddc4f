// Package memory is an in-process ledger driver for tests and single-node
// development. Every operation holds one mutex, so conditional updates are
// atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docmind/internal/store"
)

type DB struct {
	mu       sync.Mutex
	accounts map[string]store.Account
	events   []store.UsageEvent
}

var _ store.Driver = (*DB)(nil)

func New() *DB {
	return &DB{accounts: make(map[string]store.Account)}
}

func (d *DB) EnsureTables(context.Context) error { return nil }
func (d *DB) Close() error                       { return nil }

func (d *DB) UpsertAccount(_ context.Context, upsert *store.UpsertAccount) (*store.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[upsert.ID]
	if !ok {
		a = store.Account{
			ID:        upsert.ID,
			AIResetTs: upsert.AIResetTs,
			CreatedTs: upsert.NowTs,
		}
	}
	a.Tier = upsert.Tier
	a.UpdatedTs = upsert.NowTs
	d.accounts[upsert.ID] = a
	return &a, nil
}

func (d *DB) GetAccount(_ context.Context, find *store.FindAccount) (*store.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[find.ID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (d *DB) ResetAIUsage(_ context.Context, reset *store.ResetAIUsage) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[reset.ID]
	if !ok || a.AIResetTs != reset.ExpectedResetTs {
		return false, nil
	}
	a.AIUsed = 0
	a.AIResetTs = reset.NextResetTs
	a.UpdatedTs = reset.NowTs
	d.accounts[reset.ID] = a
	return true, nil
}

func (d *DB) IncrementUsage(_ context.Context, inc *store.IncrementUsage) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[inc.ID]
	if !ok {
		return false, nil
	}
	switch inc.Kind {
	case store.UsageKindAI:
		if a.AIUsed+inc.Units > inc.Limit {
			return false, nil
		}
		a.AIUsed += inc.Units
	case store.UsageKindStorage:
		if a.StorageUsedMB+inc.Units > inc.Limit {
			return false, nil
		}
		a.StorageUsedMB += inc.Units
	default:
		return false, fmt.Errorf("unknown usage kind %q", inc.Kind)
	}
	a.UpdatedTs = inc.NowTs
	d.accounts[inc.ID] = a
	return true, nil
}

func (d *DB) CreateUsageEvent(_ context.Context, create *store.UsageEvent) (*store.UsageEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.events {
		if e.ID == create.ID {
			return nil, fmt.Errorf("usage event %q already exists", create.ID)
		}
	}
	d.events = append(d.events, *create)
	return create, nil
}

func (d *DB) ListUsageEvents(_ context.Context, find *store.FindUsageEvent) ([]*store.UsageEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var list []*store.UsageEvent
	for _, e := range d.events {
		if find.AccountID != nil && e.AccountID != *find.AccountID {
			continue
		}
		if find.FromTs != nil && e.CreatedTs < *find.FromTs {
			continue
		}
		if find.ToTs != nil && e.CreatedTs >= *find.ToTs {
			continue
		}
		list = append(list, &e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
