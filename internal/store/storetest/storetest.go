// Package storetest holds behaviour checks every store.Driver must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/store"
)

// RunDriverTests exercises driver against a fresh, migrated database per subtest.
func RunDriverTests(t *testing.T, open func(t *testing.T) store.Driver) {
	setup := func(t *testing.T) *store.Store {
		t.Helper()
		st := store.New(open(t))
		require.NoError(t, st.Migrate(context.Background()))
		t.Cleanup(func() { _ = st.Close() })
		return st
	}

	t.Run("UpsertAccount", func(t *testing.T) {
		st := setup(t)
		ctx := context.Background()

		a, err := st.UpsertAccount(ctx, &store.UpsertAccount{ID: "alice", Tier: "free", AIResetTs: 500, NowTs: 100})
		require.NoError(t, err)
		assert.Equal(t, "free", a.Tier)
		assert.EqualValues(t, 500, a.AIResetTs)
		assert.EqualValues(t, 100, a.CreatedTs)

		a, err = st.UpsertAccount(ctx, &store.UpsertAccount{ID: "alice", Tier: "pro", AIResetTs: 999, NowTs: 200})
		require.NoError(t, err)
		assert.Equal(t, "pro", a.Tier)
		assert.EqualValues(t, 500, a.AIResetTs, "reset time is only set on creation")
		assert.EqualValues(t, 100, a.CreatedTs)
		assert.EqualValues(t, 200, a.UpdatedTs)

		_, err = st.GetAccount(ctx, "bob")
		assert.ErrorIs(t, err, store.ErrAccountNotFound)
	})

	t.Run("IncrementUsageIsConditional", func(t *testing.T) {
		st := setup(t)
		ctx := context.Background()
		_, err := st.UpsertAccount(ctx, &store.UpsertAccount{ID: "a", Tier: "free", AIResetTs: 500, NowTs: 1})
		require.NoError(t, err)

		ok, err := st.IncrementUsage(ctx, &store.IncrementUsage{ID: "a", Kind: store.UsageKindAI, Units: 7, Limit: 10, NowTs: 2})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.IncrementUsage(ctx, &store.IncrementUsage{ID: "a", Kind: store.UsageKindAI, Units: 5, Limit: 10, NowTs: 3})
		require.NoError(t, err)
		assert.False(t, ok, "increment past the limit must not apply")

		ok, err = st.IncrementUsage(ctx, &store.IncrementUsage{ID: "a", Kind: store.UsageKindAI, Units: 3, Limit: 10, NowTs: 4})
		require.NoError(t, err)
		assert.True(t, ok, "increment exactly to the limit applies")

		ok, err = st.IncrementUsage(ctx, &store.IncrementUsage{ID: "a", Kind: store.UsageKindStorage, Units: 40, Limit: 100, NowTs: 5})
		require.NoError(t, err)
		assert.True(t, ok)

		a, err := st.GetAccount(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 10, a.AIUsed)
		assert.Equal(t, 40, a.StorageUsedMB)

		ok, err = st.IncrementUsage(ctx, &store.IncrementUsage{ID: "missing", Kind: store.UsageKindAI, Units: 1, Limit: 10, NowTs: 6})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ResetAIUsageIsConditional", func(t *testing.T) {
		st := setup(t)
		ctx := context.Background()
		_, err := st.UpsertAccount(ctx, &store.UpsertAccount{ID: "a", Tier: "free", AIResetTs: 500, NowTs: 1})
		require.NoError(t, err)
		_, err = st.IncrementUsage(ctx, &store.IncrementUsage{ID: "a", Kind: store.UsageKindAI, Units: 4, Limit: 10, NowTs: 2})
		require.NoError(t, err)

		ok, err := st.ResetAIUsage(ctx, &store.ResetAIUsage{ID: "a", ExpectedResetTs: 500, NextResetTs: 900, NowTs: 600})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.ResetAIUsage(ctx, &store.ResetAIUsage{ID: "a", ExpectedResetTs: 500, NextResetTs: 1200, NowTs: 601})
		require.NoError(t, err)
		assert.False(t, ok, "a second reset racing on the stale timestamp loses")

		a, err := st.GetAccount(ctx, "a")
		require.NoError(t, err)
		assert.Zero(t, a.AIUsed)
		assert.EqualValues(t, 900, a.AIResetTs)
	})

	t.Run("UsageEvents", func(t *testing.T) {
		st := setup(t)
		ctx := context.Background()

		events := []*store.UsageEvent{
			{ID: "e3", AccountID: "a", Category: "chat", QuotaUnits: 1, Status: store.StatusSuccess, CreatedTs: 300},
			{ID: "e1", AccountID: "a", Category: "image", QuotaUnits: 2, Status: store.StatusSuccess, CreatedTs: 100, LatencyMs: 40},
			{ID: "e2", AccountID: "b", Category: "chat", Status: store.StatusError, CreatedTs: 200},
			{ID: "e4", AccountID: "a", Category: "chat", Status: store.StatusError, CreatedTs: 400},
		}
		for _, e := range events {
			_, err := st.CreateUsageEvent(ctx, e)
			require.NoError(t, err)
		}

		account := "a"
		from, to := int64(100), int64(400)
		list, err := st.ListUsageEvents(ctx, &store.FindUsageEvent{AccountID: &account, FromTs: &from, ToTs: &to})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "e1", list[0].ID)
		assert.EqualValues(t, 40, list[0].LatencyMs)
		assert.Equal(t, "e3", list[1].ID)

		all, err := st.ListUsageEvents(ctx, &store.FindUsageEvent{})
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}
