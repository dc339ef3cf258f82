package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeWatch/internal/model"
	"memeWatch/internal/storage"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newToken(address string, createdAt time.Time) model.TrackedToken {
	return model.NewTrackedToken(address, createdAt, model.MetricsSnapshot{
		MarketCap: 250000,
		Price:     0.0025,
		Volume5m:  120,
		Volume15m: 300,
		Volume30m: 610,
		Holders:   42,
		Timestamp: createdAt,
	})
}

func TestStore_InsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	token := newToken("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", t0)
	require.NoError(t, store.Insert(ctx, token))

	got, err := store.Get(ctx, token.Address)
	require.NoError(t, err)

	assert.Equal(t, token.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(t0))
	require.NotNil(t, got.Next15m)
	assert.True(t, got.Next15m.Equal(t0.Add(15*time.Minute)))
	require.NotNil(t, got.Next1h)
	assert.True(t, got.Next1h.Equal(t0.Add(time.Hour)))
	require.Contains(t, got.History, model.LabelInitial)
	assert.Equal(t, uint64(42), got.History[model.LabelInitial].Holders)
	assert.InDelta(t, 0.0025, got.History[model.LabelInitial].Price, 1e-12)
}

func TestStore_InsertDuplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken("dup", t0)))
	err := store.Insert(ctx, newToken("dup", t0.Add(time.Minute)))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestStore_GetNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListAndListDue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken("first", t0)))
	require.NoError(t, store.Insert(ctx, newToken("second", t0.Add(10*time.Minute))))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Address)
	assert.Equal(t, "first", all[1].Address)

	due, err := store.ListDue(ctx, t0.Add(16*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "first", due[0].Address)
}

func TestStore_ApplyUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newToken("addr", t0)))

	now := t0.Add(31 * time.Minute)
	update := model.RefreshUpdate{
		Intervals: []model.Interval{model.Interval15m, model.Interval30m},
		Snapshot:  model.MetricsSnapshot{Price: 0.004, Holders: 80, Timestamp: now},
		AppliedAt: now,
	}
	require.NoError(t, store.ApplyUpdate(ctx, "addr", update))

	got, err := store.Get(ctx, "addr")
	require.NoError(t, err)
	assert.Nil(t, got.Next15m)
	assert.Nil(t, got.Next30m)
	assert.NotNil(t, got.Next1h)
	assert.Equal(t, got.History["update_15m"], got.History["update_30m"])
	assert.Equal(t, uint64(80), got.History["update_15m"].Holders)
	assert.Contains(t, got.History, model.LabelInitial)

	err = store.ApplyUpdate(ctx, "addr", update)
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.ApplyUpdate(ctx, "missing", update)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_State(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LoadState(ctx, "refresh")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveState(ctx, "refresh", t0))
	require.NoError(t, store.SaveState(ctx, "refresh", t0.Add(time.Minute)))

	ts, ok, err := store.LoadState(ctx, "refresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ts.Equal(t0.Add(time.Minute)))
}
