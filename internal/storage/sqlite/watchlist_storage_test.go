package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/models"
)

func TestWatchlistLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewWatchlistStorage(db, arbor.NewLogger())
	ctx := context.Background()

	item := &models.Watchlist{
		Type:        models.WatchIndicator,
		Description: "USD/VND breaches 25,500",
		IndicatorID: "usd_vnd",
		Condition:   ">= 25500",
	}
	require.NoError(t, storage.Create(ctx, item))
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, models.WatchWatching, item.Status)

	active, err := storage.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ">= 25500", active[0].Condition)

	triggeredAt := time.Now().UTC()
	require.NoError(t, storage.MarkTriggered(ctx, item.ID, triggeredAt))

	active, err = storage.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	triggered, err := storage.GetTriggered(ctx)
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	require.NotNil(t, triggered[0].TriggeredAt)
	assert.Equal(t, triggeredAt.Unix(), triggered[0].TriggeredAt.Unix())

	require.NoError(t, storage.UpdateStatus(ctx, item.ID, models.WatchDismissed))
	triggered, err = storage.GetTriggered(ctx)
	require.NoError(t, err)
	assert.Empty(t, triggered)
}

func TestWatchlistSnooze(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewWatchlistStorage(db, arbor.NewLogger())
	ctx := context.Background()

	deadline := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	item := &models.Watchlist{
		Type:        models.WatchDate,
		Description: "Fed meeting",
		TriggerDate: &deadline,
	}
	require.NoError(t, storage.Create(ctx, item))

	until := time.Now().UTC().Add(48 * time.Hour)
	require.NoError(t, storage.Snooze(ctx, item.ID, until))

	active, err := storage.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].SnoozedUntil)
	assert.True(t, active[0].IsSnoozed(time.Now().UTC()))
	assert.False(t, active[0].IsSnoozed(until.Add(time.Minute)))

	require.NotNil(t, active[0].TriggerDate)
	assert.Equal(t, deadline.Unix(), active[0].TriggerDate.Unix())
}

func TestWatchlistUpdate_MissingItem(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewWatchlistStorage(db, arbor.NewLogger())
	err := storage.MarkTriggered(context.Background(), "wch_missing", time.Now())
	assert.Error(t, err)
}
