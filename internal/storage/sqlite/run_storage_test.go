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

func TestRunSave_InsertThenUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewRunStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	run := &models.RunHistory{
		RunDate:         models.DateOnlyUTC(now),
		Status:          models.RunPartial,
		EventsCollected: 12,
		Errors:          []string{"gso: timeout"},
		StartedAt:       now,
		CompletedAt:     now.Add(3 * time.Minute),
	}
	require.NoError(t, storage.Save(ctx, run))
	assert.NotEmpty(t, run.ID)

	// Saving again with the same ID updates the row
	run.Status = models.RunSuccess
	run.Errors = nil
	run.EventsRanked = 12
	require.NoError(t, storage.Save(ctx, run))

	latest, err := storage.GetLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, models.RunSuccess, latest.Status)
	assert.Equal(t, 12, latest.EventsRanked)
	assert.Empty(t, latest.Errors)
}

func TestRunGetLatest_EmptyReturnsNil(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewRunStorage(db, arbor.NewLogger())
	latest, err := storage.GetLatest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRunGetRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewRunStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	for _, age := range []int{0, 1, 2, 10} {
		run := &models.RunHistory{
			RunDate:     models.DateOnlyUTC(now.AddDate(0, 0, -age)),
			Status:      models.RunSuccess,
			StartedAt:   now.AddDate(0, 0, -age),
			CompletedAt: now.AddDate(0, 0, -age).Add(time.Minute),
		}
		require.NoError(t, storage.Save(ctx, run))
	}

	recent, err := storage.GetRecent(ctx, 7)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	// Newest first
	assert.True(t, recent[0].StartedAt.After(recent[1].StartedAt))
}
