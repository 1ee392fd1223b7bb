package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

func setupTestDB(t *testing.T) (*SQLiteDB, func()) {
	// Create temporary directory for test database
	tempDir := t.TempDir()
	dbPath := tempDir + "/test.db"

	config := &common.SQLiteConfig{
		Path:          dbPath,
		CacheSizeMB:   16,
		BusyTimeoutMS: 5000,
		WALMode:       false, // Disable WAL for simpler test cleanup
	}

	logger := arbor.NewLogger()

	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return db, cleanup
}

func TestIndicatorUpsert_CreateAndUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewIndicatorStorage(db, logger)
	ctx := context.Background()

	ind := &models.Indicator{
		ID:       "usd_vnd",
		Name:     "USD/VND Exchange Rate",
		NameVI:   "Tỷ giá USD/VND",
		Category: "exchange_rate",
		Unit:     "VND",
		Value:    25067,
		Trend:    models.TrendStable,
		Source:   "sbv",
	}
	require.NoError(t, storage.Upsert(ctx, ind))

	stored, err := storage.Get(ctx, "usd_vnd")
	require.NoError(t, err)
	assert.Equal(t, 25067.0, stored.Value)
	assert.Equal(t, "Tỷ giá USD/VND", stored.NameVI)

	// Second upsert updates in place, no second row
	ind.Value = 25100
	ind.Change = 33
	ind.Trend = models.TrendUp
	require.NoError(t, storage.Upsert(ctx, ind))

	stored, err = storage.Get(ctx, "usd_vnd")
	require.NoError(t, err)
	assert.Equal(t, 25100.0, stored.Value)
	assert.Equal(t, models.TrendUp, stored.Trend)
}

func TestIndicatorGet_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	_, err := storage.Get(context.Background(), "does_not_exist")
	assert.Error(t, err)
}

func TestAddHistory_ComputesChangeAgainstPrevious(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	day1 := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	first, err := storage.AddHistory(ctx, &models.IndicatorHistory{
		IndicatorID: "usd_vnd",
		Value:       25000,
		Date:        day1,
		Source:      "sbv",
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 0.0, first.Change)

	second, err := storage.AddHistory(ctx, &models.IndicatorHistory{
		IndicatorID: "usd_vnd",
		Value:       25100,
		Date:        day2,
		Source:      "sbv",
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 25000.0, second.PreviousValue)
	assert.Equal(t, 100.0, second.Change)
	assert.InDelta(t, 0.4, second.ChangePct, 0.001)
}

func TestAddHistory_RepublishIsNoOp(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	date := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	h := &models.IndicatorHistory{IndicatorID: "usd_vnd", Value: 25067, Date: date}

	first, err := storage.AddHistory(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Same indicator, same date (different time of day), same value
	dup, err := storage.AddHistory(ctx, &models.IndicatorHistory{
		IndicatorID: "usd_vnd",
		Value:       25067,
		Date:        date.Add(5 * time.Hour),
	})
	require.NoError(t, err)
	assert.Nil(t, dup, "same-day republish of an identical value should be a no-op")

	// Same date with a different value is a new row
	revised, err := storage.AddHistory(ctx, &models.IndicatorHistory{
		IndicatorID: "usd_vnd",
		Value:       25080,
		Date:        date,
	})
	require.NoError(t, err)
	assert.NotNil(t, revised)
}

func TestGetHistory_WindowAndOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		_, err := storage.AddHistory(ctx, &models.IndicatorHistory{
			IndicatorID: "sjc_gold",
			Value:       120000 + float64(i)*100,
			Date:        now.AddDate(0, 0, -i),
		})
		require.NoError(t, err)
	}

	history, err := storage.GetHistory(ctx, "sjc_gold", 5, 0)
	require.NoError(t, err)
	require.Len(t, history, 6) // today plus 5 days back

	// Newest first
	for i := 1; i < len(history); i++ {
		assert.True(t, !history[i].Date.After(history[i-1].Date))
	}
}

func TestLatestHistory_EmptyReturnsNil(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	latest, err := storage.LatestHistory(context.Background(), "nothing_here")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestGetAllGrouped(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewIndicatorStorage(db, arbor.NewLogger())
	ctx := context.Background()

	indicators := []*models.Indicator{
		{ID: "usd_vnd", Name: "USD/VND", Category: "exchange_rate", Value: 25067},
		{ID: "sjc_gold", Name: "SJC Gold", Category: "commodity", Value: 120000},
		{ID: "brent", Name: "Brent Crude", Category: "commodity", Value: 78.5},
	}
	for _, ind := range indicators {
		require.NoError(t, storage.Upsert(ctx, ind))
	}

	groups, err := storage.GetAllGrouped(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "commodity", groups[0].Category)
	assert.Len(t, groups[0].Indicators, 2)
	assert.Equal(t, "exchange_rate", groups[1].Category)
	assert.Len(t, groups[1].Indicators, 1)
}
