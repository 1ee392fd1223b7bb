package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
	"github.com/ternarybob/mekong/internal/storage/sqlite"
)

func newTestReviewer(t *testing.T) (*Reviewer, interfaces.StorageManager) {
	t.Helper()
	storage, err := sqlite.NewManager(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		CacheSizeMB:   8,
		BusyTimeoutMS: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	return NewReviewer(storage, arbor.NewLogger()), storage
}

func addHistory(t *testing.T, storage interfaces.StorageManager, indicatorID string, value float64, date time.Time) {
	t.Helper()
	_, err := storage.Indicators().AddHistory(context.Background(), &models.IndicatorHistory{
		IndicatorID: indicatorID,
		Value:       value,
		Date:        date,
		Source:      "test",
	})
	require.NoError(t, err)
}

func expiredSignal(target string, low, high *float64, direction models.SignalDirection) *models.Signal {
	created := time.Now().UTC().AddDate(0, 0, -10)
	return &models.Signal{
		Prediction:      "test prediction",
		Direction:       direction,
		TargetIndicator: target,
		TargetRangeLow:  low,
		TargetRangeHigh: high,
		Confidence:      models.SignalConfidenceMedium,
		TimeframeDays:   7,
		CreatedAt:       created,
	}
}

func fptr(v float64) *float64 { return &v }

func TestVerifySignals_RangeOutcomes(t *testing.T) {
	reviewer, storage := newTestReviewer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	addHistory(t, storage, "interbank_on", 4.0, models.DateOnlyUTC(now))

	inRange := expiredSignal("interbank_on", fptr(3.5), fptr(4.2), models.SignalDown)
	require.NoError(t, storage.Signals().Create(ctx, inRange))
	outOfRange := expiredSignal("interbank_on", fptr(4.5), fptr(5.0), models.SignalUp)
	require.NoError(t, storage.Signals().Create(ctx, outOfRange))
	noData := expiredSignal("usd_vnd_central", fptr(25000), fptr(25500), models.SignalUp)
	require.NoError(t, storage.Signals().Create(ctx, noData))

	verified, err := reviewer.VerifySignals(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, verified)

	correct, err := storage.Signals().Get(ctx, inRange.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalVerifiedCorrect, correct.Status)
	require.NotNil(t, correct.ActualValue)
	assert.Equal(t, 4.0, *correct.ActualValue)

	wrong, err := storage.Signals().Get(ctx, outOfRange.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalVerifiedWrong, wrong.Status)

	expired, err := storage.Signals().Get(ctx, noData.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalExpired, expired.Status)
	assert.Nil(t, expired.ActualValue)
}

func TestVerifySignals_DirectionFallback(t *testing.T) {
	reviewer, storage := newTestReviewer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Two history rows so the latest carries a positive change
	addHistory(t, storage, "cpi_yoy", 3.2, models.DateOnlyUTC(now).AddDate(0, 0, -2))
	addHistory(t, storage, "cpi_yoy", 3.5, models.DateOnlyUTC(now))

	up := expiredSignal("cpi_yoy", nil, nil, models.SignalUp)
	require.NoError(t, storage.Signals().Create(ctx, up))

	_, err := reviewer.VerifySignals(ctx, now)
	require.NoError(t, err)

	got, err := storage.Signals().Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SignalVerifiedCorrect, got.Status)
}

func TestVerifySignals_ActiveSignalsUntouched(t *testing.T) {
	reviewer, storage := newTestReviewer(t)
	ctx := context.Background()

	fresh := expiredSignal("interbank_on", fptr(3.5), fptr(4.2), models.SignalDown)
	fresh.CreatedAt = time.Now().UTC()
	require.NoError(t, storage.Signals().Create(ctx, fresh))

	verified, err := reviewer.VerifySignals(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, verified)
}

func TestRecomputeThemes_StrengthAndTransitions(t *testing.T) {
	reviewer, storage := newTestReviewer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	event := &models.Event{
		Type:             models.EventTypeNews,
		Title:            "Tỷ giá vượt đỉnh",
		Source:           "test",
		SourceURL:        "https://example.com/fx",
		PublishedAt:      now.Add(-2 * time.Hour),
		RunDate:          models.DateOnlyUTC(now),
		IsMarketRelevant: true,
		BaseScore:        80,
		CurrentScore:     80,
	}
	require.NoError(t, storage.Events().Create(ctx, event))

	strong := &models.Theme{
		Name:           "FX pressure",
		Status:         models.ThemeEmerging,
		LinkedEventIDs: []string{event.ID},
		FirstSeenAt:    now.AddDate(0, 0, -3),
		LastSeenAt:     now,
	}
	require.NoError(t, storage.Themes().Create(ctx, strong))

	orphan := &models.Theme{
		Name:        "Stale theme",
		Status:      models.ThemeActive,
		FirstSeenAt: now.AddDate(0, 0, -20),
		LastSeenAt:  now.AddDate(0, 0, -20),
	}
	require.NoError(t, storage.Themes().Create(ctx, orphan))

	require.NoError(t, reviewer.RecomputeThemes(ctx, now))

	got, err := storage.Themes().Get(ctx, strong.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Strength, 1e-9)
	assert.Equal(t, models.ThemeEmerging, got.Status, "sub-threshold emerging theme stays emerging")

	faded, err := storage.Themes().Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, faded.Strength)
	assert.Equal(t, models.ThemeFading, faded.Status, "no active evidence fades the theme")
}

func TestEvaluateWatchlist_Triggers(t *testing.T) {
	reviewer, storage := newTestReviewer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	addHistory(t, storage, "usd_vnd_central", 25600, models.DateOnlyUTC(now))

	past := now.AddDate(0, 0, -1)
	dateItem := &models.Watchlist{Type: models.WatchDate, Description: "SBV meeting", TriggerDate: &past}
	require.NoError(t, storage.Watchlists().Create(ctx, dateItem))

	condItem := &models.Watchlist{Type: models.WatchIndicator, Description: "FX ceiling", IndicatorID: "usd_vnd_central", Condition: ">= 25500"}
	require.NoError(t, storage.Watchlists().Create(ctx, condItem))

	keywordItem := &models.Watchlist{Type: models.WatchKeyword, Description: "rate cut watch", Keyword: "giảm lãi suất"}
	require.NoError(t, storage.Watchlists().Create(ctx, keywordItem))

	quietItem := &models.Watchlist{Type: models.WatchIndicator, Description: "not yet", IndicatorID: "usd_vnd_central", Condition: ">= 26000"}
	require.NoError(t, storage.Watchlists().Create(ctx, quietItem))

	snoozeUntil := now.AddDate(0, 0, 3)
	snoozedItem := &models.Watchlist{Type: models.WatchDate, Description: "snoozed", TriggerDate: &past}
	require.NoError(t, storage.Watchlists().Create(ctx, snoozedItem))
	require.NoError(t, storage.Watchlists().Snooze(ctx, snoozedItem.ID, snoozeUntil))

	titles := []string{"NHNN cân nhắc giảm lãi suất điều hành"}
	triggered, err := reviewer.EvaluateWatchlist(ctx, now, titles)
	require.NoError(t, err)
	assert.Equal(t, 3, triggered)

	fired, err := storage.Watchlists().GetTriggered(ctx)
	require.NoError(t, err)
	assert.Len(t, fired, 3)

	remaining, err := storage.Watchlists().GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "quiet and snoozed items keep watching")
}
