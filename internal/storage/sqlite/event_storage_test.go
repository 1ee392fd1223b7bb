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

func newTestEvent(title string) *models.Event {
	now := time.Now().UTC()
	return &models.Event{
		Type:             models.EventTypeNews,
		Title:            title,
		Summary:          "summary of " + title,
		Content:          "content of " + title,
		Source:           "vneconomy",
		SourceURL:        "https://vneconomy.vn/test",
		PublishedAt:      now,
		RunDate:          models.DateOnlyUTC(now),
		IsMarketRelevant: true,
		DisplaySection:   models.SectionOtherNews,
		DecayFactor:      1.0,
		BoostFactor:      1.0,
	}
}

func TestEventCreate_AssignsIDAndHash(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	event := newTestEvent("SBV raises OMO rates")
	require.NoError(t, storage.Create(ctx, event))

	assert.NotEmpty(t, event.ID)
	assert.NotEmpty(t, event.Hash)
	assert.Equal(t, models.ComputeEventHash(event.Title, event.Source, event.Content), event.Hash)
}

func TestEventCreate_DuplicateHashRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Create(ctx, newTestEvent("same story")))
	err := storage.Create(ctx, newTestEvent("same story"))
	assert.Error(t, err, "unique hash index should reject the duplicate")
}

func TestFindByHash(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	event := newTestEvent("CPI tháng 8 tăng 0,25%")
	event.LinkedIndicators = []string{"cpi_mom", "cpi_yoy"}
	event.ScoreFactors = map[string]float64{"magnitude": 0.7}
	require.NoError(t, storage.Create(ctx, event))

	found, err := storage.FindByHash(ctx, event.Hash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, event.ID, found.ID)
	assert.Equal(t, []string{"cpi_mom", "cpi_yoy"}, found.LinkedIndicators)
	assert.Equal(t, 0.7, found.ScoreFactors["magnitude"])

	missing, err := storage.FindByHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetRecentTitles_FiltersBySourceAndWindow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	fresh := newTestEvent("fresh article")
	require.NoError(t, storage.Create(ctx, fresh))

	stale := newTestEvent("stale article")
	stale.PublishedAt = time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, storage.Create(ctx, stale))

	other := newTestEvent("other source article")
	other.Source = "sbv"
	require.NoError(t, storage.Create(ctx, other))

	titles, err := storage.GetRecentTitles(ctx, "vneconomy", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh article"}, titles)

	all, err := storage.GetRecentTitles(ctx, "", 7)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetActiveEvents_ExcludesOldAndIrrelevant(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	active := newTestEvent("active event")
	require.NoError(t, storage.Create(ctx, active))

	old := newTestEvent("ancient event")
	old.PublishedAt = time.Now().UTC().AddDate(0, 0, -45)
	require.NoError(t, storage.Create(ctx, old))

	irrelevant := newTestEvent("not market relevant")
	irrelevant.IsMarketRelevant = false
	require.NoError(t, storage.Create(ctx, irrelevant))

	events, err := storage.GetActiveEvents(ctx, 30)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "active event", events[0].Title)
}

func TestUpdateScores_RoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	event := newTestEvent("scored event")
	require.NoError(t, storage.Create(ctx, event))

	event.BaseScore = 80
	event.CurrentScore = 68
	event.DecayFactor = 0.85
	event.BoostFactor = 1.0
	event.DisplaySection = models.SectionOtherNews
	event.HotTopic = true
	event.LastRankedAt = time.Now().UTC()
	require.NoError(t, storage.UpdateScores(ctx, event))

	stored, err := storage.FindByHash(ctx, event.Hash)
	require.NoError(t, err)
	assert.Equal(t, 80.0, stored.BaseScore)
	assert.Equal(t, 68.0, stored.CurrentScore)
	assert.Equal(t, 0.85, stored.DecayFactor)
	assert.True(t, stored.HotTopic)
	assert.False(t, stored.LastRankedAt.IsZero())
}

func TestUpdateScores_MissingEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	event := newTestEvent("ghost")
	event.ID = "evt_missing"
	err := storage.UpdateScores(context.Background(), event)
	assert.Error(t, err)
}

func TestGetBySection_OrderedByScore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	scores := []float64{55, 90, 72}
	for i, score := range scores {
		event := newTestEvent("key event " + string(rune('a'+i)))
		event.CurrentScore = score
		event.DisplaySection = models.SectionKeyEvents
		require.NoError(t, storage.Create(ctx, event))
	}

	events, err := storage.GetBySection(ctx, models.SectionKeyEvents, 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 90.0, events[0].CurrentScore)
	assert.Equal(t, 72.0, events[1].CurrentScore)
	assert.Equal(t, 55.0, events[2].CurrentScore)
}

func TestGetBySection_OtherSectionsChronological(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()
	now := time.Now().UTC()

	// An older story with a higher score must not outrank a newer one
	// outside the key-events section.
	for _, section := range []models.DisplaySection{models.SectionOtherNews, models.SectionArchive} {
		older := newTestEvent("older high score " + string(section))
		older.CurrentScore = 90
		older.PublishedAt = now.Add(-48 * time.Hour)
		older.DisplaySection = section
		require.NoError(t, storage.Create(ctx, older))

		newer := newTestEvent("newer low score " + string(section))
		newer.CurrentScore = 45
		newer.PublishedAt = now
		newer.DisplaySection = section
		require.NoError(t, storage.Create(ctx, newer))

		events, err := storage.GetBySection(ctx, section, 10, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "newer low score "+string(section), events[0].Title)
		assert.Equal(t, "older high score "+string(section), events[1].Title)
	}
}

func TestCausalAnalysis_SaveAndFetch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	event := newTestEvent("fed decision")
	require.NoError(t, storage.Create(ctx, event))

	ca := &models.CausalAnalysis{
		EventID:            event.ID,
		MatchedTemplateID:  "fed_rate_hike",
		Chain:              []string{"Fed tăng lãi suất", "USD mạnh lên", "Tỷ giá USD/VND tăng"},
		Confidence:         models.ConfidenceLikely,
		AffectedIndicators: []string{"usd_vnd"},
		Reasoning:          "rate differential pressure",
	}
	require.NoError(t, storage.SaveCausalAnalysis(ctx, ca))

	stored, err := storage.GetCausalAnalysis(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "fed_rate_hike", stored.MatchedTemplateID)
	assert.Len(t, stored.Chain, 3)

	// Upsert on the same event replaces, not duplicates
	ca.Confidence = models.ConfidenceVerified
	require.NoError(t, storage.SaveCausalAnalysis(ctx, ca))

	stored, err = storage.GetCausalAnalysis(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfidenceVerified, stored.Confidence)

	byID, err := storage.GetCausalAnalyses(ctx, []string{event.ID, "evt_absent"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Contains(t, byID, event.ID)

	none, err := storage.GetCausalAnalysis(ctx, "evt_absent")
	require.NoError(t, err)
	assert.Nil(t, none)
}
