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

func TestThemeCreate_DefaultsAndUniqueName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewThemeStorage(db, arbor.NewLogger())
	ctx := context.Background()

	theme := &models.Theme{
		Name:             "tiền tệ thắt chặt",
		NameVI:           "tiền tệ thắt chặt",
		Strength:         2.5,
		LinkedIndicators: []string{"omo_net_daily", "interbank_on"},
	}
	require.NoError(t, storage.Create(ctx, theme))
	assert.NotEmpty(t, theme.ID)
	assert.Equal(t, models.ThemeEmerging, theme.Status)
	assert.Equal(t, 2.5, theme.PeakStrength)

	dup := &models.Theme{Name: "tiền tệ thắt chặt"}
	assert.Error(t, storage.Create(ctx, dup))
}

func TestThemeUpdateStrength(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewThemeStorage(db, arbor.NewLogger())
	ctx := context.Background()

	theme := &models.Theme{Name: "áp lực tỷ giá", Strength: 1.0}
	require.NoError(t, storage.Create(ctx, theme))

	require.NoError(t, storage.UpdateStrength(ctx, theme.ID, 4.2, 4.2, models.ThemeActive))

	stored, err := storage.Get(ctx, theme.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.2, stored.Strength)
	assert.Equal(t, models.ThemeActive, stored.Status)

	assert.Error(t, storage.UpdateStrength(ctx, "thm_missing", 1, 1, models.ThemeFading))
}

func TestThemeGetActiveAndEmerging_ExcludesArchived(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewThemeStorage(db, arbor.NewLogger())
	ctx := context.Background()

	themes := []*models.Theme{
		{Name: "active theme", Strength: 5, Status: models.ThemeActive},
		{Name: "emerging theme", Strength: 2, Status: models.ThemeEmerging},
		{Name: "archived theme", Strength: 0, Status: models.ThemeArchived},
	}
	for _, th := range themes {
		require.NoError(t, storage.Create(ctx, th))
	}

	got, err := storage.GetActiveAndEmerging(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "active theme", got[0].Name) // strongest first
}

func TestThemeLinkEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewThemeStorage(db, arbor.NewLogger())
	ctx := context.Background()

	theme := &models.Theme{Name: "linked theme"}
	require.NoError(t, storage.Create(ctx, theme))

	seen := time.Now().UTC().Add(time.Hour)
	require.NoError(t, storage.LinkEvent(ctx, theme.ID, "evt_1", seen))
	require.NoError(t, storage.LinkEvent(ctx, theme.ID, "evt_2", seen))
	// Re-linking the same event does not duplicate
	require.NoError(t, storage.LinkEvent(ctx, theme.ID, "evt_1", seen))

	stored, err := storage.Get(ctx, theme.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"evt_1", "evt_2"}, stored.LinkedEventIDs)
	assert.Equal(t, seen.Unix(), stored.LastSeenAt.Unix())
}
