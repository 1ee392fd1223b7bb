package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

type themeStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewThemeStorage creates SQLite-backed theme storage
func NewThemeStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.ThemeStorage {
	return &themeStorage{db: db, logger: logger}
}

var _ interfaces.ThemeStorage = (*themeStorage)(nil)

const themeColumns = `id, name, name_vi, description, strength, peak_strength, status,
	linked_event_ids, linked_signal_ids, linked_indicators, first_seen_at, last_seen_at`

func (s *themeStorage) Create(ctx context.Context, theme *models.Theme) error {
	now := time.Now().UTC()
	if theme.ID == "" {
		theme.ID = common.NewThemeID()
	}
	if theme.Status == "" {
		theme.Status = models.ThemeEmerging
	}
	if theme.FirstSeenAt.IsZero() {
		theme.FirstSeenAt = now
	}
	if theme.LastSeenAt.IsZero() {
		theme.LastSeenAt = now
	}
	if theme.PeakStrength < theme.Strength {
		theme.PeakStrength = theme.Strength
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO themes (`+themeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		theme.ID, theme.Name, theme.NameVI, theme.Description,
		theme.Strength, theme.PeakStrength, string(theme.Status),
		marshalJSON(theme.LinkedEventIDs), marshalJSON(theme.LinkedSignalIDs),
		marshalJSON(theme.LinkedIndicators),
		theme.FirstSeenAt.Unix(), theme.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create theme %q: %w", theme.Name, err)
	}
	return nil
}

func (s *themeStorage) Get(ctx context.Context, id string) (*models.Theme, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+themeColumns+` FROM themes WHERE id = ?`, id)
	theme, err := scanTheme(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("theme not found: %s", id)
	}
	return theme, err
}

func (s *themeStorage) GetActiveAndEmerging(ctx context.Context, limit int) ([]*models.Theme, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+themeColumns+` FROM themes
		WHERE status IN (?, ?)
		ORDER BY strength DESC LIMIT ?`,
		string(models.ThemeActive), string(models.ThemeEmerging), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query themes: %w", err)
	}
	defer rows.Close()

	var out []*models.Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, theme)
	}
	return out, rows.Err()
}

func (s *themeStorage) UpdateStrength(ctx context.Context, id string, strength, peak float64, status models.ThemeStatus) error {
	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE themes SET strength = ?, peak_strength = ?, status = ?
		WHERE id = ?`, strength, peak, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update theme %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("theme not found: %s", id)
	}
	return nil
}

func (s *themeStorage) LinkEvent(ctx context.Context, themeID, eventID string, seenAt time.Time) error {
	theme, err := s.Get(ctx, themeID)
	if err != nil {
		return err
	}
	for _, id := range theme.LinkedEventIDs {
		if id == eventID {
			// Already linked; still bump last_seen_at
			_, err := s.db.DB().ExecContext(ctx,
				`UPDATE themes SET last_seen_at = ? WHERE id = ?`, seenAt.Unix(), themeID)
			return err
		}
	}
	theme.LinkedEventIDs = append(theme.LinkedEventIDs, eventID)

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE themes SET linked_event_ids = ?, last_seen_at = ? WHERE id = ?`,
		marshalJSON(theme.LinkedEventIDs), seenAt.Unix(), themeID)
	if err != nil {
		return fmt.Errorf("failed to link event %s to theme %s: %w", eventID, themeID, err)
	}
	return nil
}

func scanTheme(r rowScanner) (*models.Theme, error) {
	var t models.Theme
	var status, eventIDs, signalIDs, indicators string
	var firstSeen, lastSeen int64

	err := r.Scan(&t.ID, &t.Name, &t.NameVI, &t.Description, &t.Strength, &t.PeakStrength,
		&status, &eventIDs, &signalIDs, &indicators, &firstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}

	t.Status = models.ThemeStatus(status)
	t.LinkedEventIDs = unmarshalStrings(eventIDs)
	t.LinkedSignalIDs = unmarshalStrings(signalIDs)
	t.LinkedIndicators = unmarshalStrings(indicators)
	t.FirstSeenAt = time.Unix(firstSeen, 0).UTC()
	t.LastSeenAt = time.Unix(lastSeen, 0).UTC()
	return &t, nil
}
