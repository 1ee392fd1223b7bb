package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

type indicatorStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewIndicatorStorage creates SQLite-backed indicator storage
func NewIndicatorStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.IndicatorStorage {
	return &indicatorStorage{db: db, logger: logger}
}

var _ interfaces.IndicatorStorage = (*indicatorStorage)(nil)

func (s *indicatorStorage) Upsert(ctx context.Context, indicator *models.Indicator) error {
	if indicator.UpdatedAt.IsZero() {
		indicator.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO indicators (id, name, name_vi, category, unit, value, change, change_pct, trend, source, source_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_vi = excluded.name_vi,
			category = excluded.category,
			unit = excluded.unit,
			value = excluded.value,
			change = excluded.change,
			change_pct = excluded.change_pct,
			trend = excluded.trend,
			source = excluded.source,
			source_url = excluded.source_url,
			updated_at = excluded.updated_at`,
		indicator.ID, indicator.Name, indicator.NameVI, indicator.Category, indicator.Unit,
		indicator.Value, indicator.Change, indicator.ChangePct, string(indicator.Trend),
		indicator.Source, indicator.SourceURL, indicator.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert indicator %s: %w", indicator.ID, err)
	}
	return nil
}

func (s *indicatorStorage) Get(ctx context.Context, id string) (*models.Indicator, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, name, name_vi, category, unit, value, change, change_pct, trend, source, source_url, updated_at
		FROM indicators WHERE id = ?`, id)
	ind, err := scanIndicator(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("indicator not found: %s", id)
	}
	return ind, err
}

func (s *indicatorStorage) GetAllGrouped(ctx context.Context) ([]models.IndicatorGroup, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, name, name_vi, category, unit, value, change, change_pct, trend, source, source_url, updated_at
		FROM indicators ORDER BY category, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	var groups []models.IndicatorGroup
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].Category != ind.Category {
			groups = append(groups, models.IndicatorGroup{Category: ind.Category})
		}
		g := &groups[len(groups)-1]
		g.Indicators = append(g.Indicators, *ind)
	}
	return groups, rows.Err()
}

func (s *indicatorStorage) AddHistory(ctx context.Context, h *models.IndicatorHistory) (*models.IndicatorHistory, error) {
	if h.RecordedAt.IsZero() {
		h.RecordedAt = time.Now().UTC()
	}
	date := models.DateOnlyUTC(h.Date)

	// Compute deltas against the latest prior row before inserting.
	prev, err := s.LatestHistory(ctx, h.IndicatorID)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		h.PreviousValue = prev.Value
		h.Change = h.Value - prev.Value
		if prev.Value != 0 {
			h.ChangePct = h.Change / prev.Value * 100
		}
	}

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT OR IGNORE INTO indicator_history
			(indicator_id, value, previous_value, change, change_pct, volume, date, recorded_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.IndicatorID, h.Value, h.PreviousValue, h.Change, h.ChangePct, h.Volume,
		date.Unix(), h.RecordedAt.Unix(), h.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to add history for %s: %w", h.IndicatorID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Same (indicator, date, value) already recorded
		return nil, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	h.ID = id
	h.Date = date
	return h, nil
}

func (s *indicatorStorage) GetHistory(ctx context.Context, indicatorID string, days, limit int) ([]models.IndicatorHistory, error) {
	if limit <= 0 {
		limit = 500
	}
	cutoff := models.DateOnlyUTC(time.Now().UTC()).AddDate(0, 0, -days)

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, indicator_id, value, previous_value, change, change_pct, volume, date, recorded_at, source
		FROM indicator_history
		WHERE indicator_id = ? AND date >= ?
		ORDER BY date DESC LIMIT ?`,
		indicatorID, cutoff.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", indicatorID, err)
	}
	defer rows.Close()

	var out []models.IndicatorHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func (s *indicatorStorage) LatestHistory(ctx context.Context, indicatorID string) (*models.IndicatorHistory, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, indicator_id, value, previous_value, change, change_pct, volume, date, recorded_at, source
		FROM indicator_history
		WHERE indicator_id = ?
		ORDER BY date DESC, id DESC LIMIT 1`, indicatorID)
	h, err := scanHistory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return h, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIndicator(r rowScanner) (*models.Indicator, error) {
	var ind models.Indicator
	var trend string
	var updatedAt int64
	err := r.Scan(&ind.ID, &ind.Name, &ind.NameVI, &ind.Category, &ind.Unit,
		&ind.Value, &ind.Change, &ind.ChangePct, &trend, &ind.Source, &ind.SourceURL, &updatedAt)
	if err != nil {
		return nil, err
	}
	ind.Trend = models.Trend(trend)
	ind.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ind, nil
}

func scanHistory(r rowScanner) (*models.IndicatorHistory, error) {
	var h models.IndicatorHistory
	var date, recordedAt int64
	err := r.Scan(&h.ID, &h.IndicatorID, &h.Value, &h.PreviousValue, &h.Change,
		&h.ChangePct, &h.Volume, &date, &recordedAt, &h.Source)
	if err != nil {
		return nil, err
	}
	h.Date = time.Unix(date, 0).UTC()
	h.RecordedAt = time.Unix(recordedAt, 0).UTC()
	return &h, nil
}
