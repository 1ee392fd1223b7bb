package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

type calendarStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCalendarStorage creates SQLite-backed calendar storage
func NewCalendarStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CalendarStorage {
	return &calendarStorage{db: db, logger: logger}
}

var _ interfaces.CalendarStorage = (*calendarStorage)(nil)

func (s *calendarStorage) Insert(ctx context.Context, rec *models.CalendarRecord) (bool, error) {
	date := models.DateOnlyUTC(rec.Date)
	res, err := s.db.DB().ExecContext(ctx, `
		INSERT OR IGNORE INTO calendar_events
			(event_name, country, date, time, importance, previous, forecast, actual, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EventName, rec.Country, date.Unix(), rec.Time, rec.Importance,
		rec.Previous, rec.Forecast, rec.Actual, time.Now().UTC().Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert calendar event %q: %w", rec.EventName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *calendarStorage) GetUpcoming(ctx context.Context, days int) ([]models.CalendarRecord, error) {
	today := models.DateOnlyUTC(time.Now().UTC())
	until := today.AddDate(0, 0, days)

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT event_name, country, date, time, importance, previous, forecast, actual
		FROM calendar_events
		WHERE date >= ? AND date < ?
		ORDER BY date, time`, today.Unix(), until.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming calendar events: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarRecord
	for rows.Next() {
		var rec models.CalendarRecord
		var date int64
		if err := rows.Scan(&rec.EventName, &rec.Country, &date, &rec.Time,
			&rec.Importance, &rec.Previous, &rec.Forecast, &rec.Actual); err != nil {
			return nil, err
		}
		rec.Date = time.Unix(date, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}
