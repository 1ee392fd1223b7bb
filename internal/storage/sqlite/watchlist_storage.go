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

type watchlistStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewWatchlistStorage creates SQLite-backed watchlist storage
func NewWatchlistStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.WatchlistStorage {
	return &watchlistStorage{db: db, logger: logger}
}

var _ interfaces.WatchlistStorage = (*watchlistStorage)(nil)

const watchlistColumns = `id, type, description, indicator_id, condition, keyword,
	trigger_date, status, snoozed_until, created_at, triggered_at`

func (s *watchlistStorage) Create(ctx context.Context, item *models.Watchlist) error {
	if item.ID == "" {
		item.ID = common.NewWatchID()
	}
	if item.Status == "" {
		item.Status = models.WatchWatching
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO watchlist (`+watchlistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Type), item.Description, item.IndicatorID,
		item.Condition, item.Keyword, nullUnix(item.TriggerDate),
		string(item.Status), nullUnix(item.SnoozedUntil),
		item.CreatedAt.Unix(), nullUnix(item.TriggeredAt))
	if err != nil {
		return fmt.Errorf("failed to create watchlist item %s: %w", item.ID, err)
	}
	return nil
}

func (s *watchlistStorage) GetActive(ctx context.Context) ([]*models.Watchlist, error) {
	return s.getByStatus(ctx, models.WatchWatching)
}

func (s *watchlistStorage) GetTriggered(ctx context.Context) ([]*models.Watchlist, error) {
	return s.getByStatus(ctx, models.WatchTriggered)
}

func (s *watchlistStorage) getByStatus(ctx context.Context, status models.WatchlistStatus) ([]*models.Watchlist, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+watchlistColumns+` FROM watchlist
		WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var out []*models.Watchlist
	for rows.Next() {
		item, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *watchlistStorage) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, `
		UPDATE watchlist SET status = ?, triggered_at = ? WHERE id = ?`,
		string(models.WatchTriggered), at.Unix(), id)
}

func (s *watchlistStorage) UpdateStatus(ctx context.Context, id string, status models.WatchlistStatus) error {
	return s.update(ctx, id, `
		UPDATE watchlist SET status = ? WHERE id = ?`, string(status), id)
}

func (s *watchlistStorage) Snooze(ctx context.Context, id string, until time.Time) error {
	return s.update(ctx, id, `
		UPDATE watchlist SET snoozed_until = ? WHERE id = ?`, until.Unix(), id)
}

func (s *watchlistStorage) update(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update watchlist item %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("watchlist item not found: %s", id)
	}
	return nil
}

func scanWatchlist(r rowScanner) (*models.Watchlist, error) {
	var w models.Watchlist
	var typ, status string
	var triggerDate, snoozedUntil, triggeredAt sql.NullInt64
	var createdAt int64

	err := r.Scan(&w.ID, &typ, &w.Description, &w.IndicatorID, &w.Condition, &w.Keyword,
		&triggerDate, &status, &snoozedUntil, &createdAt, &triggeredAt)
	if err != nil {
		return nil, err
	}

	w.Type = models.WatchlistType(typ)
	w.Status = models.WatchlistStatus(status)
	w.TriggerDate = unixPtr(triggerDate)
	w.SnoozedUntil = unixPtr(snoozedUntil)
	w.TriggeredAt = unixPtr(triggeredAt)
	w.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &w, nil
}
