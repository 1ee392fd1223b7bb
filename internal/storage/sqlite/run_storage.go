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

type runStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewRunStorage creates SQLite-backed run history storage
func NewRunStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.RunStorage {
	return &runStorage{db: db, logger: logger}
}

var _ interfaces.RunStorage = (*runStorage)(nil)

const runColumns = `id, run_date, status, summary, metrics_ingested, calendar_ingested,
	events_collected, duplicates_skipped, events_classified, events_relevant,
	events_scored, events_ranked, signals_created, signals_verified, errors,
	started_at, completed_at`

func (s *runStorage) Save(ctx context.Context, run *models.RunHistory) error {
	if run.ID == "" {
		run.ID = common.NewRunID()
	}
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO run_history (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			metrics_ingested = excluded.metrics_ingested,
			calendar_ingested = excluded.calendar_ingested,
			events_collected = excluded.events_collected,
			duplicates_skipped = excluded.duplicates_skipped,
			events_classified = excluded.events_classified,
			events_relevant = excluded.events_relevant,
			events_scored = excluded.events_scored,
			events_ranked = excluded.events_ranked,
			signals_created = excluded.signals_created,
			signals_verified = excluded.signals_verified,
			errors = excluded.errors,
			completed_at = excluded.completed_at`,
		run.ID, run.RunDate.Unix(), string(run.Status), run.Summary,
		run.MetricsIngested, run.CalendarIngested, run.EventsCollected,
		run.DuplicatesSkipped, run.EventsClassified, run.EventsRelevant,
		run.EventsScored, run.EventsRanked, run.SignalsCreated, run.SignalsVerified,
		marshalJSON(run.Errors), run.StartedAt.Unix(), run.CompletedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *runStorage) GetLatest(ctx context.Context) (*models.RunHistory, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM run_history
		ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *runStorage) GetRecent(ctx context.Context, days int) ([]*models.RunHistory, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+runColumns+` FROM run_history
		WHERE started_at >= ? ORDER BY started_at DESC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var out []*models.RunHistory
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(r rowScanner) (*models.RunHistory, error) {
	var run models.RunHistory
	var status, errs string
	var runDate, startedAt, completedAt int64

	err := r.Scan(&run.ID, &runDate, &status, &run.Summary,
		&run.MetricsIngested, &run.CalendarIngested, &run.EventsCollected,
		&run.DuplicatesSkipped, &run.EventsClassified, &run.EventsRelevant,
		&run.EventsScored, &run.EventsRanked, &run.SignalsCreated, &run.SignalsVerified,
		&errs, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.Errors = unmarshalStrings(errs)
	run.RunDate = time.Unix(runDate, 0).UTC()
	run.StartedAt = time.Unix(startedAt, 0).UTC()
	run.CompletedAt = time.Unix(completedAt, 0).UTC()
	return &run, nil
}
