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

type signalStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewSignalStorage creates SQLite-backed signal storage
func NewSignalStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SignalStorage {
	return &signalStorage{db: db, logger: logger}
}

var _ interfaces.SignalStorage = (*signalStorage)(nil)

const signalColumns = `id, prediction, direction, target_indicator, target_range_low, target_range_high,
	confidence, timeframe_days, source_event_ids, status, actual_value, reasoning,
	created_at, expires_at, verified_at`

func (s *signalStorage) Create(ctx context.Context, signal *models.Signal) error {
	if signal.ID == "" {
		signal.ID = common.NewSignalID()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	if signal.Status == "" {
		signal.Status = models.SignalActive
	}
	if signal.ExpiresAt.IsZero() {
		signal.ExpiresAt = signal.CreatedAt.AddDate(0, 0, signal.TimeframeDays)
	}

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO signals (`+signalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		signal.ID, signal.Prediction, string(signal.Direction), signal.TargetIndicator,
		nullFloat(signal.TargetRangeLow), nullFloat(signal.TargetRangeHigh),
		string(signal.Confidence), signal.TimeframeDays, marshalJSON(signal.SourceEventIDs),
		string(signal.Status), nullFloat(signal.ActualValue), signal.Reasoning,
		signal.CreatedAt.Unix(), signal.ExpiresAt.Unix(), nullUnix(signal.VerifiedAt))
	if err != nil {
		return fmt.Errorf("failed to create signal %s: %w", signal.ID, err)
	}
	return nil
}

func (s *signalStorage) Get(ctx context.Context, id string) (*models.Signal, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	signal, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("signal not found: %s", id)
	}
	return signal, err
}

func (s *signalStorage) GetActive(ctx context.Context) ([]*models.Signal, error) {
	return s.GetByStatus(ctx, models.SignalActive)
}

func (s *signalStorage) GetByStatus(ctx context.Context, status models.SignalStatus) ([]*models.Signal, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE status = ? ORDER BY expires_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals by status: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *signalStorage) GetExpiredUnverified(ctx context.Context, now time.Time) ([]*models.Signal, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+signalColumns+` FROM signals
		WHERE status = ? AND expires_at <= ?
		ORDER BY expires_at`, string(models.SignalActive), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query expired signals: %w", err)
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (s *signalStorage) Verify(ctx context.Context, id string, status models.SignalStatus, actual *float64) error {
	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE signals SET status = ?, actual_value = ?, verified_at = ?
		WHERE id = ?`,
		string(status), nullFloat(actual), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to verify signal %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("signal not found: %s", id)
	}
	return nil
}

func (s *signalStorage) GetAccuracyStats(ctx context.Context, days int, confidence models.SignalConfidence, indicatorID string) (*models.SignalAccuracyStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status = 'verified_correct' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'verified_wrong' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'expired' THEN 1 ELSE 0 END)
		FROM signals WHERE created_at >= ?`
	args := []interface{}{cutoff.Unix()}
	if confidence != "" {
		query += ` AND confidence = ?`
		args = append(args, string(confidence))
	}
	if indicatorID != "" {
		query += ` AND target_indicator = ?`
		args = append(args, indicatorID)
	}

	var stats models.SignalAccuracyStats
	var correct, wrong, expired sql.NullInt64
	err := s.db.DB().QueryRowContext(ctx, query, args...).
		Scan(&stats.Total, &correct, &wrong, &expired)
	if err != nil {
		return nil, fmt.Errorf("failed to query accuracy stats: %w", err)
	}
	stats.VerifiedCorrect = int(correct.Int64)
	stats.VerifiedWrong = int(wrong.Int64)
	stats.Expired = int(expired.Int64)
	if resolved := stats.VerifiedCorrect + stats.VerifiedWrong; resolved > 0 {
		stats.Accuracy = float64(stats.VerifiedCorrect) / float64(resolved)
	}
	return &stats, nil
}

func collectSignals(rows *sql.Rows) ([]*models.Signal, error) {
	var out []*models.Signal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, signal)
	}
	return out, rows.Err()
}

func scanSignal(r rowScanner) (*models.Signal, error) {
	var sig models.Signal
	var direction, confidence, status, eventIDs string
	var rangeLow, rangeHigh, actual sql.NullFloat64
	var createdAt, expiresAt int64
	var verifiedAt sql.NullInt64

	err := r.Scan(&sig.ID, &sig.Prediction, &direction, &sig.TargetIndicator,
		&rangeLow, &rangeHigh, &confidence, &sig.TimeframeDays, &eventIDs,
		&status, &actual, &sig.Reasoning, &createdAt, &expiresAt, &verifiedAt)
	if err != nil {
		return nil, err
	}

	sig.Direction = models.SignalDirection(direction)
	sig.Confidence = models.SignalConfidence(confidence)
	sig.Status = models.SignalStatus(status)
	sig.TargetRangeLow = floatPtr(rangeLow)
	sig.TargetRangeHigh = floatPtr(rangeHigh)
	sig.ActualValue = floatPtr(actual)
	sig.SourceEventIDs = unmarshalStrings(eventIDs)
	sig.CreatedAt = time.Unix(createdAt, 0).UTC()
	sig.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	sig.VerifiedAt = unixPtr(verifiedAt)
	return &sig, nil
}
