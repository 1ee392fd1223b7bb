package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

type eventStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewEventStorage creates SQLite-backed event storage
func NewEventStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.EventStorage {
	return &eventStorage{db: db, logger: logger}
}

var _ interfaces.EventStorage = (*eventStorage)(nil)

const eventColumns = `id, hash, type, title, summary, content, source, source_url,
	published_at, run_date, is_market_relevant, category, region, linked_indicators,
	base_score, score_factors, score_error, current_score, decay_factor, boost_factor,
	display_section, hot_topic, is_follow_up, thread_id, last_ranked_at, created_at, updated_at`

func (s *eventStorage) Create(ctx context.Context, event *models.Event) error {
	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = common.NewEventID()
	}
	if event.Hash == "" {
		event.Hash = models.ComputeEventHash(event.Title, event.Source, event.Content)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Hash, string(event.Type), event.Title, event.Summary, event.Content,
		event.Source, event.SourceURL,
		event.PublishedAt.Unix(), event.RunDate.Unix(),
		boolToInt(event.IsMarketRelevant), event.Category, event.Region,
		marshalJSON(event.LinkedIndicators),
		event.BaseScore, marshalJSON(event.ScoreFactors), event.ScoreError,
		event.CurrentScore, event.DecayFactor, event.BoostFactor,
		string(event.DisplaySection), boolToInt(event.HotTopic), boolToInt(event.IsFollowUp),
		event.ThreadID, nullUnix(&event.LastRankedAt),
		event.CreatedAt.Unix(), event.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create event %s: %w", event.ID, err)
	}
	return nil
}

func (s *eventStorage) FindByHash(ctx context.Context, hash string) (*models.Event, error) {
	row := s.db.DB().QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE hash = ?`, hash)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return event, err
}

func (s *eventStorage) GetRecentTitles(ctx context.Context, source string, days int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := `SELECT title FROM events WHERE published_at >= ?`
	args := []interface{}{cutoff.Unix()}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (s *eventStorage) GetActiveEvents(ctx context.Context, maxAgeDays int) ([]*models.Event, error) {
	cutoff := models.DateOnlyUTC(time.Now().UTC()).AddDate(0, 0, -maxAgeDays)

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE published_at >= ? AND is_market_relevant = 1
		ORDER BY published_at DESC`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query active events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *eventStorage) UpdateScores(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	res, err := s.db.DB().ExecContext(ctx, `
		UPDATE events SET
			current_score = ?, decay_factor = ?, boost_factor = ?,
			display_section = ?, hot_topic = ?, is_follow_up = ?, thread_id = ?,
			base_score = ?, score_factors = ?, score_error = ?,
			last_ranked_at = ?, updated_at = ?
		WHERE id = ?`,
		event.CurrentScore, event.DecayFactor, event.BoostFactor,
		string(event.DisplaySection), boolToInt(event.HotTopic), boolToInt(event.IsFollowUp), event.ThreadID,
		event.BaseScore, marshalJSON(event.ScoreFactors), event.ScoreError,
		nullUnix(&event.LastRankedAt), event.UpdatedAt.Unix(),
		event.ID)
	if err != nil {
		return fmt.Errorf("failed to update scores for event %s: %w", event.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("event not found: %s", event.ID)
	}
	return nil
}

func (s *eventStorage) GetBySection(ctx context.Context, section models.DisplaySection, limit, offset int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	// Key events read in score order; the other sections are chronological.
	orderBy := `published_at DESC`
	if section == models.SectionKeyEvents {
		orderBy = `current_score DESC, published_at DESC`
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE display_section = ?
		ORDER BY `+orderBy+`
		LIMIT ? OFFSET ?`, string(section), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by section: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *eventStorage) SaveCausalAnalysis(ctx context.Context, ca *models.CausalAnalysis) error {
	if ca.CreatedAt.IsZero() {
		ca.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO causal_analyses
			(event_id, matched_template_id, chain, confidence, investigation_hints, affected_indicators, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			matched_template_id = excluded.matched_template_id,
			chain = excluded.chain,
			confidence = excluded.confidence,
			investigation_hints = excluded.investigation_hints,
			affected_indicators = excluded.affected_indicators,
			reasoning = excluded.reasoning`,
		ca.EventID, ca.MatchedTemplateID, marshalJSON(ca.Chain), string(ca.Confidence),
		marshalJSON(ca.InvestigationHints), marshalJSON(ca.AffectedIndicators),
		ca.Reasoning, ca.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save causal analysis for event %s: %w", ca.EventID, err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		ca.ID = id
	}
	return nil
}

func (s *eventStorage) GetCausalAnalysis(ctx context.Context, eventID string) (*models.CausalAnalysis, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, event_id, matched_template_id, chain, confidence, investigation_hints, affected_indicators, reasoning, created_at
		FROM causal_analyses WHERE event_id = ?`, eventID)
	ca, err := scanCausalAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ca, err
}

func (s *eventStorage) GetCausalAnalyses(ctx context.Context, eventIDs []string) (map[string]*models.CausalAnalysis, error) {
	result := make(map[string]*models.CausalAnalysis)
	if len(eventIDs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(eventIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, event_id, matched_template_id, chain, confidence, investigation_hints, affected_indicators, reasoning, created_at
		FROM causal_analyses WHERE event_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query causal analyses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ca, err := scanCausalAnalysis(rows)
		if err != nil {
			return nil, err
		}
		result[ca.EventID] = ca
	}
	return result, rows.Err()
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(r rowScanner) (*models.Event, error) {
	var e models.Event
	var typ, section string
	var publishedAt, runDate, createdAt, updatedAt int64
	var lastRankedAt sql.NullInt64
	var marketRelevant, hotTopic, isFollowUp int
	var linkedIndicators, scoreFactors string
	var threadID sql.NullString

	err := r.Scan(&e.ID, &e.Hash, &typ, &e.Title, &e.Summary, &e.Content, &e.Source, &e.SourceURL,
		&publishedAt, &runDate, &marketRelevant, &e.Category, &e.Region, &linkedIndicators,
		&e.BaseScore, &scoreFactors, &e.ScoreError, &e.CurrentScore, &e.DecayFactor, &e.BoostFactor,
		&section, &hotTopic, &isFollowUp, &threadID, &lastRankedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = models.EventType(typ)
	e.DisplaySection = models.DisplaySection(section)
	e.PublishedAt = time.Unix(publishedAt, 0).UTC()
	e.RunDate = time.Unix(runDate, 0).UTC()
	e.IsMarketRelevant = marketRelevant != 0
	e.HotTopic = hotTopic != 0
	e.IsFollowUp = isFollowUp != 0
	e.LinkedIndicators = unmarshalStrings(linkedIndicators)
	e.ScoreFactors = unmarshalFloatMap(scoreFactors)
	e.ThreadID = threadID.String
	if lastRankedAt.Valid {
		e.LastRankedAt = time.Unix(lastRankedAt.Int64, 0).UTC()
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &e, nil
}

func scanCausalAnalysis(r rowScanner) (*models.CausalAnalysis, error) {
	var ca models.CausalAnalysis
	var confidence, chain, hints, indicators string
	var createdAt int64
	err := r.Scan(&ca.ID, &ca.EventID, &ca.MatchedTemplateID, &chain, &confidence,
		&hints, &indicators, &ca.Reasoning, &createdAt)
	if err != nil {
		return nil, err
	}
	ca.Confidence = models.Confidence(confidence)
	ca.Chain = unmarshalStrings(chain)
	ca.InvestigationHints = unmarshalStrings(hints)
	ca.AffectedIndicators = unmarshalStrings(indicators)
	ca.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ca, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
