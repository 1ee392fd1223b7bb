package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

type llmCallStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewLLMCallStorage creates SQLite-backed LLM call history storage
func NewLLMCallStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.LLMCallStorage {
	return &llmCallStorage{db: db, logger: logger}
}

var _ interfaces.LLMCallStorage = (*llmCallStorage)(nil)

func (s *llmCallStorage) Append(ctx context.Context, rec *models.LLMCallRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal call messages: %w", err)
	}

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO llm_call_history
			(run_id, task_type, provider, model, messages, response, input_tokens,
			 output_tokens, latency_ms, success, error, is_valid_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TaskType, rec.Provider, rec.Model, string(messages), rec.Response,
		rec.InputTokens, rec.OutputTokens, rec.LatencyMS,
		boolToInt(rec.Success), rec.Error, boolToInt(rec.IsValidJSON),
		rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to append llm call record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

func (s *llmCallStorage) GetRecent(ctx context.Context, limit int) ([]*models.LLMCallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, run_id, task_type, provider, model, messages, response, input_tokens,
			output_tokens, latency_ms, success, error, is_valid_json, created_at
		FROM llm_call_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query llm call history: %w", err)
	}
	defer rows.Close()

	var out []*models.LLMCallRecord
	for rows.Next() {
		var rec models.LLMCallRecord
		var messages string
		var success, validJSON int
		var createdAt int64

		err := rows.Scan(&rec.ID, &rec.RunID, &rec.TaskType, &rec.Provider, &rec.Model,
			&messages, &rec.Response, &rec.InputTokens, &rec.OutputTokens, &rec.LatencyMS,
			&success, &rec.Error, &validJSON, &createdAt)
		if err != nil {
			return nil, err
		}

		if messages != "" {
			if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
				s.logger.Warn().Err(err).Int64("id", rec.ID).Msg("Failed to unmarshal call messages")
			}
		}
		rec.Success = success != 0
		rec.IsValidJSON = validJSON != 0
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *llmCallStorage) CountForRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM llm_call_history WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count llm calls for run %s: %w", runID, err)
	}
	return count, nil
}
