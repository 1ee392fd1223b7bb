package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/models"
)

func TestLLMCallAppendAndGetRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewLLMCallStorage(db, arbor.NewLogger())
	ctx := context.Background()

	rec := &models.LLMCallRecord{
		RunID:    "run_test",
		TaskType: "classify",
		Provider: "claude",
		Model:    "claude-haiku-3-5-20241022",
		Messages: []models.LLMMessage{
			{Role: "system", Content: "You are a classifier."},
			{Role: "user", Content: "Classify this article."},
		},
		Response:     `{"is_market_relevant": true}`,
		InputTokens:  150,
		OutputTokens: 20,
		LatencyMS:    840,
		Success:      true,
		IsValidJSON:  true,
	}
	require.NoError(t, storage.Append(ctx, rec))
	assert.Greater(t, rec.ID, int64(0))

	failed := &models.LLMCallRecord{
		RunID:    "run_test",
		TaskType: "score",
		Provider: "claude",
		Model:    "claude-haiku-3-5-20241022",
		Messages: []models.LLMMessage{{Role: "user", Content: "Score this."}},
		Response: "I cannot produce JSON here",
		Success:  true,
	}
	require.NoError(t, storage.Append(ctx, failed))

	recent, err := storage.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first
	assert.Equal(t, "score", recent[0].TaskType)
	assert.False(t, recent[0].IsValidJSON)
	assert.Equal(t, "classify", recent[1].TaskType)
	assert.True(t, recent[1].IsValidJSON)
	require.Len(t, recent[1].Messages, 2)
	assert.Equal(t, "system", recent[1].Messages[0].Role)

	count, err := storage.CountForRun(ctx, "run_test")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = storage.CountForRun(ctx, "run_other")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
