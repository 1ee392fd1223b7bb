package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

// scriptedLLM replays canned responses per task type and records every
// prompt it was given.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string][]string
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		calls:     make(map[string][]string),
	}
}

func (s *scriptedLLM) script(taskType string, responses ...string) {
	s.responses[taskType] = append(s.responses[taskType], responses...)
}

func (s *scriptedLLM) Generate(ctx context.Context, call interfaces.CallContext, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.TaskType] = append(s.calls[call.TaskType], req.Prompt)

	if err, ok := s.errs[call.TaskType]; ok {
		return nil, err
	}
	queue := s.responses[call.TaskType]
	if len(queue) == 0 {
		return &interfaces.GenerateResponse{Content: ""}, nil
	}
	content := queue[0]
	s.responses[call.TaskType] = queue[1:]
	return &interfaces.GenerateResponse{Content: content, Model: "scripted"}, nil
}

func (s *scriptedLLM) Chat(ctx context.Context, call interfaces.CallContext, messages []models.LLMMessage, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	return s.Generate(ctx, call, req)
}

func (s *scriptedLLM) Provider() string { return "scripted" }
func (s *scriptedLLM) Close() error     { return nil }

func (s *scriptedLLM) callCount(taskType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls[taskType])
}

var _ interfaces.LLMService = (*scriptedLLM)(nil)

func newTestClassifier(llm interfaces.LLMService) *Classifier {
	return NewClassifier(llm, &common.PipelineConfig{
		ClassifierRetries:    3,
		ClassifierRetryDelay: "10ms",
	}, arbor.NewLogger())
}

func classifierEvent() *models.EventRecord {
	return &models.EventRecord{
		Type:        models.EventTypeNews,
		Title:       "NHNN bơm ròng 30.000 tỷ qua kênh OMO",
		Summary:     "Thanh khoản hệ thống căng thẳng.",
		Source:      "sbv",
		PublishedAt: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
}

const validClassification = `{"is_market_relevant": true, "category": "monetary_policy",
	"region": "vn", "linked_indicators": ["omo_net_daily", "interbank_on"],
	"reasoning": "Liquidity injection affects short rates."}`

func TestClassify_FirstAttemptSucceeds(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("classify", validClassification)

	classifier := newTestClassifier(llm)
	result, err := classifier.Classify(context.Background(), "run_1", classifierEvent())
	require.NoError(t, err)

	assert.True(t, result.IsMarketRelevant)
	assert.Equal(t, "monetary_policy", result.Category)
	assert.Equal(t, []string{"omo_net_daily", "interbank_on"}, result.LinkedIndicators)
	assert.Equal(t, 1, llm.callCount("classify"))
}

func TestClassify_RepairPathRecoversInvalidJSON(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("classify", `this is not json at all`, validClassification)

	classifier := newTestClassifier(llm)
	result, err := classifier.Classify(context.Background(), "run_1", classifierEvent())
	require.NoError(t, err)
	assert.True(t, result.IsMarketRelevant)
	require.Equal(t, 2, llm.callCount("classify"))

	// The repair attempt carries the invalid response back to the model
	repairPrompt := llm.calls["classify"][1]
	assert.Contains(t, repairPrompt, "not valid JSON")
	assert.Contains(t, repairPrompt, "this is not json at all")
}

func TestClassify_MarkdownFenceTolerated(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("classify", "```json\n"+validClassification+"\n```")

	classifier := newTestClassifier(llm)
	result, err := classifier.Classify(context.Background(), "run_1", classifierEvent())
	require.NoError(t, err)
	assert.True(t, result.IsMarketRelevant)
	assert.Equal(t, 1, llm.callCount("classify"))
}

func TestClassify_ExhaustionReturnsTypedError(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("classify", "garbage", "more garbage", "still garbage")

	classifier := newTestClassifier(llm)
	_, err := classifier.Classify(context.Background(), "run_1", classifierEvent())
	require.Error(t, err)

	var clsErr *ClassificationError
	require.True(t, errors.As(err, &clsErr))
	assert.Equal(t, 3, clsErr.Attempts)
	assert.Equal(t, 3, llm.callCount("classify"))
}

func TestClassify_EmptyResponseIsNeverADefault(t *testing.T) {
	llm := newScriptedLLM()
	// No scripted responses: every attempt returns empty content

	classifier := newTestClassifier(llm)
	_, err := classifier.Classify(context.Background(), "run_1", classifierEvent())
	require.Error(t, err)

	var clsErr *ClassificationError
	require.True(t, errors.As(err, &clsErr))
	assert.Contains(t, clsErr.Error(), "empty response")
}

func TestClassify_CancellationStopsRetries(t *testing.T) {
	llm := newScriptedLLM()
	llm.errs["classify"] = context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	classifier := newTestClassifier(llm)
	_, err := classifier.Classify(ctx, "run_1", classifierEvent())
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, llm.callCount("classify"), 1)
}
