package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

func newTestScorer(llm interfaces.LLMService, templates []CausalTemplate) *Scorer {
	return NewScorer(llm, templates, &common.PipelineConfig{ScorerRetries: 2}, arbor.NewLogger())
}

func scorerEvent() *models.Event {
	return &models.Event{
		ID:               "evt_test",
		Title:            "NHNN bơm ròng 30.000 tỷ qua kênh OMO",
		Content:          "Lãi suất liên ngân hàng qua đêm tăng lên 4,5%.",
		Source:           "sbv",
		Category:         "monetary_policy",
		LinkedIndicators: []string{"omo_net_daily", "interbank_on"},
		PublishedAt:      time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		IsMarketRelevant: true,
	}
}

const validScore = `{
	"base_score": 72,
	"score_factors": {"impact": 20, "novelty": 14, "source_reliability": 16, "indicator_linkage": 12, "timeliness": 10},
	"causal_analysis": {
		"matched_template_id": "liquidity_squeeze",
		"chain": ["OMO injection", "interbank rates ease", "FX pressure moderates"],
		"confidence": "likely",
		"affected_indicators": ["interbank_on"],
		"reasoning": "Large net injection signals a liquidity squeeze response."
	},
	"signal_output": {
		"create_signal": true,
		"prediction": "Overnight interbank rate falls below 4.2% within a week",
		"direction": "down",
		"target_indicator": "interbank_on",
		"target_range_low": 3.5,
		"target_range_high": 4.2,
		"confidence": "medium",
		"timeframe_days": 7,
		"reasoning": "Injections of this size have eased overnight rates before."
	},
	"theme_link": {"existing_theme_id": null, "create_new_theme": {"name": "Liquidity squeeze", "name_vi": "Căng thẳng thanh khoản", "description": "System liquidity tightening"}}
}`

func TestScore_ParsesFullResult(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("score", validScore)

	scorer := newTestScorer(llm, nil)
	result := scorer.Score(context.Background(), "run_1", scorerEvent(), "(no prior context)")

	assert.Equal(t, 72.0, result.BaseScore)
	assert.Empty(t, result.ScoreError)
	assert.Equal(t, 20.0, result.ScoreFactors["impact"])

	require.NotNil(t, result.CausalAnalysis)
	assert.Equal(t, "liquidity_squeeze", result.CausalAnalysis.MatchedTemplateID)
	assert.Len(t, result.CausalAnalysis.Chain, 3)

	signal := result.BuildSignal("evt_test")
	require.NotNil(t, signal)
	assert.Equal(t, models.SignalDown, signal.Direction)
	assert.Equal(t, "interbank_on", signal.TargetIndicator)
	assert.Equal(t, 7, signal.TimeframeDays)
	assert.Equal(t, []string{"evt_test"}, signal.SourceEventIDs)

	analysis := result.BuildCausalAnalysis("evt_test", time.Now().UTC())
	require.NotNil(t, analysis)
	assert.Equal(t, models.ConfidenceLikely, analysis.Confidence)

	require.NotNil(t, result.ThemeLink)
	require.NotNil(t, result.ThemeLink.CreateNewTheme)
	assert.Equal(t, "Liquidity squeeze", result.ThemeLink.CreateNewTheme.Name)
}

func TestScore_DefaultOnPersistentParseFailure(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("score", "not json", "still not json")

	scorer := newTestScorer(llm, nil)
	result := scorer.Score(context.Background(), "run_1", scorerEvent(), "")

	assert.Equal(t, 30.0, result.BaseScore)
	assert.NotEmpty(t, result.ScoreError)
	assert.Equal(t, 2, llm.callCount("score"))

	// Balanced default factors sum to the base score
	sum := 0.0
	for _, factor := range result.ScoreFactors {
		sum += factor
	}
	assert.Equal(t, 30.0, sum)

	assert.Nil(t, result.BuildSignal("evt_test"))
	assert.Nil(t, result.BuildCausalAnalysis("evt_test", time.Now().UTC()))
}

func TestScore_ClampsOutOfRangeBaseScore(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("score", `{"base_score": 140, "score_factors": {}}`)

	scorer := newTestScorer(llm, nil)
	result := scorer.Score(context.Background(), "run_1", scorerEvent(), "")
	assert.Equal(t, 100.0, result.BaseScore)
}

func TestScore_TemplatesAppearInPrompt(t *testing.T) {
	llm := newScriptedLLM()
	llm.script("score", validScore)

	templates := []CausalTemplate{{
		ID:      "fx_pressure_omo",
		Name:    "FX pressure triggers OMO response",
		Trigger: "USD/VND approaches the upper band",
		Chain:   []string{"FX pressure", "SBV drains liquidity", "interbank rates rise"},
	}}
	scorer := newTestScorer(llm, templates)
	scorer.Score(context.Background(), "run_1", scorerEvent(), "")

	require.Equal(t, 1, llm.callCount("score"))
	prompt := llm.calls["score"][0]
	assert.Contains(t, prompt, "fx_pressure_omo")
	assert.Contains(t, prompt, "FX pressure -> SBV drains liquidity -> interbank rates rise")
}

func TestBuildSignal_DeclinedOrUnusableProposals(t *testing.T) {
	declined := &ScoreResult{SignalOutput: &SignalOutput{CreateSignal: false, Prediction: "x", TargetIndicator: "y"}}
	assert.Nil(t, declined.BuildSignal("evt"))

	missingTarget := &ScoreResult{SignalOutput: &SignalOutput{CreateSignal: true, Prediction: "x"}}
	assert.Nil(t, missingTarget.BuildSignal("evt"))

	bad := &ScoreResult{SignalOutput: &SignalOutput{
		CreateSignal: true, Prediction: "x", TargetIndicator: "y",
		Direction: "sideways", Confidence: "certain",
	}}
	signal := bad.BuildSignal("evt")
	require.NotNil(t, signal)
	assert.Equal(t, models.SignalStable, signal.Direction, "unknown direction degrades to stable")
	assert.Equal(t, models.SignalConfidenceLow, signal.Confidence, "unknown confidence degrades to low")
	assert.Equal(t, 7, signal.TimeframeDays, "missing timeframe defaults to a week")
}
