package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
	"github.com/ternarybob/mekong/internal/services/llm"
)

// ScoreResult is the stage 2 output for one event.
type ScoreResult struct {
	BaseScore      float64            `json:"base_score"`
	ScoreFactors   map[string]float64 `json:"score_factors"`
	CausalAnalysis *CausalOutput      `json:"causal_analysis,omitempty"`
	SignalOutput   *SignalOutput      `json:"signal_output,omitempty"`
	ThemeLink      *ThemeLink         `json:"theme_link,omitempty"`

	// Set when the model output could not be parsed and the default score
	// was synthesized instead.
	ScoreError string `json:"-"`
}

// CausalOutput is the scorer's causal chain for one event.
type CausalOutput struct {
	MatchedTemplateID  string   `json:"matched_template_id,omitempty"`
	Chain              []string `json:"chain"`
	Confidence         string   `json:"confidence"`
	InvestigationHints []string `json:"investigation_hints,omitempty"`
	AffectedIndicators []string `json:"affected_indicators,omitempty"`
	Reasoning          string   `json:"reasoning,omitempty"`
}

// SignalOutput is the scorer's optional prediction proposal.
type SignalOutput struct {
	CreateSignal    bool     `json:"create_signal"`
	Prediction      string   `json:"prediction,omitempty"`
	Direction       string   `json:"direction,omitempty"`
	TargetIndicator string   `json:"target_indicator,omitempty"`
	TargetRangeLow  *float64 `json:"target_range_low,omitempty"`
	TargetRangeHigh *float64 `json:"target_range_high,omitempty"`
	Confidence      string   `json:"confidence,omitempty"`
	TimeframeDays   int      `json:"timeframe_days,omitempty"`
	Reasoning       string   `json:"reasoning,omitempty"`
}

// ThemeLink attaches the event to an existing theme or proposes a new one.
type ThemeLink struct {
	ExistingThemeID string    `json:"existing_theme_id,omitempty"`
	CreateNewTheme  *NewTheme `json:"create_new_theme,omitempty"`
}

type NewTheme struct {
	Name        string `json:"name"`
	NameVI      string `json:"name_vi,omitempty"`
	Description string `json:"description,omitempty"`
}

const scorerSystemPrompt = `You are a senior market analyst for the Vietnamese economy.
Score the market impact of one news event on a 0-100 scale and analyze its
causal implications. Respond with JSON only, using exactly:
{"base_score": number, "score_factors": {"impact": n, "novelty": n,
"source_reliability": n, "indicator_linkage": n, "timeliness": n},
"causal_analysis": {"matched_template_id": string|null, "chain": [string],
"confidence": "verified"|"likely"|"uncertain", "investigation_hints": [string],
"affected_indicators": [string], "reasoning": string},
"signal_output": {"create_signal": bool, "prediction": string, "direction":
"up"|"down"|"stable", "target_indicator": string, "target_range_low": number,
"target_range_high": number, "confidence": "high"|"medium"|"low",
"timeframe_days": number, "reasoning": string},
"theme_link": {"existing_theme_id": string|null, "create_new_theme":
{"name": string, "name_vi": string, "description": string}|null}}
The five score factors must sum to base_score. Only propose a signal when the
event supports a bounded, verifiable short-term prediction.`

const (
	scorerTemperature = 0.3
	defaultBaseScore  = 30
)

// Scorer is stage 2: context-augmented impact analysis.
type Scorer struct {
	llm       interfaces.LLMService
	templates []CausalTemplate
	logger    arbor.ILogger
	attempts  int
}

func NewScorer(service interfaces.LLMService, templates []CausalTemplate, config *common.PipelineConfig, logger arbor.ILogger) *Scorer {
	attempts := config.ScorerRetries
	if attempts <= 0 {
		attempts = 2
	}
	return &Scorer{
		llm:       service,
		templates: templates,
		logger:    logger,
		attempts:  attempts,
	}
}

// Score analyzes one relevant event. A model that keeps producing unparseable
// output degrades to the default score; a single bad event never halts the
// pipeline.
func (s *Scorer) Score(ctx context.Context, runID string, event *models.Event, contextSummary string) *ScoreResult {
	call := interfaces.CallContext{TaskType: "score", RunID: runID}
	taskPrompt := s.buildPrompt(event, contextSummary)

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		prompt := taskPrompt
		if attempt > 1 {
			prompt = buildFixJSONPrompt(taskPrompt, lastErr)
		}

		resp, err := s.llm.Generate(ctx, call, interfaces.GenerateRequest{
			Prompt:      prompt,
			System:      scorerSystemPrompt,
			Temperature: scorerTemperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return s.defaultResult(ctx.Err())
			}
			lastErr = err
			s.logger.Warn().Err(err).Int("attempt", attempt).Str("event_id", event.ID).Msg("Scorer call failed")
			continue
		}
		if strings.TrimSpace(resp.Content) == "" {
			lastErr = fmt.Errorf("empty response")
			continue
		}

		var result ScoreResult
		if err := llm.ParseJSON(resp.Content, &result); err != nil {
			lastErr = &invalidResponse{response: resp.Content, err: err}
			s.logger.Warn().Err(err).Int("attempt", attempt).Str("event_id", event.ID).Msg("Scorer response was not valid JSON")
			continue
		}

		result.clamp()
		return &result
	}

	s.logger.Warn().Err(lastErr).Str("event_id", event.ID).Msg("Scorer exhausted attempts, using default score")
	return s.defaultResult(lastErr)
}

// defaultResult synthesizes the low-medium fallback: base 30 split evenly
// over the five factors, with the failure recorded on the result.
func (s *Scorer) defaultResult(cause error) *ScoreResult {
	result := &ScoreResult{
		BaseScore: defaultBaseScore,
		ScoreFactors: map[string]float64{
			"impact":             6,
			"novelty":            6,
			"source_reliability": 6,
			"indicator_linkage":  6,
			"timeliness":         6,
		},
	}
	if cause != nil {
		result.ScoreError = cause.Error()
	} else {
		result.ScoreError = "scorer produced no usable output"
	}
	return result
}

func (r *ScoreResult) clamp() {
	if r.BaseScore < 0 {
		r.BaseScore = 0
	}
	if r.BaseScore > 100 {
		r.BaseScore = 100
	}
}

func (s *Scorer) buildPrompt(event *models.Event, contextSummary string) string {
	body := event.Content
	if body == "" {
		body = event.Summary
	}
	if len(body) > 6000 {
		body = body[:6000]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this market event.\n\n")
	fmt.Fprintf(&b, "Title: %s\nSource: %s\nCategory: %s\nPublished: %s\n", event.Title, event.Source, event.Category, event.PublishedAt.Format("2006-01-02"))
	if len(event.LinkedIndicators) > 0 {
		fmt.Fprintf(&b, "Linked indicators: %s\n", strings.Join(event.LinkedIndicators, ", "))
	}
	fmt.Fprintf(&b, "\n%s\n", body)
	fmt.Fprintf(&b, "\nCurrent market context:\n%s\n", contextSummary)
	fmt.Fprintf(&b, "\nKnown causal templates:\n%s\n", FormatTemplates(s.templates))
	return b.String()
}

// BuildSignal maps a signal proposal to the persistence model. Returns nil
// when the proposal is absent, declined or unusable.
func (r *ScoreResult) BuildSignal(eventID string) *models.Signal {
	out := r.SignalOutput
	if out == nil || !out.CreateSignal {
		return nil
	}
	if out.TargetIndicator == "" || out.Prediction == "" {
		return nil
	}

	direction := models.SignalDirection(out.Direction)
	switch direction {
	case models.SignalUp, models.SignalDown, models.SignalStable:
	default:
		direction = models.SignalStable
	}
	confidence := models.SignalConfidence(out.Confidence)
	switch confidence {
	case models.SignalConfidenceHigh, models.SignalConfidenceMedium, models.SignalConfidenceLow:
	default:
		confidence = models.SignalConfidenceLow
	}
	timeframe := out.TimeframeDays
	if timeframe <= 0 {
		timeframe = 7
	}

	return &models.Signal{
		Prediction:      out.Prediction,
		Direction:       direction,
		TargetIndicator: out.TargetIndicator,
		TargetRangeLow:  out.TargetRangeLow,
		TargetRangeHigh: out.TargetRangeHigh,
		Confidence:      confidence,
		TimeframeDays:   timeframe,
		SourceEventIDs:  []string{eventID},
		Reasoning:       out.Reasoning,
	}
}

// BuildCausalAnalysis maps the causal output to the persistence model, or nil
// when the scorer produced none.
func (r *ScoreResult) BuildCausalAnalysis(eventID string, now time.Time) *models.CausalAnalysis {
	out := r.CausalAnalysis
	if out == nil || len(out.Chain) == 0 {
		return nil
	}

	confidence := models.Confidence(out.Confidence)
	switch confidence {
	case models.ConfidenceVerified, models.ConfidenceLikely, models.ConfidenceUncertain:
	default:
		confidence = models.ConfidenceUncertain
	}

	return &models.CausalAnalysis{
		EventID:            eventID,
		MatchedTemplateID:  out.MatchedTemplateID,
		Chain:              out.Chain,
		Confidence:         confidence,
		InvestigationHints: out.InvestigationHints,
		AffectedIndicators: out.AffectedIndicators,
		Reasoning:          out.Reasoning,
		CreatedAt:          now,
	}
}
