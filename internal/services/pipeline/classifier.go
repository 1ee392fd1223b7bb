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

// ClassificationResult is the stage 1 output for one event.
type ClassificationResult struct {
	IsMarketRelevant bool     `json:"is_market_relevant"`
	Category         string   `json:"category"`
	Region           string   `json:"region"`
	LinkedIndicators []string `json:"linked_indicators"`
	Reasoning        string   `json:"reasoning"`
}

// ClassificationError is raised when all attempts for one event failed. The
// orchestrator counts the event as failed and moves on.
type ClassificationError struct {
	Title    string
	Attempts int
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed for %q after %d attempts: %v", e.Title, e.Attempts, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

const classifierSystemPrompt = `You are a market analyst for the Vietnamese economy.
Classify incoming news for relevance to Vietnamese macro-financial markets:
exchange rates, interest rates, inflation, monetary policy, credit, equities,
gold and commodities. Respond with JSON only, no prose, using exactly:
{"is_market_relevant": bool, "category": string, "region": string,
"linked_indicators": [string], "reasoning": string}
Category is a short snake_case tag such as "monetary_policy" or "inflation".
Region is "vn", "global" or "both". linked_indicators uses canonical ids such
as "usd_vnd_central", "interbank_on", "cpi_yoy".`

const classifierTemperature = 0.1

// Classifier is stage 1: per-event relevance and indicator linkage.
type Classifier struct {
	llm        interfaces.LLMService
	logger     arbor.ILogger
	attempts   int
	retryDelay time.Duration
}

func NewClassifier(service interfaces.LLMService, config *common.PipelineConfig, logger arbor.ILogger) *Classifier {
	attempts := config.ClassifierRetries
	if attempts <= 0 {
		attempts = 3
	}
	return &Classifier{
		llm:        service,
		logger:     logger,
		attempts:   attempts,
		retryDelay: common.MustDuration(config.ClassifierRetryDelay, 2*time.Second),
	}
}

// Classify runs the retry/repair loop for one event. The first attempt uses
// the task prompt; repair attempts feed the invalid response and parse error
// back through a fix-json prompt.
func (c *Classifier) Classify(ctx context.Context, runID string, event *models.EventRecord) (*ClassificationResult, error) {
	call := interfaces.CallContext{TaskType: "classify", RunID: runID}
	taskPrompt := c.buildPrompt(event)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		prompt := taskPrompt
		if attempt > 1 {
			prompt = buildFixJSONPrompt(taskPrompt, lastErr)
		}

		resp, err := c.llm.Generate(ctx, call, interfaces.GenerateRequest{
			Prompt:      prompt,
			System:      classifierSystemPrompt,
			Temperature: classifierTemperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("title", event.Title).Msg("Classifier call failed")
			continue
		}
		if strings.TrimSpace(resp.Content) == "" {
			lastErr = fmt.Errorf("empty response")
			c.logger.Warn().Int("attempt", attempt).Str("title", event.Title).Msg("Classifier returned empty response")
			continue
		}

		var result ClassificationResult
		if err := llm.ParseJSON(resp.Content, &result); err != nil {
			lastErr = &invalidResponse{response: resp.Content, err: err}
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("title", event.Title).Msg("Classifier response was not valid JSON")
			continue
		}
		return &result, nil
	}

	return nil, &ClassificationError{Title: event.Title, Attempts: c.attempts, Err: lastErr}
}

func (c *Classifier) buildPrompt(event *models.EventRecord) string {
	body := event.Content
	if body == "" {
		body = event.Summary
	}
	if len(body) > 4000 {
		body = body[:4000]
	}
	return fmt.Sprintf(`Classify this news item.

Title: %s
Source: %s
Date: %s

%s`, event.Title, event.Source, event.PublishedAt.Format("2006-01-02"), body)
}

// invalidResponse keeps the raw model output alongside the parse error so
// repair prompts can feed it back.
type invalidResponse struct {
	response string
	err      error
}

func (e *invalidResponse) Error() string {
	return e.err.Error()
}

func (e *invalidResponse) Unwrap() error {
	return e.err
}

// buildFixJSONPrompt wraps the original task plus the failure into a repair
// request that asks for valid JSON only.
func buildFixJSONPrompt(taskPrompt string, lastErr error) string {
	var b strings.Builder
	b.WriteString("Your previous response was not valid JSON.\n\n")
	b.WriteString("Original task:\n")
	b.WriteString(taskPrompt)
	b.WriteString("\n\n")
	if bad, ok := lastErr.(*invalidResponse); ok {
		b.WriteString("Invalid response:\n")
		b.WriteString(bad.response)
		b.WriteString("\n\nParse error: ")
		b.WriteString(bad.err.Error())
	} else if lastErr != nil {
		b.WriteString("Failure: ")
		b.WriteString(lastErr.Error())
	}
	b.WriteString("\n\nRespond again with valid JSON only. No markdown, no commentary.")
	return b.String()
}
