package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
	"github.com/ternarybob/mekong/internal/services/sources"
)

// Orchestrator drives one full pipeline pass: crawl, persist, classify,
// score, rank, review, record. The step boundary is the durability boundary;
// partial results from completed steps persist even when a later step fails.
type Orchestrator struct {
	config     *common.Config
	storage    interfaces.StorageManager
	runner     *sources.Runner
	adapters   []interfaces.SourceAdapter
	classifier *Classifier
	scorer     *Scorer
	ranker     *Ranker
	reviewer   *Reviewer
	context    *ContextBuilder
	logger     arbor.ILogger
}

func NewOrchestrator(
	config *common.Config,
	storage interfaces.StorageManager,
	runner *sources.Runner,
	adapters []interfaces.SourceAdapter,
	classifier *Classifier,
	scorer *Scorer,
	logger arbor.ILogger,
) *Orchestrator {
	return &Orchestrator{
		config:     config,
		storage:    storage,
		runner:     runner,
		adapters:   adapters,
		classifier: classifier,
		scorer:     scorer,
		ranker:     NewRanker(&config.Pipeline),
		reviewer:   NewReviewer(storage, logger),
		context:    NewContextBuilder(storage, logger),
		logger:     logger,
	}
}

// Run executes one pass. Failures inside the pass are downgraded to the run
// record's status; the returned error reports the failure to -once callers
// without ever panicking through the scheduler.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunHistory, error) {
	now := time.Now().UTC()
	run := &models.RunHistory{
		ID:        common.NewRunID(),
		RunDate:   models.DateOnlyUTC(now),
		Status:    models.RunSuccess,
		StartedAt: now,
	}

	o.logger.Info().Str("run_id", run.ID).Msg("Pipeline run started")

	outputs := o.crawl(ctx, run)
	runErr := o.process(ctx, run, outputs)
	if runErr != nil {
		run.Status = models.RunFailed
		run.Errors = append(run.Errors, runErr.Error())
		o.logger.Error().Err(runErr).Str("run_id", run.ID).Msg("Pipeline run failed")
	} else if len(run.Errors) > 0 {
		run.Status = models.RunPartial
	}

	run.CompletedAt = time.Now().UTC()
	run.Summary = o.summarize(run)

	if err := o.storage.Runs().Save(ctx, run); err != nil {
		o.logger.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save run history")
		if runErr == nil {
			runErr = err
		}
	}

	o.logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("events_collected", run.EventsCollected).
		Int("events_scored", run.EventsScored).
		Dur("elapsed", run.CompletedAt.Sub(run.StartedAt)).
		Msg("Pipeline run completed")
	return run, runErr
}

// crawl runs every adapter concurrently. Adapter failures are recorded on the
// run, never fatal.
func (o *Orchestrator) crawl(ctx context.Context, run *models.RunHistory) []*models.CrawlerOutput {
	dedupDays := o.config.Pipeline.DedupTitleDays
	if dedupDays <= 0 {
		dedupDays = 7
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		outputs []*models.CrawlerOutput
	)

	for _, adapter := range o.adapters {
		wg.Add(1)
		go func(adapter interfaces.SourceAdapter) {
			defer wg.Done()

			titles, err := o.storage.Events().GetRecentTitles(ctx, adapter.Name(), dedupDays)
			if err != nil {
				o.logger.Warn().Err(err).Str("source", adapter.Name()).Msg("Failed to load recent titles, dedup disabled for this pass")
			}

			output, err := o.runner.Run(ctx, adapter, interfaces.RunOptions{
				MaxArticles:    o.config.Crawler.MaxArticles,
				ExistingTitles: sources.NormalizeTitles(titles),
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("crawl %s: %v", adapter.Name(), err))
			}
			if output != nil {
				outputs = append(outputs, output)
				if skipped, ok := output.Stats["duplicates_skipped"].(int); ok {
					run.DuplicatesSkipped += skipped
				}
			}
		}(adapter)
	}
	wg.Wait()
	return outputs
}

// process runs steps 2-9. The first hard failure aborts the remaining steps;
// the caller downgrades the run status.
func (o *Orchestrator) process(ctx context.Context, run *models.RunHistory, outputs []*models.CrawlerOutput) error {
	if err := o.persistMetrics(ctx, run, outputs); err != nil {
		return fmt.Errorf("persist metrics: %w", err)
	}

	records := o.collectEvents(outputs)
	run.EventsCollected = len(records)

	retained, err := o.classifyEvents(ctx, run, records)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	contextSummary := o.context.Build(ctx, run.StartedAt)

	if err := o.scoreAndPersist(ctx, run, retained, contextSummary); err != nil {
		return fmt.Errorf("score: %w", err)
	}

	if err := o.rank(ctx, run); err != nil {
		return fmt.Errorf("rank: %w", err)
	}

	if err := o.review(ctx, run, records); err != nil {
		return fmt.Errorf("review: %w", err)
	}
	return nil
}

// persistMetrics upserts indicators, appends history and inserts calendar
// rows for every adapter output.
func (o *Orchestrator) persistMetrics(ctx context.Context, run *models.RunHistory, outputs []*models.CrawlerOutput) error {
	for _, output := range outputs {
		for i := range output.Metrics {
			metric := &output.Metrics[i]
			if err := o.persistMetric(ctx, metric); err != nil {
				return err
			}
			run.MetricsIngested++
		}
		for i := range output.Calendar {
			inserted, err := o.storage.Calendar().Insert(ctx, &output.Calendar[i])
			if err != nil {
				return err
			}
			if inserted {
				run.CalendarIngested++
			}
		}
	}
	return nil
}

func (o *Orchestrator) persistMetric(ctx context.Context, metric *models.MetricRecord) error {
	history, err := o.storage.Indicators().AddHistory(ctx, &models.IndicatorHistory{
		IndicatorID: metric.IndicatorID,
		Value:       metric.Value,
		Date:        metric.Date,
		Source:      metric.Source,
	})
	if err != nil {
		return err
	}

	indicator := &models.Indicator{
		ID:        metric.IndicatorID,
		Name:      metric.Name,
		NameVI:    metric.NameVI,
		Category:  metric.Category,
		Unit:      metric.Unit,
		Value:     metric.Value,
		Source:    metric.Source,
		SourceURL: metric.SourceURL,
		Trend:     models.TrendStable,
	}
	if history != nil {
		indicator.Change = history.Change
		indicator.ChangePct = history.ChangePct
		indicator.Trend = models.TrendFromChange(history.Change)
	}
	return o.storage.Indicators().Upsert(ctx, indicator)
}

func (o *Orchestrator) collectEvents(outputs []*models.CrawlerOutput) []models.EventRecord {
	var records []models.EventRecord
	for _, output := range outputs {
		records = append(records, output.Events...)
	}
	return records
}

// classifyEvents is step 4: hash dedup then stage 1 per event. Irrelevant
// events are persisted straight to the archive so future passes dedup them
// by hash without another model call.
func (o *Orchestrator) classifyEvents(ctx context.Context, run *models.RunHistory, records []models.EventRecord) ([]*models.Event, error) {
	var retained []*models.Event
	seen := make(map[string]struct{}, len(records))

	for i := range records {
		record := &records[i]
		content := flattenContent(record)

		// Dedup against both the store and hashes earlier in this batch;
		// retained events are not persisted until the scoring step.
		hash := models.ComputeEventHash(record.Title, record.Source, content)
		if _, dup := seen[hash]; dup {
			run.DuplicatesSkipped++
			continue
		}
		seen[hash] = struct{}{}

		existing, err := o.storage.Events().FindByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			run.DuplicatesSkipped++
			continue
		}

		result, err := o.classifier.Classify(ctx, run.ID, record)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			run.Errors = append(run.Errors, err.Error())
			o.logger.Warn().Err(err).Str("title", record.Title).Msg("Event classification failed, skipping")
			continue
		}
		run.EventsClassified++

		event := &models.Event{
			Hash:             hash,
			Type:             record.Type,
			Title:            record.Title,
			Summary:          record.Summary,
			Content:          content,
			Source:           record.Source,
			SourceURL:        record.SourceURL,
			PublishedAt:      record.PublishedAt,
			RunDate:          run.RunDate,
			IsMarketRelevant: result.IsMarketRelevant,
			Category:         result.Category,
			Region:           result.Region,
			LinkedIndicators: result.LinkedIndicators,
		}

		if !result.IsMarketRelevant {
			event.DisplaySection = models.SectionArchive
			if err := o.storage.Events().Create(ctx, event); err != nil {
				return nil, err
			}
			continue
		}

		run.EventsRelevant++
		retained = append(retained, event)
	}
	return retained, nil
}

// scoreAndPersist is steps 6-7: stage 2 per retained event, then event,
// causal analysis, signal and theme writes.
func (o *Orchestrator) scoreAndPersist(ctx context.Context, run *models.RunHistory, retained []*models.Event, contextSummary string) error {
	for _, event := range retained {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result := o.scorer.Score(ctx, run.ID, event, contextSummary)
		run.EventsScored++

		event.BaseScore = result.BaseScore
		event.ScoreFactors = result.ScoreFactors
		event.ScoreError = result.ScoreError
		event.CurrentScore = result.BaseScore
		event.DisplaySection = models.SectionOtherNews

		if link := result.ThemeLink; link != nil && link.ExistingThemeID != "" {
			event.IsFollowUp = true
			event.ThreadID = link.ExistingThemeID
		}

		if err := o.storage.Events().Create(ctx, event); err != nil {
			return err
		}

		if analysis := result.BuildCausalAnalysis(event.ID, run.StartedAt); analysis != nil {
			if err := o.storage.Events().SaveCausalAnalysis(ctx, analysis); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("causal analysis for %s: %v", event.ID, err))
			}
		}

		if signal := result.BuildSignal(event.ID); signal != nil {
			if err := o.storage.Signals().Create(ctx, signal); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("signal for %s: %v", event.ID, err))
			} else {
				run.SignalsCreated++
			}
		}

		if err := o.applyThemeLink(ctx, run, event, result.ThemeLink); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("theme link for %s: %v", event.ID, err))
		}
	}
	return nil
}

func (o *Orchestrator) applyThemeLink(ctx context.Context, run *models.RunHistory, event *models.Event, link *ThemeLink) error {
	if link == nil {
		return nil
	}
	if link.ExistingThemeID != "" {
		return o.storage.Themes().LinkEvent(ctx, link.ExistingThemeID, event.ID, run.StartedAt)
	}
	if link.CreateNewTheme == nil || link.CreateNewTheme.Name == "" {
		return nil
	}

	theme := &models.Theme{
		Name:           link.CreateNewTheme.Name,
		NameVI:         link.CreateNewTheme.NameVI,
		Description:    link.CreateNewTheme.Description,
		Status:         models.ThemeEmerging,
		LinkedEventIDs: []string{event.ID},
		FirstSeenAt:    run.StartedAt,
		LastSeenAt:     run.StartedAt,
	}
	return o.storage.Themes().Create(ctx, theme)
}

// rank is step 8: reload the active set so ranking only ever sees committed
// state, then write the recomputed tiers back.
func (o *Orchestrator) rank(ctx context.Context, run *models.RunHistory) error {
	maxAge := o.config.Pipeline.MaxEventAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}

	events, err := o.storage.Events().GetActiveEvents(ctx, maxAge)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	analyses, err := o.storage.Events().GetCausalAnalyses(ctx, ids)
	if err != nil {
		return err
	}

	o.ranker.Rank(events, analyses, run.StartedAt)

	for _, event := range events {
		event.LastRankedAt = run.StartedAt
		if err := o.storage.Events().UpdateScores(ctx, event); err != nil {
			return err
		}
		run.EventsRanked++
	}
	return nil
}

// review is step 9: verify expired signals, recompute theme strengths and
// evaluate watchlist triggers against this pass's events.
func (o *Orchestrator) review(ctx context.Context, run *models.RunHistory, records []models.EventRecord) error {
	verified, err := o.reviewer.VerifySignals(ctx, run.StartedAt)
	if err != nil {
		return err
	}
	run.SignalsVerified = verified

	if err := o.reviewer.RecomputeThemes(ctx, run.StartedAt); err != nil {
		return err
	}

	titles := make([]string, 0, len(records))
	for _, record := range records {
		titles = append(titles, record.Title)
	}
	if _, err := o.reviewer.EvaluateWatchlist(ctx, run.StartedAt, titles); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) summarize(run *models.RunHistory) string {
	parts := []string{
		fmt.Sprintf("%d metrics", run.MetricsIngested),
		fmt.Sprintf("%d events collected", run.EventsCollected),
		fmt.Sprintf("%d relevant", run.EventsRelevant),
		fmt.Sprintf("%d scored", run.EventsScored),
		fmt.Sprintf("%d ranked", run.EventsRanked),
	}
	if run.SignalsCreated > 0 {
		parts = append(parts, fmt.Sprintf("%d signals created", run.SignalsCreated))
	}
	if run.DuplicatesSkipped > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates skipped", run.DuplicatesSkipped))
	}
	if len(run.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", len(run.Errors)))
	}
	return strings.Join(parts, ", ")
}

// flattenContent folds extracted attachment text into the event body so
// classification, scoring and the identity hash all see the document text.
func flattenContent(record *models.EventRecord) string {
	content := record.Content
	for _, attachment := range record.Attachments {
		if attachment.Text == "" {
			continue
		}
		if content != "" {
			content += "\n\n"
		}
		content += attachment.Text
	}
	return content
}
