package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

const calendarSource = "calendar"

// calendarEntry is the upstream JSON shape of one scheduled release.
type calendarEntry struct {
	Event      string `json:"event"`
	Country    string `json:"country"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Importance string `json:"importance"`
	Previous   string `json:"previous"`
	Forecast   string `json:"forecast"`
	Actual     string `json:"actual"`
}

// CalendarAdapter ingests the global economic calendar feed.
type CalendarAdapter struct {
	fetcher *fetcher
	config  *common.SourceConfig
	logger  arbor.ILogger
}

var _ interfaces.SourceAdapter = (*CalendarAdapter)(nil)

func NewCalendarAdapter(config *common.SourceConfig, crawler *common.CrawlerConfig, logger arbor.ILogger) *CalendarAdapter {
	return &CalendarAdapter{
		fetcher: newFetcher(calendarSource, crawler, logger),
		config:  config,
		logger:  logger,
	}
}

func (a *CalendarAdapter) Name() string {
	return calendarSource
}

func (a *CalendarAdapter) Fetch(ctx context.Context) (*models.RawBundle, error) {
	bundle := &models.RawBundle{
		Source:    calendarSource,
		FetchedAt: time.Now().UTC(),
	}

	feedURL := strings.TrimRight(a.config.BaseURL, "/") + "/api/calendar/week"
	var entries []calendarEntry
	if err := a.fetcher.getJSON(ctx, feedURL, &entries); err != nil {
		return nil, fmt.Errorf("calendar feed: %w", err)
	}

	for _, entry := range entries {
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "calendar",
			Fields: map[string]any{
				"event":      entry.Event,
				"country":    entry.Country,
				"date":       entry.Date,
				"time":       entry.Time,
				"importance": entry.Importance,
				"previous":   entry.Previous,
				"forecast":   entry.Forecast,
				"actual":     entry.Actual,
			},
		})
	}
	return bundle, nil
}

func (a *CalendarAdapter) Transform(bundle *models.RawBundle) (*models.CrawlerOutput, error) {
	output := &models.CrawlerOutput{
		Source:    calendarSource,
		CrawledAt: bundle.FetchedAt,
		Success:   true,
		Stats:     make(map[string]any),
	}

	skipped := 0
	for _, item := range bundle.Items {
		if item.Type != "calendar" {
			a.logger.Warn().Str("type", item.Type).Msg("Unknown raw item type, skipping")
			skipped++
			continue
		}
		name := strings.TrimSpace(item.Str("event"))
		if name == "" {
			skipped++
			continue
		}
		date, err := common.ParseVietDate(item.Str("date"))
		if err != nil {
			a.logger.Warn().Str("raw", item.Str("date")).Msg("Unparseable calendar date, skipping")
			skipped++
			continue
		}
		output.Calendar = append(output.Calendar, models.CalendarRecord{
			EventName:  name,
			Country:    strings.TrimSpace(item.Str("country")),
			Date:       common.DateOnly(date),
			Time:       item.Str("time"),
			Importance: normalizeImportance(item.Str("importance")),
			Previous:   item.Str("previous"),
			Forecast:   item.Str("forecast"),
			Actual:     item.Str("actual"),
		})
	}

	output.Stats["items_skipped"] = skipped
	return output, nil
}

func normalizeImportance(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "3":
		return "high"
	case "medium", "med", "2":
		return "medium"
	case "low", "1":
		return "low"
	default:
		return "medium"
	}
}
