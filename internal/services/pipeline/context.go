package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
)

// contextThemeLimit bounds how many themes feed the scorer prompt.
const contextThemeLimit = 10

// ContextBuilder assembles the plain-text market context that augments each
// scorer prompt: latest run summary, indicator trends, active signals and
// themes, upcoming calendar events.
type ContextBuilder struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewContextBuilder(storage interfaces.StorageManager, logger arbor.ILogger) *ContextBuilder {
	return &ContextBuilder{storage: storage, logger: logger}
}

// Build produces the context summary. Individual query failures degrade to a
// thinner summary rather than failing the run.
func (b *ContextBuilder) Build(ctx context.Context, now time.Time) string {
	var sections []string

	if run, err := b.storage.Runs().GetLatest(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Context: failed to load latest run")
	} else if run != nil && run.Summary != "" {
		sections = append(sections, "Previous run: "+run.Summary)
	}

	sections = append(sections, b.indicatorSection(ctx))

	if signals, err := b.storage.Signals().GetActive(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Context: failed to load active signals")
	} else if len(signals) > 0 {
		var lines []string
		for _, signal := range signals {
			lines = append(lines, fmt.Sprintf("- [%s/%s] %s (expires %s)",
				signal.TargetIndicator, signal.Confidence, signal.Prediction,
				signal.ExpiresAt.Format("2006-01-02")))
		}
		sections = append(sections, "Active signals:\n"+strings.Join(lines, "\n"))
	}

	if themes, err := b.storage.Themes().GetActiveAndEmerging(ctx, contextThemeLimit); err != nil {
		b.logger.Warn().Err(err).Msg("Context: failed to load themes")
	} else if len(themes) > 0 {
		var lines []string
		for _, theme := range themes {
			lines = append(lines, fmt.Sprintf("- %s [%s, strength %.1f]: %s",
				theme.Name, theme.Status, theme.Strength, theme.Description))
		}
		sections = append(sections, "Active themes:\n"+strings.Join(lines, "\n"))
	}

	if upcoming, err := b.storage.Calendar().GetUpcoming(ctx, 7); err != nil {
		b.logger.Warn().Err(err).Msg("Context: failed to load calendar")
	} else if len(upcoming) > 0 {
		var lines []string
		for _, rec := range upcoming {
			lines = append(lines, fmt.Sprintf("- %s %s: %s (%s)",
				rec.Date.Format("2006-01-02"), rec.Country, rec.EventName, rec.Importance))
		}
		sections = append(sections, "Upcoming calendar:\n"+strings.Join(lines, "\n"))
	}

	var out []string
	for _, section := range sections {
		if strings.TrimSpace(section) != "" {
			out = append(out, section)
		}
	}
	if len(out) == 0 {
		return "(no prior context available)"
	}
	return strings.Join(out, "\n\n")
}

func (b *ContextBuilder) indicatorSection(ctx context.Context) string {
	groups, err := b.storage.Indicators().GetAllGrouped(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Context: failed to load indicators")
		return ""
	}
	if len(groups) == 0 {
		return ""
	}

	var lines []string
	for _, group := range groups {
		for _, indicator := range group.Indicators {
			lines = append(lines, fmt.Sprintf("- %s: %.4g %s (%+.2f, %s)",
				indicator.ID, indicator.Value, indicator.Unit, indicator.Change, indicator.Trend))
		}
	}
	return "Current indicators:\n" + strings.Join(lines, "\n")
}
