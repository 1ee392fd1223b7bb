package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

// Theme lifecycle constants. Strength is the sum of linked active events'
// current scores scaled to units of one full-strength event.
const (
	themeActiveStrength = 1.0
	themeArchiveAfter   = 14 * 24 * time.Hour
)

// Reviewer runs the end-of-pass housekeeping: signal verification, theme
// strength recomputation and watchlist evaluation.
type Reviewer struct {
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

func NewReviewer(storage interfaces.StorageManager, logger arbor.ILogger) *Reviewer {
	return &Reviewer{storage: storage, logger: logger}
}

// VerifySignals resolves expired unverified signals against the latest
// observed indicator values. Returns the number of signals resolved.
func (r *Reviewer) VerifySignals(ctx context.Context, now time.Time) (int, error) {
	signals, err := r.storage.Signals().GetExpiredUnverified(ctx, now)
	if err != nil {
		return 0, err
	}

	verified := 0
	for _, signal := range signals {
		status, actual := r.resolveSignal(ctx, signal)
		if err := r.storage.Signals().Verify(ctx, signal.ID, status, actual); err != nil {
			r.logger.Warn().Err(err).Str("signal_id", signal.ID).Msg("Failed to verify signal")
			continue
		}
		r.logger.Info().
			Str("signal_id", signal.ID).
			Str("indicator", signal.TargetIndicator).
			Str("status", string(status)).
			Msg("Signal verified")
		verified++
	}
	return verified, nil
}

// resolveSignal decides the verification outcome. No observed data expires
// the signal; otherwise the actual value is checked against the target range,
// falling back to the predicted direction when no range was given.
func (r *Reviewer) resolveSignal(ctx context.Context, signal *models.Signal) (models.SignalStatus, *float64) {
	latest, err := r.storage.Indicators().LatestHistory(ctx, signal.TargetIndicator)
	if err != nil {
		r.logger.Warn().Err(err).Str("signal_id", signal.ID).Msg("Failed to load indicator history for verification")
		return models.SignalExpired, nil
	}
	if latest == nil {
		return models.SignalExpired, nil
	}

	actual := latest.Value
	if signal.TargetRangeLow != nil || signal.TargetRangeHigh != nil {
		inRange := true
		if signal.TargetRangeLow != nil && actual < *signal.TargetRangeLow {
			inRange = false
		}
		if signal.TargetRangeHigh != nil && actual > *signal.TargetRangeHigh {
			inRange = false
		}
		if inRange {
			return models.SignalVerifiedCorrect, &actual
		}
		return models.SignalVerifiedWrong, &actual
	}

	// Range-less signals verify on direction of the latest move
	var predicted models.Trend
	switch signal.Direction {
	case models.SignalUp:
		predicted = models.TrendUp
	case models.SignalDown:
		predicted = models.TrendDown
	default:
		predicted = models.TrendStable
	}
	if models.TrendFromChange(latest.Change) == predicted {
		return models.SignalVerifiedCorrect, &actual
	}
	return models.SignalVerifiedWrong, &actual
}

// RecomputeThemes refreshes every active or emerging theme's strength from
// its linked events that are still active, applying fading and archival
// transitions.
func (r *Reviewer) RecomputeThemes(ctx context.Context, now time.Time) error {
	themes, err := r.storage.Themes().GetActiveAndEmerging(ctx, 200)
	if err != nil {
		return err
	}
	if len(themes) == 0 {
		return nil
	}

	maxAge := 30
	active, err := r.storage.Events().GetActiveEvents(ctx, maxAge)
	if err != nil {
		return err
	}
	scoreByID := make(map[string]float64, len(active))
	for _, event := range active {
		scoreByID[event.ID] = event.CurrentScore
	}

	for _, theme := range themes {
		strength := 0.0
		for _, eventID := range theme.LinkedEventIDs {
			strength += scoreByID[eventID] / 100
		}

		peak := theme.PeakStrength
		if strength > peak {
			peak = strength
		}

		status := theme.Status
		switch {
		case strength >= themeActiveStrength:
			status = models.ThemeActive
		case strength > 0:
			if theme.Status != models.ThemeEmerging {
				status = models.ThemeFading
			}
		default:
			if theme.Status == models.ThemeFading && now.Sub(theme.LastSeenAt) > themeArchiveAfter {
				status = models.ThemeArchived
			} else {
				status = models.ThemeFading
			}
		}

		if err := r.storage.Themes().UpdateStrength(ctx, theme.ID, strength, peak, status); err != nil {
			r.logger.Warn().Err(err).Str("theme_id", theme.ID).Msg("Failed to update theme strength")
		}
	}
	return nil
}

// EvaluateWatchlist checks every watching item against today's state: date
// triggers by date reached, indicator triggers by their condition against the
// latest value, keyword triggers by match in the run's event titles. Snoozed
// items are left alone.
func (r *Reviewer) EvaluateWatchlist(ctx context.Context, now time.Time, eventTitles []string) (int, error) {
	items, err := r.storage.Watchlists().GetActive(ctx)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, item := range items {
		if item.IsSnoozed(now) {
			continue
		}
		hit, err := r.watchlistHit(ctx, item, now, eventTitles)
		if err != nil {
			r.logger.Warn().Err(err).Str("watch_id", item.ID).Msg("Watchlist evaluation failed")
			continue
		}
		if !hit {
			continue
		}
		if err := r.storage.Watchlists().MarkTriggered(ctx, item.ID, now); err != nil {
			r.logger.Warn().Err(err).Str("watch_id", item.ID).Msg("Failed to mark watchlist item triggered")
			continue
		}
		r.logger.Info().Str("watch_id", item.ID).Str("type", string(item.Type)).Str("description", item.Description).Msg("Watchlist item triggered")
		triggered++
	}
	return triggered, nil
}

func (r *Reviewer) watchlistHit(ctx context.Context, item *models.Watchlist, now time.Time, eventTitles []string) (bool, error) {
	switch item.Type {
	case models.WatchDate:
		return item.TriggerDate != nil && !now.Before(*item.TriggerDate), nil
	case models.WatchIndicator:
		latest, err := r.storage.Indicators().LatestHistory(ctx, item.IndicatorID)
		if err != nil {
			return false, err
		}
		if latest == nil {
			return false, nil
		}
		return item.EvaluateCondition(latest.Value)
	case models.WatchKeyword:
		keyword := strings.ToLower(strings.TrimSpace(item.Keyword))
		if keyword == "" {
			return false, nil
		}
		for _, title := range eventTitles {
			if strings.Contains(strings.ToLower(title), keyword) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}
