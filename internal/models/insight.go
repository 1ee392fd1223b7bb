package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignalDirection is the predicted direction of a signal's target indicator.
type SignalDirection string

const (
	SignalUp     SignalDirection = "up"
	SignalDown   SignalDirection = "down"
	SignalStable SignalDirection = "stable"
)

// SignalConfidence grades how strongly the scorer stands behind a signal.
type SignalConfidence string

const (
	SignalConfidenceHigh   SignalConfidence = "high"
	SignalConfidenceMedium SignalConfidence = "medium"
	SignalConfidenceLow    SignalConfidence = "low"
)

// SignalStatus tracks a signal through its verification lifecycle.
type SignalStatus string

const (
	SignalActive          SignalStatus = "active"
	SignalVerifiedCorrect SignalStatus = "verified_correct"
	SignalVerifiedWrong   SignalStatus = "verified_wrong"
	SignalExpired         SignalStatus = "expired"
)

// Signal is a bounded, verifiable short-term prediction linked to one
// indicator. Expiry grows monotonically with the timeframe.
type Signal struct {
	ID              string           `json:"id"`
	Prediction      string           `json:"prediction"`
	Direction       SignalDirection  `json:"direction"`
	TargetIndicator string           `json:"target_indicator"`
	TargetRangeLow  *float64         `json:"target_range_low,omitempty"`
	TargetRangeHigh *float64         `json:"target_range_high,omitempty"`
	Confidence      SignalConfidence `json:"confidence"`
	TimeframeDays   int              `json:"timeframe_days"`
	SourceEventIDs  []string         `json:"source_event_ids,omitempty"`
	Status          SignalStatus     `json:"status"`
	ActualValue     *float64         `json:"actual_value,omitempty"`
	Reasoning       string           `json:"reasoning,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
	VerifiedAt      *time.Time       `json:"verified_at,omitempty"`
}

// SignalAccuracyStats aggregates verification outcomes over a window.
type SignalAccuracyStats struct {
	Total           int     `json:"total"`
	VerifiedCorrect int     `json:"verified_correct"`
	VerifiedWrong   int     `json:"verified_wrong"`
	Expired         int     `json:"expired"`
	Accuracy        float64 `json:"accuracy"` // correct / (correct + wrong)
}

// ThemeStatus tracks a theme's lifecycle.
type ThemeStatus string

const (
	ThemeEmerging ThemeStatus = "emerging"
	ThemeActive   ThemeStatus = "active"
	ThemeFading   ThemeStatus = "fading"
	ThemeArchived ThemeStatus = "archived"
)

// Theme is a named cluster of related events/signals/indicators with a
// non-negative strength scalar.
type Theme struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	NameVI           string      `json:"name_vi,omitempty"`
	Description      string      `json:"description,omitempty"`
	Strength         float64     `json:"strength"`
	PeakStrength     float64     `json:"peak_strength"`
	Status           ThemeStatus `json:"status"`
	LinkedEventIDs   []string    `json:"linked_event_ids,omitempty"`
	LinkedSignalIDs  []string    `json:"linked_signal_ids,omitempty"`
	LinkedIndicators []string    `json:"linked_indicators,omitempty"`
	FirstSeenAt      time.Time   `json:"first_seen_at"`
	LastSeenAt       time.Time   `json:"last_seen_at"`
}

// WatchlistType is the trigger kind of a watchlist item.
type WatchlistType string

const (
	WatchDate      WatchlistType = "date"
	WatchIndicator WatchlistType = "indicator"
	WatchKeyword   WatchlistType = "keyword"
)

// WatchlistStatus tracks a watchlist item's lifecycle.
type WatchlistStatus string

const (
	WatchWatching  WatchlistStatus = "watching"
	WatchTriggered WatchlistStatus = "triggered"
	WatchDismissed WatchlistStatus = "dismissed"
)

// Watchlist is a declarative trigger: a date to reach, an indicator condition
// of the form "OP VALUE", or a keyword to match in incoming event titles.
// TriggerDate is set iff Type is date.
type Watchlist struct {
	ID           string          `json:"id"`
	Type         WatchlistType   `json:"type"`
	Description  string          `json:"description"`
	IndicatorID  string          `json:"indicator_id,omitempty"`
	Condition    string          `json:"condition,omitempty"` // e.g. ">= 25500"
	Keyword      string          `json:"keyword,omitempty"`
	TriggerDate  *time.Time      `json:"trigger_date,omitempty"`
	Status       WatchlistStatus `json:"status"`
	SnoozedUntil *time.Time      `json:"snoozed_until,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	TriggeredAt  *time.Time      `json:"triggered_at,omitempty"`
}

// conditionOps in match order; two-char operators first so ">=" is not
// misread as ">".
var conditionOps = []string{">=", "<=", "==", "!=", ">", "<"}

// EvaluateCondition checks an indicator value against the item's
// "OP VALUE" condition string.
func (w *Watchlist) EvaluateCondition(value float64) (bool, error) {
	cond := strings.TrimSpace(w.Condition)
	if cond == "" {
		return false, fmt.Errorf("watchlist %s has empty condition", w.ID)
	}

	var op string
	for _, candidate := range conditionOps {
		if strings.HasPrefix(cond, candidate) {
			op = candidate
			break
		}
	}
	if op == "" {
		return false, fmt.Errorf("watchlist %s condition %q has no operator", w.ID, w.Condition)
	}

	threshold, err := strconv.ParseFloat(strings.TrimSpace(cond[len(op):]), 64)
	if err != nil {
		return false, fmt.Errorf("watchlist %s condition %q has invalid value: %w", w.ID, w.Condition, err)
	}

	switch op {
	case ">":
		return value > threshold, nil
	case ">=":
		return value >= threshold, nil
	case "<":
		return value < threshold, nil
	case "<=":
		return value <= threshold, nil
	case "==":
		return value == threshold, nil
	case "!=":
		return value != threshold, nil
	}
	return false, fmt.Errorf("unreachable operator %q", op)
}

// IsSnoozed reports whether the item is snoozed at the given time.
func (w *Watchlist) IsSnoozed(now time.Time) bool {
	return w.SnoozedUntil != nil && now.Before(*w.SnoozedUntil)
}
