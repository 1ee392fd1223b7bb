package models

import "time"

// Trend tags the direction of an indicator's latest move.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// TrendFromChange derives the trend tag from an absolute change.
func TrendFromChange(change float64) Trend {
	switch {
	case change > 0:
		return TrendUp
	case change < 0:
		return TrendDown
	default:
		return TrendStable
	}
}

// Indicator is a time-series identity. One row per id; the latest value
// mirrors the most recent history row for that id.
type Indicator struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NameVI    string    `json:"name_vi,omitempty"`
	Category  string    `json:"category"`
	Unit      string    `json:"unit"`
	Value     float64   `json:"value"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Trend     Trend     `json:"trend"`
	Source    string    `json:"source"`
	SourceURL string    `json:"source_url,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndicatorHistory is one datum in a time series. Uniqueness on
// (indicator_id, date, value) suppresses no-op republishes.
type IndicatorHistory struct {
	ID            int64     `json:"id"`
	IndicatorID   string    `json:"indicator_id"`
	Value         float64   `json:"value"`
	PreviousValue float64   `json:"previous_value"`
	Change        float64   `json:"change"`
	ChangePct     float64   `json:"change_pct"`
	Volume        float64   `json:"volume,omitempty"`
	Date          time.Time `json:"date"`
	RecordedAt    time.Time `json:"recorded_at"`
	Source        string    `json:"source"`
}

// IndicatorGroup is the grouped read-side shape consumed by the display API.
type IndicatorGroup struct {
	Category   string      `json:"category"`
	Indicators []Indicator `json:"indicators"`
}
