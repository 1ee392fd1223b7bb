package models

import "time"

// RunStatus summarizes one orchestrator pass.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunHistory is one row per orchestrator pass.
type RunHistory struct {
	ID                string    `json:"id"`
	RunDate           time.Time `json:"run_date"`
	Status            RunStatus `json:"status"`
	Summary           string    `json:"summary,omitempty"`
	MetricsIngested   int       `json:"metrics_ingested"`
	CalendarIngested  int       `json:"calendar_ingested"`
	EventsCollected   int       `json:"events_collected"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	EventsClassified  int       `json:"events_classified"`
	EventsRelevant    int       `json:"events_relevant"`
	EventsScored      int       `json:"events_scored"`
	EventsRanked      int       `json:"events_ranked"`
	SignalsCreated    int       `json:"signals_created"`
	SignalsVerified   int       `json:"signals_verified"`
	Errors            []string  `json:"errors,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
}
