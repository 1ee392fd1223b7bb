package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/mekong/internal/models"
)

// IndicatorStorage manages indicator identities and their time series.
type IndicatorStorage interface {
	// Upsert creates or updates the single row for the indicator id and
	// maintains updated_at.
	Upsert(ctx context.Context, indicator *models.Indicator) error
	Get(ctx context.Context, id string) (*models.Indicator, error)
	// GetAllGrouped returns indicators grouped by category for the read API.
	GetAllGrouped(ctx context.Context) ([]models.IndicatorGroup, error)
	// AddHistory appends a history row, deduplicating by
	// (indicator_id, date, value). Returns (nil, nil) when the write is a
	// no-op republish; otherwise change/change_pct are computed against the
	// latest previous row.
	AddHistory(ctx context.Context, h *models.IndicatorHistory) (*models.IndicatorHistory, error)
	GetHistory(ctx context.Context, indicatorID string, days, limit int) ([]models.IndicatorHistory, error)
	// LatestHistory returns the most recent history row for the indicator,
	// or nil when none exists.
	LatestHistory(ctx context.Context, indicatorID string) (*models.IndicatorHistory, error)
}

// EventStorage manages analyzed events and their causal analyses.
type EventStorage interface {
	Create(ctx context.Context, event *models.Event) error
	// FindByHash is the dedup probe; returns nil when no event matches.
	FindByHash(ctx context.Context, hash string) (*models.Event, error)
	// GetRecentTitles drives adapter-level title dedup before expensive
	// content fetches. Empty source matches all sources.
	GetRecentTitles(ctx context.Context, source string, days int) ([]string, error)
	// GetActiveEvents returns the ranker's working set: events no older
	// than maxAgeDays.
	GetActiveEvents(ctx context.Context, maxAgeDays int) ([]*models.Event, error)
	// UpdateScores atomically writes the ranking fields of one event.
	UpdateScores(ctx context.Context, event *models.Event) error
	GetBySection(ctx context.Context, section models.DisplaySection, limit, offset int) ([]*models.Event, error)
	SaveCausalAnalysis(ctx context.Context, ca *models.CausalAnalysis) error
	GetCausalAnalysis(ctx context.Context, eventID string) (*models.CausalAnalysis, error)
	// GetCausalAnalyses returns analyses keyed by event id for the given
	// events; missing analyses are simply absent from the map.
	GetCausalAnalyses(ctx context.Context, eventIDs []string) (map[string]*models.CausalAnalysis, error)
}

// CalendarStorage manages scheduled economic events.
type CalendarStorage interface {
	// Insert adds a calendar record, silently ignoring duplicates on
	// (date, event_name, country). Returns true when a row was written.
	Insert(ctx context.Context, rec *models.CalendarRecord) (bool, error)
	GetUpcoming(ctx context.Context, days int) ([]models.CalendarRecord, error)
}

// SignalStorage manages bounded predictions and their verification.
type SignalStorage interface {
	Create(ctx context.Context, signal *models.Signal) error
	Get(ctx context.Context, id string) (*models.Signal, error)
	GetActive(ctx context.Context) ([]*models.Signal, error)
	GetByStatus(ctx context.Context, status models.SignalStatus) ([]*models.Signal, error)
	// GetExpiredUnverified returns active signals whose expires_at has
	// passed; the verification job's input.
	GetExpiredUnverified(ctx context.Context, now time.Time) ([]*models.Signal, error)
	// Verify resolves a signal, setting status, verified_at and the actual
	// value when one was observed.
	Verify(ctx context.Context, id string, status models.SignalStatus, actual *float64) error
	GetAccuracyStats(ctx context.Context, days int, confidence models.SignalConfidence, indicatorID string) (*models.SignalAccuracyStats, error)
}

// ThemeStorage manages event/signal clusters.
type ThemeStorage interface {
	Create(ctx context.Context, theme *models.Theme) error
	Get(ctx context.Context, id string) (*models.Theme, error)
	GetActiveAndEmerging(ctx context.Context, limit int) ([]*models.Theme, error)
	// UpdateStrength writes the background-job outputs: new strength,
	// peak watermark and optional status transition.
	UpdateStrength(ctx context.Context, id string, strength, peak float64, status models.ThemeStatus) error
	LinkEvent(ctx context.Context, themeID, eventID string, seenAt time.Time) error
}

// WatchlistStorage manages declarative triggers.
type WatchlistStorage interface {
	Create(ctx context.Context, item *models.Watchlist) error
	GetActive(ctx context.Context) ([]*models.Watchlist, error)
	GetTriggered(ctx context.Context) ([]*models.Watchlist, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status models.WatchlistStatus) error
	Snooze(ctx context.Context, id string, until time.Time) error
}

// RunStorage manages orchestrator pass summaries.
type RunStorage interface {
	Save(ctx context.Context, run *models.RunHistory) error
	GetLatest(ctx context.Context) (*models.RunHistory, error)
	GetRecent(ctx context.Context, days int) ([]*models.RunHistory, error)
}

// LLMCallStorage is the append-only call history.
type LLMCallStorage interface {
	Append(ctx context.Context, rec *models.LLMCallRecord) error
	GetRecent(ctx context.Context, limit int) ([]*models.LLMCallRecord, error)
	CountForRun(ctx context.Context, runID string) (int, error)
}

// StorageManager aggregates the typed storages over one database.
type StorageManager interface {
	Indicators() IndicatorStorage
	Events() EventStorage
	Calendar() CalendarStorage
	Signals() SignalStorage
	Themes() ThemeStorage
	Watchlists() WatchlistStorage
	Runs() RunStorage
	LLMCalls() LLMCallStorage
	Ping(ctx context.Context) error
	Close() error
}
