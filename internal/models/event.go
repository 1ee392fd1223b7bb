package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DisplaySection is the surfacing tier assigned by the ranker.
type DisplaySection string

const (
	SectionKeyEvents DisplaySection = "key_events"
	SectionOtherNews DisplaySection = "other_news"
	SectionArchive   DisplaySection = "archive"
)

// Confidence tags a causal chain.
type Confidence string

const (
	ConfidenceVerified  Confidence = "verified"
	ConfidenceLikely    Confidence = "likely"
	ConfidenceUncertain Confidence = "uncertain"
)

// Event is one news or document item subject to LLM analysis. Created during
// a pipeline run, scored synchronously, re-ranked every run, never deleted.
type Event struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Content   string    `json:"content,omitempty"`
	Source    string    `json:"source"`
	SourceURL string    `json:"source_url"`

	PublishedAt time.Time `json:"published_at"`
	RunDate     time.Time `json:"run_date"`

	// Stage 1 outputs
	IsMarketRelevant bool     `json:"is_market_relevant"`
	Category         string   `json:"category,omitempty"`
	Region           string   `json:"region,omitempty"`
	LinkedIndicators []string `json:"linked_indicators,omitempty"`

	// Stage 2 outputs
	BaseScore    float64            `json:"base_score"`
	ScoreFactors map[string]float64 `json:"score_factors,omitempty"`
	ScoreError   string             `json:"score_error,omitempty"`

	// Stage 3 outputs
	CurrentScore   float64        `json:"current_score"`
	DecayFactor    float64        `json:"decay_factor"`
	BoostFactor    float64        `json:"boost_factor"`
	DisplaySection DisplaySection `json:"display_section"`
	HotTopic       bool           `json:"hot_topic"`

	// Follow-up bookkeeping
	IsFollowUp bool   `json:"is_follow_up"`
	ThreadID   string `json:"thread_id,omitempty"`

	LastRankedAt time.Time `json:"last_ranked_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AgeDays returns the event's age in whole days relative to today,
// clamped at zero for future-dated items.
func (e *Event) AgeDays(today time.Time) int {
	age := int(DateOnlyUTC(today).Sub(DateOnlyUTC(e.PublishedAt)).Hours() / 24)
	if age < 0 {
		return 0
	}
	return age
}

// DateOnlyUTC truncates a time to its calendar date in UTC.
func DateOnlyUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// eventHashContentLen bounds how much content participates in the identity
// fingerprint so trailing boilerplate differences do not defeat dedup.
const eventHashContentLen = 200

// ComputeEventHash builds the identity fingerprint over
// (title | source | first 200 chars of content).
func ComputeEventHash(title, source, content string) string {
	prefix := content
	if len(prefix) > eventHashContentLen {
		prefix = prefix[:eventHashContentLen]
	}
	sum := sha256.Sum256([]byte(title + "|" + source + "|" + prefix))
	return hex.EncodeToString(sum[:])
}

// CausalAnalysis is the 0..1 per-event causal chain produced by the scorer.
type CausalAnalysis struct {
	ID                 int64      `json:"id"`
	EventID            string     `json:"event_id"`
	MatchedTemplateID  string     `json:"matched_template_id,omitempty"`
	Chain              []string   `json:"chain"`
	Confidence         Confidence `json:"confidence"`
	InvestigationHints []string   `json:"investigation_hints,omitempty"`
	AffectedIndicators []string   `json:"affected_indicators,omitempty"`
	Reasoning          string     `json:"reasoning,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
