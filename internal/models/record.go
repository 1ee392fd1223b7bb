package models

import "time"

// MetricType identifies the kind of time-series datum a source produced.
type MetricType string

const (
	MetricTypeExchangeRate  MetricType = "exchange_rate"
	MetricTypeInterbankRate MetricType = "interbank_rate"
	MetricTypePolicyRate    MetricType = "policy_rate"
	MetricTypeGoldPrice     MetricType = "gold_price"
	MetricTypeCPI           MetricType = "cpi"
	MetricTypeOMO           MetricType = "omo"
	MetricTypeCredit        MetricType = "credit"
	MetricTypeIndex         MetricType = "index"
	MetricTypeBondYield     MetricType = "bond_yield"
	MetricTypeCommodity     MetricType = "commodity"
)

// Valid reports whether the metric type is a known variant
func (m MetricType) Valid() bool {
	switch m {
	case MetricTypeExchangeRate, MetricTypeInterbankRate, MetricTypePolicyRate,
		MetricTypeGoldPrice, MetricTypeCPI, MetricTypeOMO, MetricTypeCredit,
		MetricTypeIndex, MetricTypeBondYield, MetricTypeCommodity:
		return true
	}
	return false
}

// EventType identifies the kind of document a source produced.
type EventType string

const (
	EventTypeNews          EventType = "news"
	EventTypePressRelease  EventType = "press_release"
	EventTypeCircular      EventType = "circular"
	EventTypeAnnouncement  EventType = "announcement"
	EventTypeLegalDocument EventType = "legal_document"
)

// Valid reports whether the event type is a known variant
func (e EventType) Valid() bool {
	switch e {
	case EventTypeNews, EventTypePressRelease, EventTypeCircular,
		EventTypeAnnouncement, EventTypeLegalDocument:
		return true
	}
	return false
}

// MetricRecord is one canonical time-series datum emitted by a transformer.
// Attributes carries per-type side data (volume, buy/sell, per-term breakdown).
type MetricRecord struct {
	Type        MetricType     `json:"type"`
	IndicatorID string         `json:"indicator_id"`
	Name        string         `json:"name"`
	NameVI      string         `json:"name_vi,omitempty"`
	Category    string         `json:"category"`
	Unit        string         `json:"unit"`
	Value       float64        `json:"value"`
	Date        time.Time      `json:"date"`
	Source      string         `json:"source"`
	SourceURL   string         `json:"source_url,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EventRecord is one canonical news/document item emitted by a transformer.
type EventRecord struct {
	Type        EventType    `json:"type"`
	Title       string       `json:"title"`
	Summary     string       `json:"summary,omitempty"`
	Content     string       `json:"content,omitempty"`
	Source      string       `json:"source"`
	SourceURL   string       `json:"source_url"`
	PublishedAt time.Time    `json:"published_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a document attached to an event, typically a PDF whose text
// has already been extracted.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Text     string `json:"text,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"` // Over budget or unreadable
}

// CalendarRecord is one scheduled economic event.
type CalendarRecord struct {
	EventName  string    `json:"event_name"`
	Country    string    `json:"country"`
	Date       time.Time `json:"date"`
	Time       string    `json:"time,omitempty"`
	Importance string    `json:"importance"`
	Previous   string    `json:"previous,omitempty"`
	Forecast   string    `json:"forecast,omitempty"`
	Actual     string    `json:"actual,omitempty"`
}

// CrawlerOutput is the only data shape that crosses the adapter/orchestrator
// boundary. Adapters must not leak source-specific shapes downstream.
type CrawlerOutput struct {
	Source    string           `json:"source"`
	CrawledAt time.Time        `json:"crawled_at"`
	Success   bool             `json:"success"`
	Error     string           `json:"error,omitempty"`
	Stats     map[string]any   `json:"stats,omitempty"`
	Metrics   []MetricRecord   `json:"metrics,omitempty"`
	Events    []EventRecord    `json:"events,omitempty"`
	Calendar  []CalendarRecord `json:"calendar,omitempty"`
}

// RawItem is one upstream item before transformation, tagged with a type
// string the transformer dispatches on.
type RawItem struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

// RawBundle groups the raw items of one fetch pass. Partial failures are
// collected in Errors and do not discard the items that did parse.
type RawBundle struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Items     []RawItem `json:"items"`
	Errors    []string  `json:"errors,omitempty"`
}

// Str returns a string field from a raw item, or "" when absent.
func (r RawItem) Str(key string) string {
	if v, ok := r.Fields[key].(string); ok {
		return v
	}
	return ""
}

// Float returns a float64 field from a raw item, or 0 when absent.
func (r RawItem) Float(key string) float64 {
	if v, ok := r.Fields[key].(float64); ok {
		return v
	}
	return 0
}
