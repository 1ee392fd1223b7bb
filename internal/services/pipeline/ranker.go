package pipeline

import (
	"math"
	"sort"
	"time"

	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

// Boost multipliers. Composed multiplicatively per event.
const (
	boostFollowUp   = 1.5
	boostHotTopic   = 1.2
	boostIndicators = 1.1
)

// Ranker is stage 3: a pure in-memory pass over the active event set. Given
// the same events, analyses and today reference it produces identical output.
type Ranker struct {
	thresholdKeyEvents float64
	thresholdOtherNews float64
	maxKeyEvents       int
	maxEventAgeDays    int
	hotTopicWindowDays int
	hotTopicMinCount   int
}

func NewRanker(config *common.PipelineConfig) *Ranker {
	r := &Ranker{
		thresholdKeyEvents: config.ThresholdKeyEvents,
		thresholdOtherNews: config.ThresholdOtherNews,
		maxKeyEvents:       config.MaxKeyEvents,
		maxEventAgeDays:    config.MaxEventAgeDays,
		hotTopicWindowDays: config.HotTopicWindowDays,
		hotTopicMinCount:   config.HotTopicMinCount,
	}
	if r.thresholdKeyEvents <= 0 {
		r.thresholdKeyEvents = 70
	}
	if r.thresholdOtherNews <= 0 {
		r.thresholdOtherNews = 40
	}
	if r.maxKeyEvents <= 0 {
		r.maxKeyEvents = 10
	}
	if r.maxEventAgeDays <= 0 {
		r.maxEventAgeDays = 30
	}
	if r.hotTopicWindowDays <= 0 {
		r.hotTopicWindowDays = 7
	}
	if r.hotTopicMinCount <= 0 {
		r.hotTopicMinCount = 3
	}
	return r
}

// DecayFactor is the piecewise age decay. Age is whole days since
// publication, clamped at zero.
func DecayFactor(ageDays int) float64 {
	switch {
	case ageDays <= 1:
		return 1.0
	case ageDays <= 3:
		return 0.85
	case ageDays <= 7:
		return 0.60
	case ageDays <= 14:
		return 0.30
	case ageDays <= 30:
		return 0.10
	default:
		return 0.0
	}
}

// HotTopics counts active events per category and per matched causal template
// within the detection window. Any key reaching the minimum count is hot.
// Empty and "internal" categories never qualify.
func (r *Ranker) HotTopics(events []*models.Event, analyses map[string]*models.CausalAnalysis, today time.Time) map[string]int {
	cutoff := models.DateOnlyUTC(today).AddDate(0, 0, -r.hotTopicWindowDays)
	counts := make(map[string]int)

	for _, event := range events {
		if event.PublishedAt.Before(cutoff) {
			continue
		}
		if event.Category != "" && event.Category != "internal" {
			counts[event.Category]++
		}
		if analysis, ok := analyses[event.ID]; ok && analysis.MatchedTemplateID != "" {
			counts[analysis.MatchedTemplateID]++
		}
	}

	hot := make(map[string]int)
	for key, count := range counts {
		if count >= r.hotTopicMinCount {
			hot[key] = count
		}
	}
	return hot
}

// Rank recomputes decay, boost, final score and display section for every
// event in place, then enforces the key-events cap.
func (r *Ranker) Rank(events []*models.Event, analyses map[string]*models.CausalAnalysis, today time.Time) {
	hot := r.HotTopics(events, analyses, today)

	for _, event := range events {
		age := event.AgeDays(today)
		decay := DecayFactor(age)

		boost := 1.0
		if event.IsFollowUp {
			boost *= boostFollowUp
		}
		event.HotTopic = r.isHot(event, analyses, hot)
		if event.HotTopic {
			boost *= boostHotTopic
		}
		if len(event.LinkedIndicators) >= 2 {
			boost *= boostIndicators
		}

		score := round2(event.BaseScore * decay * boost)

		event.DecayFactor = decay
		event.BoostFactor = boost
		event.CurrentScore = score
		event.DisplaySection = r.section(event, score, decay, age)
	}

	r.enforceKeyEventsCap(events)
}

func (r *Ranker) isHot(event *models.Event, analyses map[string]*models.CausalAnalysis, hot map[string]int) bool {
	if event.Category != "" && event.Category != "internal" {
		if _, ok := hot[event.Category]; ok {
			return true
		}
	}
	if analysis, ok := analyses[event.ID]; ok && analysis.MatchedTemplateID != "" {
		if _, isHot := hot[analysis.MatchedTemplateID]; isHot {
			return true
		}
	}
	return false
}

func (r *Ranker) section(event *models.Event, score, decay float64, age int) models.DisplaySection {
	if !event.IsMarketRelevant || decay == 0 || age > r.maxEventAgeDays {
		return models.SectionArchive
	}
	if score >= r.thresholdKeyEvents && len(event.LinkedIndicators) >= 1 {
		return models.SectionKeyEvents
	}
	if score >= r.thresholdOtherNews {
		return models.SectionOtherNews
	}
	return models.SectionArchive
}

// enforceKeyEventsCap retains at most maxKeyEvents in the key tier by score,
// ties broken by most recent publication; the overflow spills to other_news.
func (r *Ranker) enforceKeyEventsCap(events []*models.Event) {
	var key []*models.Event
	for _, event := range events {
		if event.DisplaySection == models.SectionKeyEvents {
			key = append(key, event)
		}
	}
	if len(key) <= r.maxKeyEvents {
		return
	}

	sort.SliceStable(key, func(i, j int) bool {
		if key[i].CurrentScore != key[j].CurrentScore {
			return key[i].CurrentScore > key[j].CurrentScore
		}
		return key[i].PublishedAt.After(key[j].PublishedAt)
	})
	for _, event := range key[r.maxKeyEvents:] {
		event.DisplaySection = models.SectionOtherNews
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
