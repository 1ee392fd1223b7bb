package sources

import (
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

// interbankTerms maps the portal's Vietnamese term labels to canonical
// indicator ids.
var interbankTerms = map[string]string{
	"Qua đêm": "interbank_on",
	"1 Tuần":  "interbank_1w",
	"2 Tuần":  "interbank_2w",
	"1 Tháng": "interbank_1m",
	"3 Tháng": "interbank_3m",
	"6 Tháng": "interbank_6m",
	"9 Tháng": "interbank_9m",
}

var interbankNames = map[string]string{
	"interbank_on": "Overnight interbank rate",
	"interbank_1w": "1-week interbank rate",
	"interbank_2w": "2-week interbank rate",
	"interbank_1m": "1-month interbank rate",
	"interbank_3m": "3-month interbank rate",
	"interbank_6m": "6-month interbank rate",
	"interbank_9m": "9-month interbank rate",
}

var policyRates = map[string]string{
	"Lãi suất tái cấp vốn":     "refinancing_rate",
	"Lãi suất tái chiết khấu":  "discount_rate",
	"Lãi suất cho vay qua đêm": "overnight_lending_rate",
}

var policyRateNames = map[string]string{
	"refinancing_rate":       "Refinancing rate",
	"discount_rate":          "Discount rate",
	"overnight_lending_rate": "Overnight lending rate",
}

// omoTermIDs normalizes auction term labels for the per-term breakdown.
var omoTermIDs = map[string]string{
	"7 ngày":  "7d",
	"14 ngày": "14d",
	"28 ngày": "28d",
	"56 ngày": "56d",
}

const (
	omoTotalRow    = "Tổng cộng"
	omoTradeInject = "Mua kỳ hạn"
	omoTradeDrain  = "Bán kỳ hạn"
)

// Transform maps raw SBV items to canonical records. It is deterministic and
// side-effect free; unknown item types and labels are warned and skipped.
func (a *SBVAdapter) Transform(bundle *models.RawBundle) (*models.CrawlerOutput, error) {
	output := &models.CrawlerOutput{
		Source:    sbvSource,
		CrawledAt: bundle.FetchedAt,
		Success:   true,
		Stats:     make(map[string]any),
	}

	fallbackDate := common.DateOnly(bundle.FetchedAt)
	omo := newOMOAccumulator(a.logger, fallbackDate)
	skipped := 0

	for _, item := range bundle.Items {
		switch item.Type {
		case "exchange_rate":
			if metric, ok := a.transformCentralRate(item, fallbackDate); ok {
				output.Metrics = append(output.Metrics, metric)
			} else {
				skipped++
			}
		case "interbank_rate":
			if metric, ok := a.transformInterbankRate(item, fallbackDate); ok {
				output.Metrics = append(output.Metrics, metric)
			} else {
				skipped++
			}
		case "policy_rate":
			if metric, ok := a.transformPolicyRate(item, fallbackDate); ok {
				output.Metrics = append(output.Metrics, metric)
			} else {
				skipped++
			}
		case "omo":
			if !omo.add(item) {
				skipped++
			}
		case "news":
			output.Events = append(output.Events, a.transformNewsItem(item, fallbackDate))
		default:
			a.logger.Warn().Str("type", item.Type).Msg("Unknown raw item type, skipping")
			skipped++
		}
	}

	output.Metrics = append(output.Metrics, omo.metrics()...)
	output.Stats["items_skipped"] = skipped
	return output, nil
}

func (a *SBVAdapter) transformCentralRate(item models.RawItem, fallback time.Time) (models.MetricRecord, bool) {
	value, err := common.ParseVietNumber(item.Str("value"))
	if err != nil {
		a.logger.Warn().Err(err).Str("raw", item.Str("value")).Msg("Unparseable central rate value")
		return models.MetricRecord{}, false
	}
	return models.MetricRecord{
		Type:        models.MetricTypeExchangeRate,
		IndicatorID: "usd_vnd_central",
		Name:        "USD/VND central rate",
		NameVI:      "Tỷ giá trung tâm",
		Category:    "exchange_rate",
		Unit:        "VND",
		Value:       value,
		Date:        common.DateOnly(common.ParseVietDateOr(item.Str("date"), fallback)),
		Source:      sbvSource,
		SourceURL:   item.Str("url"),
	}, true
}

func (a *SBVAdapter) transformInterbankRate(item models.RawItem, fallback time.Time) (models.MetricRecord, bool) {
	term := item.Str("term")
	id, ok := interbankTerms[term]
	if !ok {
		a.logger.Warn().Str("term", term).Msg("Unknown interbank term, skipping")
		return models.MetricRecord{}, false
	}
	rate, err := common.ParseVietNumber(item.Str("rate"))
	if err != nil {
		a.logger.Warn().Err(err).Str("term", term).Str("raw", item.Str("rate")).Msg("Unparseable interbank rate")
		return models.MetricRecord{}, false
	}
	return models.MetricRecord{
		Type:        models.MetricTypeInterbankRate,
		IndicatorID: id,
		Name:        interbankNames[id],
		NameVI:      "Lãi suất liên ngân hàng " + term,
		Category:    "interbank",
		Unit:        "%/năm",
		Value:       rate,
		Date:        common.DateOnly(common.ParseVietDateOr(item.Str("date"), fallback)),
		Source:      sbvSource,
		SourceURL:   item.Str("url"),
	}, true
}

func (a *SBVAdapter) transformPolicyRate(item models.RawItem, fallback time.Time) (models.MetricRecord, bool) {
	name := item.Str("name")
	id, ok := policyRates[name]
	if !ok {
		a.logger.Warn().Str("name", name).Msg("Unknown policy rate, skipping")
		return models.MetricRecord{}, false
	}
	rate, err := common.ParseVietNumber(item.Str("rate"))
	if err != nil {
		a.logger.Warn().Err(err).Str("name", name).Str("raw", item.Str("rate")).Msg("Unparseable policy rate")
		return models.MetricRecord{}, false
	}
	return models.MetricRecord{
		Type:        models.MetricTypePolicyRate,
		IndicatorID: id,
		Name:        policyRateNames[id],
		NameVI:      name,
		Category:    "policy_rate",
		Unit:        "%/năm",
		Value:       rate,
		Date:        common.DateOnly(common.ParseVietDateOr(item.Str("date"), fallback)),
		Source:      sbvSource,
		SourceURL:   item.Str("url"),
	}, true
}

func (a *SBVAdapter) transformNewsItem(item models.RawItem, fallback time.Time) models.EventRecord {
	event := models.EventRecord{
		Type:        sbvEventType(item.Str("doc_type"), item.Str("title")),
		Title:       item.Str("title"),
		Summary:     item.Str("summary"),
		Content:     item.Str("content"),
		Source:      sbvSource,
		SourceURL:   item.Str("url"),
		PublishedAt: parseEventTime(item.Str("published_at"), fallback),
	}
	if attachments, ok := item.Fields["attachments"].([]models.Attachment); ok {
		event.Attachments = attachments
	}
	return event
}

// sbvEventType classifies portal documents. Circulars are legal documents
// titled "Thông tư"; everything else under the legal index stays generic.
func sbvEventType(docType, title string) models.EventType {
	switch docType {
	case "press_release":
		return models.EventTypePressRelease
	case "legal_document":
		if hasPrefixFold(title, "Thông tư") {
			return models.EventTypeCircular
		}
		return models.EventTypeLegalDocument
	default:
		return models.EventTypeNews
	}
}

// omoAccumulator folds per-round auction rows into daily aggregates. Total
// rows carry the round volume; per-term rows carry the injection breakdown.
type omoAccumulator struct {
	logger   arbor.ILogger
	fallback time.Time
	days     map[string]*omoDay
	url      string
}

type omoDay struct {
	date     time.Time
	inject   float64
	withdraw float64
	terms    map[string]float64
}

func newOMOAccumulator(logger arbor.ILogger, fallback time.Time) *omoAccumulator {
	return &omoAccumulator{
		logger:   logger,
		fallback: fallback,
		days:     make(map[string]*omoDay),
	}
}

func (o *omoAccumulator) add(item models.RawItem) bool {
	volume, err := common.ParseVietNumber(item.Str("volume"))
	if err != nil {
		o.logger.Warn().Err(err).Str("raw", item.Str("volume")).Msg("Unparseable OMO volume")
		return false
	}
	if o.url == "" {
		o.url = item.Str("url")
	}

	date := common.DateOnly(common.ParseVietDateOr(item.Str("date"), o.fallback))
	key := date.Format("2006-01-02")
	day, ok := o.days[key]
	if !ok {
		day = &omoDay{date: date, terms: make(map[string]float64)}
		o.days[key] = day
	}

	tradeType := item.Str("trade_type")
	if item.Str("term") == omoTotalRow {
		switch tradeType {
		case omoTradeInject:
			day.inject += volume
		case omoTradeDrain:
			day.withdraw += volume
		default:
			o.logger.Warn().Str("trade_type", tradeType).Msg("Unknown OMO trade type, skipping")
			return false
		}
		return true
	}

	// Per-term breakdown tracks injections only
	if tradeType != omoTradeInject {
		return true
	}
	termID, ok := omoTermIDs[item.Str("term")]
	if !ok {
		o.logger.Warn().Str("term", item.Str("term")).Msg("Unknown OMO term, skipping")
		return false
	}
	day.terms[termID] += volume
	return true
}

// metrics emits per-date aggregates in date order: the net position always,
// inject and withdraw legs only when non-zero.
func (o *omoAccumulator) metrics() []models.MetricRecord {
	keys := make([]string, 0, len(o.days))
	for key := range o.days {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []models.MetricRecord
	for _, key := range keys {
		day := o.days[key]

		netAttrs := map[string]any{
			"inject":   day.inject,
			"withdraw": day.withdraw,
		}
		out = append(out, o.metric("omo_net_daily", "Net OMO injection", "Bơm ròng OMO", day.date, day.inject-day.withdraw, netAttrs))

		if day.inject != 0 {
			var attrs map[string]any
			if len(day.terms) > 0 {
				terms := make(map[string]any, len(day.terms))
				for term, volume := range day.terms {
					terms[term] = volume
				}
				attrs = map[string]any{"terms": terms}
			}
			out = append(out, o.metric("omo_inject_daily", "OMO injection", "Bơm OMO", day.date, day.inject, attrs))
		}
		if day.withdraw != 0 {
			out = append(out, o.metric("omo_withdraw_daily", "OMO withdrawal", "Hút OMO", day.date, day.withdraw, nil))
		}
	}
	return out
}

func (o *omoAccumulator) metric(id, name, nameVI string, date time.Time, value float64, attrs map[string]any) models.MetricRecord {
	return models.MetricRecord{
		Type:        models.MetricTypeOMO,
		IndicatorID: id,
		Name:        name,
		NameVI:      nameVI,
		Category:    "omo",
		Unit:        "tỷ đồng",
		Value:       value,
		Date:        date,
		Source:      sbvSource,
		SourceURL:   o.url,
		Attributes:  attrs,
	}
}
