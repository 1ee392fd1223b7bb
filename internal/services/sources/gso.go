package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

const gsoSource = "gso"

// GSOAdapter ingests the statistics office's news feed. CPI articles fan out
// into up to four inflation metrics extracted from title and summary.
type GSOAdapter struct {
	fetcher *fetcher
	config  *common.SourceConfig
	logger  arbor.ILogger
}

var _ interfaces.SourceAdapter = (*GSOAdapter)(nil)

func NewGSOAdapter(config *common.SourceConfig, crawler *common.CrawlerConfig, logger arbor.ILogger) *GSOAdapter {
	return &GSOAdapter{
		fetcher: newFetcher(gsoSource, crawler, logger),
		config:  config,
		logger:  logger,
	}
}

func (a *GSOAdapter) Name() string {
	return gsoSource
}

func (a *GSOAdapter) Fetch(ctx context.Context) (*models.RawBundle, error) {
	bundle := &models.RawBundle{
		Source:    gsoSource,
		FetchedAt: time.Now().UTC(),
	}

	pageURL := strings.TrimRight(a.config.BaseURL, "/") + "/tin-tuc-thong-ke"
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("gso index: %w", err)
	}

	doc.Find(".news-list article, .item-news, ul.list-news li").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "news",
			Fields: map[string]any{
				"title":        title,
				"url":          resolveURL(a.config.BaseURL, href),
				"summary":      strings.TrimSpace(sel.Find(".sapo, .summary, p").First().Text()),
				"published_at": strings.TrimSpace(sel.Find("time, .date").First().Text()),
			},
		})
	})

	if len(bundle.Items) == 0 {
		return nil, fmt.Errorf("gso index: no articles parsed from %s", pageURL)
	}
	return bundle, nil
}

// Transform emits every article as an event and fans CPI articles out into
// inflation metrics.
func (a *GSOAdapter) Transform(bundle *models.RawBundle) (*models.CrawlerOutput, error) {
	output := &models.CrawlerOutput{
		Source:    gsoSource,
		CrawledAt: bundle.FetchedAt,
		Success:   true,
		Stats:     make(map[string]any),
	}

	fallbackDate := common.DateOnly(bundle.FetchedAt)
	skipped := 0

	for _, item := range bundle.Items {
		if item.Type != "news" {
			a.logger.Warn().Str("type", item.Type).Msg("Unknown raw item type, skipping")
			skipped++
			continue
		}

		event := models.EventRecord{
			Type:        models.EventTypeNews,
			Title:       item.Str("title"),
			Summary:     item.Str("summary"),
			Content:     item.Str("content"),
			Source:      gsoSource,
			SourceURL:   item.Str("url"),
			PublishedAt: parseEventTime(item.Str("published_at"), fallbackDate),
		}
		if attachments, ok := item.Fields["attachments"].([]models.Attachment); ok {
			event.Attachments = attachments
		}
		output.Events = append(output.Events, event)

		if isCPIArticle(event.Title) {
			output.Metrics = append(output.Metrics, extractCPIMetrics(event, fallbackDate)...)
		}
	}

	output.Stats["items_skipped"] = skipped
	return output, nil
}

var (
	cpiMonthRe = regexp.MustCompile(`[Tt]háng\s+(\d{1,2})[/-](\d{4})`)

	// Sign word first, magnitude second; "tăng" is positive, "giảm" negative.
	cpiMoMRe  = regexp.MustCompile(`(tăng|giảm)\s+([\d.,]+)\s*%\s+so với tháng trước`)
	cpiYoYRe  = regexp.MustCompile(`(tăng|giảm)\s+([\d.,]+)\s*%\s+so với cùng kỳ`)
	cpiYTDRe  = regexp.MustCompile(`[Bb]ình quân[^.;]*?(tăng|giảm)\s+([\d.,]+)\s*%`)
	cpiCoreRe = regexp.MustCompile(`[Ll]ạm phát cơ bản[^.;]*?(tăng|giảm)\s+([\d.,]+)\s*%`)
)

func isCPIArticle(title string) bool {
	lower := strings.ToLower(title)
	return strings.Contains(lower, "cpi") || strings.Contains(lower, "chỉ số giá tiêu dùng")
}

// extractCPIMetrics pulls up to four metrics out of one CPI article. The
// metric date is the reporting month when the title names one, otherwise the
// publish date.
func extractCPIMetrics(event models.EventRecord, fallback time.Time) []models.MetricRecord {
	text := event.Title + "\n" + event.Summary
	date := cpiReportDate(event.Title, common.DateOnly(event.PublishedAt))
	if date.IsZero() {
		date = fallback
	}

	specs := []struct {
		re     *regexp.Regexp
		id     string
		name   string
		nameVI string
	}{
		{cpiMoMRe, "cpi_mom", "CPI month over month", "CPI so với tháng trước"},
		{cpiYoYRe, "cpi_yoy", "CPI year over year", "CPI so với cùng kỳ"},
		{cpiYTDRe, "cpi_ytd", "CPI year to date", "CPI bình quân"},
		{cpiCoreRe, "core_inflation", "Core inflation", "Lạm phát cơ bản"},
	}

	var out []models.MetricRecord
	for _, spec := range specs {
		match := spec.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value, err := common.ParseVietNumber(match[2])
		if err != nil {
			continue
		}
		if match[1] == "giảm" {
			value = -value
		}
		out = append(out, models.MetricRecord{
			Type:        models.MetricTypeCPI,
			IndicatorID: spec.id,
			Name:        spec.name,
			NameVI:      spec.nameVI,
			Category:    "inflation",
			Unit:        "%",
			Value:       value,
			Date:        date,
			Source:      gsoSource,
			SourceURL:   event.SourceURL,
		})
	}
	return out
}

// cpiReportDate resolves "tháng M/YYYY" in the title to the first of that
// month.
func cpiReportDate(title string, fallback time.Time) time.Time {
	match := cpiMonthRe.FindStringSubmatch(title)
	if match == nil {
		return fallback
	}
	month, _ := strconv.Atoi(match[1])
	year, _ := strconv.Atoi(match[2])
	if month < 1 || month > 12 {
		return fallback
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}
