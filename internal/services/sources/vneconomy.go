package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

const vnEconomySource = "vneconomy"

// vnEconomySections are the macro-financial categories worth ingesting.
var vnEconomySections = []string{"/tai-chinh", "/chung-khoan", "/kinh-te-vi-mo"}

// VnEconomyAdapter ingests the VnEconomy news index. Pure news source; all
// numeric intelligence comes later from the classifier.
type VnEconomyAdapter struct {
	fetcher *fetcher
	config  *common.SourceConfig
	logger  arbor.ILogger
}

var _ interfaces.SourceAdapter = (*VnEconomyAdapter)(nil)

func NewVnEconomyAdapter(config *common.SourceConfig, crawler *common.CrawlerConfig, logger arbor.ILogger) *VnEconomyAdapter {
	return &VnEconomyAdapter{
		fetcher: newFetcher(vnEconomySource, crawler, logger),
		config:  config,
		logger:  logger,
	}
}

func (a *VnEconomyAdapter) Name() string {
	return vnEconomySource
}

func (a *VnEconomyAdapter) Fetch(ctx context.Context) (*models.RawBundle, error) {
	bundle := &models.RawBundle{
		Source:    vnEconomySource,
		FetchedAt: time.Now().UTC(),
	}

	seen := make(map[string]struct{})
	for _, section := range vnEconomySections {
		pageURL := strings.TrimRight(a.config.BaseURL, "/") + section
		doc, err := a.fetcher.getDocument(ctx, pageURL)
		if err != nil {
			bundle.Errors = append(bundle.Errors, fmt.Sprintf("section %s: %v", section, err))
			continue
		}
		a.parseSection(doc, section, seen, bundle)
	}

	if len(bundle.Items) == 0 && len(bundle.Errors) > 0 {
		return nil, fmt.Errorf("vneconomy fetch produced no items: %s", strings.Join(bundle.Errors, "; "))
	}
	return bundle, nil
}

func (a *VnEconomyAdapter) parseSection(doc *goquery.Document, section string, seen map[string]struct{}, bundle *models.RawBundle) {
	doc.Find("article, .story, .news-item").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a[href]").First()
		title := strings.TrimSpace(sel.Find("h2, h3, .title").First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}

		url := resolveURL(a.config.BaseURL, href)
		// Cross-posted stories appear in more than one section
		if _, dup := seen[url]; dup {
			return
		}
		seen[url] = struct{}{}

		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "news",
			Fields: map[string]any{
				"title":        title,
				"url":          url,
				"summary":      strings.TrimSpace(sel.Find(".sapo, .summary").First().Text()),
				"published_at": strings.TrimSpace(sel.Find("time, .time, .date").First().Text()),
				"category":     strings.Trim(section, "/"),
			},
		})
	})
}

func (a *VnEconomyAdapter) Transform(bundle *models.RawBundle) (*models.CrawlerOutput, error) {
	output := &models.CrawlerOutput{
		Source:    vnEconomySource,
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
			Source:      vnEconomySource,
			SourceURL:   item.Str("url"),
			PublishedAt: parseEventTime(item.Str("published_at"), fallbackDate),
		}
		if attachments, ok := item.Fields["attachments"].([]models.Attachment); ok {
			event.Attachments = attachments
		}
		output.Events = append(output.Events, event)
	}

	output.Stats["items_skipped"] = skipped
	return output, nil
}
