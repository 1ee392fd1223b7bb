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

const sbvSource = "sbv"

// SBVAdapter ingests the State Bank of Vietnam portal: the central USD/VND
// rate, interbank term rates, policy rates, OMO auction results, and press
// releases / legal documents.
type SBVAdapter struct {
	fetcher *fetcher
	config  *common.SourceConfig
	logger  arbor.ILogger
}

var _ interfaces.SourceAdapter = (*SBVAdapter)(nil)

func NewSBVAdapter(config *common.SourceConfig, crawler *common.CrawlerConfig, logger arbor.ILogger) *SBVAdapter {
	return &SBVAdapter{
		fetcher: newFetcher(sbvSource, crawler, logger),
		config:  config,
		logger:  logger,
	}
}

func (a *SBVAdapter) Name() string {
	return sbvSource
}

func (a *SBVAdapter) url(path string) string {
	return strings.TrimRight(a.config.BaseURL, "/") + path
}

// Fetch pulls all SBV sections. Each section failure is collected in the
// bundle; the fetch only fails outright when nothing parsed at all.
func (a *SBVAdapter) Fetch(ctx context.Context) (*models.RawBundle, error) {
	bundle := &models.RawBundle{
		Source:    sbvSource,
		FetchedAt: time.Now().UTC(),
	}

	a.fetchCentralRate(ctx, bundle)
	a.fetchInterbankRates(ctx, bundle)
	a.fetchPolicyRates(ctx, bundle)
	a.fetchOMOResults(ctx, bundle)
	a.fetchNewsIndex(ctx, bundle, "/tin-tuc-su-kien/thong-cao-bao-chi", "press_release")
	a.fetchNewsIndex(ctx, bundle, "/van-ban-phap-luat/van-ban-moi", "legal_document")

	if len(bundle.Items) == 0 && len(bundle.Errors) > 0 {
		return nil, fmt.Errorf("sbv fetch produced no items: %s", strings.Join(bundle.Errors, "; "))
	}
	return bundle, nil
}

func (a *SBVAdapter) fetchCentralRate(ctx context.Context, bundle *models.RawBundle) {
	pageURL := a.url("/ty-gia-trung-tam")
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		bundle.Errors = append(bundle.Errors, fmt.Sprintf("central rate: %v", err))
		return
	}

	value := strings.TrimSpace(doc.Find(".rate-central .rate-value, #centralRate").First().Text())
	date := strings.TrimSpace(doc.Find(".rate-central .rate-date, #centralRateDate").First().Text())
	if value == "" {
		bundle.Errors = append(bundle.Errors, "central rate: value not found on page")
		return
	}

	bundle.Items = append(bundle.Items, models.RawItem{
		Type: "exchange_rate",
		Fields: map[string]any{
			"indicator": "usd_vnd_central",
			"value":     value,
			"date":      date,
			"url":       pageURL,
		},
	})
}

func (a *SBVAdapter) fetchInterbankRates(ctx context.Context, bundle *models.RawBundle) {
	pageURL := a.url("/lai-suat-thi-truong-lien-ngan-hang")
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		bundle.Errors = append(bundle.Errors, fmt.Sprintf("interbank rates: %v", err))
		return
	}

	date := strings.TrimSpace(doc.Find(".rate-table-date, .table-date").First().Text())
	count := 0
	doc.Find("table.rate-table tbody tr, table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		term := strings.TrimSpace(cells.Eq(0).Text())
		rate := strings.TrimSpace(cells.Eq(1).Text())
		if term == "" || rate == "" {
			return
		}
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "interbank_rate",
			Fields: map[string]any{
				"term": term,
				"rate": rate,
				"date": date,
				"url":  pageURL,
			},
		})
		count++
	})

	if count == 0 {
		bundle.Errors = append(bundle.Errors, "interbank rates: no rows parsed")
	}
}

func (a *SBVAdapter) fetchPolicyRates(ctx context.Context, bundle *models.RawBundle) {
	pageURL := a.url("/lai-suat-dieu-hanh")
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		bundle.Errors = append(bundle.Errors, fmt.Sprintf("policy rates: %v", err))
		return
	}

	count := 0
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		rate := strings.TrimSpace(cells.Eq(1).Text())
		date := strings.TrimSpace(cells.Eq(2).Text())
		if name == "" || rate == "" {
			return
		}
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "policy_rate",
			Fields: map[string]any{
				"name": name,
				"rate": rate,
				"date": date,
				"url":  pageURL,
			},
		})
		count++
	})

	if count == 0 {
		bundle.Errors = append(bundle.Errors, "policy rates: no rows parsed")
	}
}

// fetchOMOResults parses the auction result table. Each auction round lists
// per-term rows plus a "Tổng cộng" total row; the transformer does the daily
// aggregation.
func (a *SBVAdapter) fetchOMOResults(ctx context.Context, bundle *models.RawBundle) {
	pageURL := a.url("/nghiep-vu-thi-truong-mo/ket-qua-dau-thau")
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		bundle.Errors = append(bundle.Errors, fmt.Sprintf("omo results: %v", err))
		return
	}

	count := 0
	doc.Find("table.omo-table tbody tr, table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		date := strings.TrimSpace(cells.Eq(0).Text())
		tradeType := strings.TrimSpace(cells.Eq(1).Text())
		term := strings.TrimSpace(cells.Eq(2).Text())
		volume := strings.TrimSpace(cells.Eq(3).Text())
		rate := strings.TrimSpace(cells.Eq(4).Text())
		if date == "" || tradeType == "" || volume == "" {
			return
		}
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "omo",
			Fields: map[string]any{
				"date":       date,
				"trade_type": tradeType,
				"term":       term,
				"volume":     volume,
				"rate":       rate,
				"url":        pageURL,
			},
		})
		count++
	})

	if count == 0 {
		bundle.Errors = append(bundle.Errors, "omo results: no rows parsed")
	}
}

func (a *SBVAdapter) fetchNewsIndex(ctx context.Context, bundle *models.RawBundle, path, docType string) {
	pageURL := a.url(path)
	doc, err := a.fetcher.getDocument(ctx, pageURL)
	if err != nil {
		bundle.Errors = append(bundle.Errors, fmt.Sprintf("news index %s: %v", path, err))
		return
	}

	doc.Find(".news-list .news-item, ul.list-news li").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		published := strings.TrimSpace(sel.Find("time, .news-date, .date").First().Text())
		bundle.Items = append(bundle.Items, models.RawItem{
			Type: "news",
			Fields: map[string]any{
				"title":        title,
				"url":          resolveURL(a.config.BaseURL, href),
				"published_at": published,
				"doc_type":     docType,
			},
		})
	})
}

// resolveURL makes index hrefs absolute against the portal base.
func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(href, "/")
}
