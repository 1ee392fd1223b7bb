package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
)

// articleContentSelectors in preference order. Vietnamese news sites keep the
// article body under one of a handful of detail containers.
var articleContentSelectors = []string{
	"article",
	".detail-content",
	".detail__content",
	".article-content",
	".news-content",
	".post-content",
	"#abody",
	".content-detail",
	"main",
}

// softNotFoundMarkers appear in 200-OK pages whose article has been removed.
var softNotFoundMarkers = []string{
	"không tồn tại",
	"không tìm thấy trang",
}

// ExtractArticle fetches one article URL and parses title, summary, body
// markdown and attachment links.
func (s *Service) ExtractArticle(ctx context.Context, articleURL string) (*interfaces.ArticleContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", articleURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", articleURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("%w: %s returned %d", ErrPageNotFound, articleURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, articleURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", articleURL, err)
	}

	// Removed articles come back 200 with a Vietnamese "does not exist" page
	bodyText := strings.ToLower(doc.Find("body").Text())
	for _, marker := range softNotFoundMarkers {
		if strings.Contains(bodyText, marker) {
			return nil, fmt.Errorf("%w: %s (soft 404)", ErrPageNotFound, articleURL)
		}
	}

	content := &interfaces.ArticleContent{
		Title:   extractTitle(doc),
		Summary: extractSummary(doc),
	}

	if published, ok := extractPublishedAt(doc); ok {
		content.PublishedAt = published
	}

	doc.Find(".breadcrumb a, .category a, [class*='cate'] a").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" && len(content.Categories) < 5 {
			content.Categories = append(content.Categories, text)
		}
	})

	body := s.extractBody(doc)
	if body == "" && content.Title == "" {
		return nil, fmt.Errorf("no extractable content at %s", articleURL)
	}
	content.Body = body

	content.PDFLinks = extractPDFLinks(doc, articleURL)

	s.logger.Debug().
		Str("url", articleURL).
		Int("body_length", len(body)).
		Int("pdf_links", len(content.PDFLinks)).
		Msg("Extracted article")

	return content, nil
}

func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(doc.Find("title").Text())
}

func extractSummary(doc *goquery.Document) string {
	for _, sel := range []string{".sapo", ".detail-sapo", ".article-summary", ".summary"} {
		if summary := strings.TrimSpace(doc.Find(sel).First().Text()); summary != "" {
			return summary
		}
	}
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		return strings.TrimSpace(desc)
	}
	return ""
}

// extractPublishedAt reads the publication timestamp from meta tags first,
// falling back to visible date elements in Vietnamese formats.
func extractPublishedAt(doc *goquery.Document) (time.Time, bool) {
	if value, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
			return t, true
		}
	}
	if value, ok := doc.Find("time[datetime]").Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
			return t, true
		}
	}
	for _, sel := range []string{".date", ".publish-date", ".detail-time", "time"} {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if t, err := common.ParseVietDate(text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractBody converts the main article container to markdown.
func (s *Service) extractBody(doc *goquery.Document) string {
	for _, selector := range articleContentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		// Strip navigation and media chrome before conversion
		sel.Find("script, style, nav, .related, .banner, .advertisement, .social-share").Remove()

		html, err := goquery.OuterHtml(sel)
		if err != nil {
			continue
		}
		markdown, err := s.converter.ConvertString(html)
		if err != nil {
			s.logger.Warn().Err(err).Str("selector", selector).Msg("Markdown conversion failed")
			continue
		}
		markdown = strings.TrimSpace(markdown)
		if markdown != "" {
			return markdown
		}
	}
	return ""
}

// extractPDFLinks collects attachment links, resolved against the page URL.
func extractPDFLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})
	return links
}
