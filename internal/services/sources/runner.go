package sources

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
	"github.com/ternarybob/mekong/internal/services/extract"
)

// itemTypeNews marks raw items that are article links needing a full
// content fetch before transformation.
const itemTypeNews = "news"

// Runner composes one adapter pass: fetch the index, drop already-seen
// titles, pull full articles through the content extractor, then transform.
type Runner struct {
	extractor interfaces.ContentExtractor
	config    *common.CrawlerConfig
	logger    arbor.ILogger
}

// NewRunner creates the shared adapter runner.
func NewRunner(extractor interfaces.ContentExtractor, config *common.CrawlerConfig, logger arbor.ILogger) *Runner {
	return &Runner{
		extractor: extractor,
		config:    config,
		logger:    logger,
	}
}

// Run executes one full adapter pass.
func (r *Runner) Run(ctx context.Context, adapter interfaces.SourceAdapter, opts interfaces.RunOptions) (*models.CrawlerOutput, error) {
	bundle, err := adapter.Fetch(ctx)
	if err != nil {
		return &models.CrawlerOutput{
			Source:    adapter.Name(),
			CrawledAt: time.Now().UTC(),
			Success:   false,
			Error:     err.Error(),
		}, err
	}

	duplicates := r.enrichNewsItems(ctx, adapter.Name(), bundle, opts)

	output, err := adapter.Transform(bundle)
	if err != nil {
		return output, err
	}

	if output.Stats == nil {
		output.Stats = make(map[string]any)
	}
	output.Stats["duplicates_skipped"] = duplicates
	output.Stats["fetch_errors"] = len(bundle.Errors)

	r.logger.Info().
		Str("source", adapter.Name()).
		Int("metrics", len(output.Metrics)).
		Int("events", len(output.Events)).
		Int("calendar", len(output.Calendar)).
		Int("duplicates_skipped", duplicates).
		Msg("Adapter run completed")

	return output, nil
}

// enrichNewsItems filters known titles and attaches full article content to
// the surviving news items. Returns the number of duplicates dropped.
func (r *Runner) enrichNewsItems(ctx context.Context, source string, bundle *models.RawBundle, opts interfaces.RunOptions) int {
	maxArticles := opts.MaxArticles
	if maxArticles <= 0 {
		maxArticles = r.config.MaxArticles
	}
	if maxArticles <= 0 {
		maxArticles = 20
	}

	seenTitles := opts.ExistingTitles
	if seenTitles == nil {
		seenTitles = make(map[string]struct{})
	}

	kept := bundle.Items[:0]
	duplicates := 0
	fetched := 0

	for _, item := range bundle.Items {
		if item.Type != itemTypeNews {
			kept = append(kept, item)
			continue
		}

		title := strings.TrimSpace(item.Str("title"))
		if title == "" {
			continue
		}
		// Repeats inside one index page dedup the same way as titles
		// already in the store.
		normalized := normalizeTitle(title)
		if _, seen := seenTitles[normalized]; seen {
			duplicates++
			continue
		}
		seenTitles[normalized] = struct{}{}
		if fetched >= maxArticles {
			continue
		}
		fetched++

		r.fetchArticle(ctx, source, &item)
		kept = append(kept, item)
	}

	bundle.Items = kept
	return duplicates
}

// fetchArticle pulls the full article body and attachments into the raw
// item's fields. Extraction failures degrade the item to index data only;
// removed pages drop the body silently.
func (r *Runner) fetchArticle(ctx context.Context, source string, item *models.RawItem) {
	url := item.Str("url")
	if url == "" {
		return
	}

	content, err := r.extractor.ExtractArticle(ctx, url)
	if err != nil {
		level := r.logger.Warn()
		if extract.IsNotFound(err) {
			level = r.logger.Debug()
		}
		level.Err(err).Str("source", source).Str("url", url).Msg("Article extraction failed")
		return
	}

	if item.Str("title") == "" && content.Title != "" {
		item.Fields["title"] = content.Title
	}
	if content.Summary != "" {
		item.Fields["summary"] = content.Summary
	}
	if content.Body != "" {
		item.Fields["content"] = content.Body
	}
	if !content.PublishedAt.IsZero() {
		item.Fields["published_at"] = content.PublishedAt.Format(time.RFC3339)
	}

	if len(content.PDFLinks) > 0 {
		attachments := make([]models.Attachment, 0, len(content.PDFLinks))
		for _, link := range content.PDFLinks {
			attachment, err := r.extractor.ExtractPDF(ctx, link)
			if err != nil {
				r.logger.Warn().Err(err).Str("url", link).Msg("PDF extraction failed")
				continue
			}
			attachments = append(attachments, *attachment)
		}
		if len(attachments) > 0 {
			item.Fields["attachments"] = attachments
		}
	}
}

// normalizeTitle canonicalizes a title for dedup comparison.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// NormalizeTitles builds the dedup set the repository titles feed into
// RunOptions.
func NormalizeTitles(titles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		set[normalizeTitle(title)] = struct{}{}
	}
	return set
}
