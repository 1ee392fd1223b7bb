package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/mekong/internal/models"
)

// SourceAdapter is one upstream publisher: a fetcher plus a pure transformer.
type SourceAdapter interface {
	Name() string
	// Fetch parses upstream pages/APIs into raw typed items. Partial
	// failures are collected in the bundle, not returned as errors.
	Fetch(ctx context.Context) (*models.RawBundle, error)
	// Transform maps raw items to canonical records. It is deterministic
	// and side-effect free; unknown item types are warned and skipped.
	Transform(bundle *models.RawBundle) (*models.CrawlerOutput, error)
}

// RunOptions bounds one adapter pass.
type RunOptions struct {
	MaxArticles    int
	ExistingTitles map[string]struct{}
}

// ArticleContent is the content extractor's output for one article URL.
type ArticleContent struct {
	Title       string
	Summary     string
	Body        string // Markdown
	Categories  []string
	PublishedAt time.Time
	PDFLinks    []string
}

// ContentExtractor fetches and parses full article bodies and attachments.
type ContentExtractor interface {
	ExtractArticle(ctx context.Context, url string) (*ArticleContent, error)
	// ExtractPDF downloads and extracts one PDF attachment, honoring the
	// size and time budgets. Over-budget or unreadable documents come back
	// with Skipped set rather than as errors.
	ExtractPDF(ctx context.Context, url string) (*models.Attachment, error)
}
