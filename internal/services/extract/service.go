package extract

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
)

// ErrPageNotFound marks hard and soft 404s. Callers skip the article without
// retrying.
var ErrPageNotFound = errors.New("page not found")

// IsNotFound reports whether err represents a removed or missing page.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPageNotFound)
}

// Service implements the ContentExtractor interface. One instance is shared
// across source adapters; per-source pacing lives in the adapters, not here.
type Service struct {
	config     *common.CrawlerConfig
	logger     arbor.ILogger
	httpClient *http.Client
	pdfClient  *http.Client
	converter  *md.Converter
	tempDir    string
	maxPDFSize int64
}

var _ interfaces.ContentExtractor = (*Service)(nil)

// NewService creates a content extractor.
func NewService(config *common.CrawlerConfig, logger arbor.ILogger) *Service {
	requestTimeout := common.MustDuration(config.RequestTimeout, 60*time.Second)
	pdfTimeout := common.MustDuration(config.PDFReadTimeout, 15*time.Minute)

	maxSizeMB := config.PDFMaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}

	tempDir := filepath.Join(os.TempDir(), "mekong-pdf")
	os.MkdirAll(tempDir, 0755)

	converter := md.NewConverter("", true, nil)

	return &Service{
		config:     config,
		logger:     logger,
		httpClient: &http.Client{Timeout: requestTimeout},
		pdfClient:  &http.Client{Timeout: pdfTimeout},
		converter:  converter,
		tempDir:    tempDir,
		maxPDFSize: int64(maxSizeMB) * 1024 * 1024,
	}
}

func (s *Service) userAgent() string {
	if s.config.UserAgent != "" {
		return s.config.UserAgent
	}
	return "mekong/1.0"
}
