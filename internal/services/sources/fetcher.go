package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"golang.org/x/time/rate"
)

// fetcher is the shared HTTP layer of one source adapter. The rate limiter
// is per adapter; concurrent fetches within the adapter share its budget.
type fetcher struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
	config  *common.CrawlerConfig
}

func newFetcher(source string, config *common.CrawlerConfig, logger arbor.ILogger) *fetcher {
	delay := common.MustDuration(config.RequestDelay, 2*time.Second)
	timeout := common.MustDuration(config.RequestTimeout, 60*time.Second)

	return &fetcher{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		logger:  logger,
		config:  config,
	}
}

func (f *fetcher) userAgent() string {
	if f.config.UserAgent != "" {
		return f.config.UserAgent
	}
	return "mekong/1.0"
}

// get fetches one URL honoring the adapter's pacing budget.
func (f *fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	f.dumpRaw(url, body)
	return body, nil
}

// getDocument fetches and parses one HTML page.
func (f *fetcher) getDocument(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return doc, nil
}

// getJSON fetches and decodes one JSON endpoint.
func (f *fetcher) getJSON(ctx context.Context, url string, v interface{}) error {
	body, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

// dumpRaw writes the fetched payload under the data directory for debugging.
func (f *fetcher) dumpRaw(url string, body []byte) {
	if !f.config.DumpRaw || f.config.DataDir == "" {
		return
	}
	dir := filepath.Join(f.config.DataDir, "raw", f.source)
	if err := os.MkdirAll(dir, 0755); err != nil {
		f.logger.Warn().Err(err).Msg("Failed to create raw dump directory")
		return
	}
	name := fmt.Sprintf("%s.dump", time.Now().UTC().Format("20060102T150405.000000000"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		f.logger.Warn().Err(err).Str("path", path).Msg("Failed to write raw dump")
		return
	}
	f.logger.Debug().Str("path", path).Str("url", url).Msg("Wrote raw dump")
}
