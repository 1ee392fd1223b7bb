package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/mekong/internal/models"
)

var pdfMagic = []byte("%PDF")

// pdfRetryDelays between download attempts. Linear, not exponential; the
// upstream document portals recover from transient errors within seconds.
var pdfRetryDelays = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

var pageNumberLineRe = regexp.MustCompile(`^\s*(?:-\s*)?\d{1,4}(?:\s*-)?\s*$`)

// pdfSeq distinguishes temp files of concurrent extractions.
var pdfSeq atomic.Int64

// ExtractPDF downloads one PDF attachment and extracts its text. Over-budget
// or unreadable documents come back with Skipped set so the article is still
// usable without the attachment.
func (s *Service) ExtractPDF(ctx context.Context, pdfURL string) (*models.Attachment, error) {
	attachment := &models.Attachment{
		URL:      pdfURL,
		Filename: filenameFromURL(pdfURL),
	}

	// Check the size budget before committing to a long download
	if size, ok := s.headContentLength(ctx, pdfURL); ok && size > s.maxPDFSize {
		s.logger.Warn().
			Str("url", pdfURL).
			Int64("size", size).
			Int64("limit", s.maxPDFSize).
			Msg("Skipping oversized PDF")
		attachment.Skipped = true
		return attachment, nil
	}

	content, err := s.downloadPDF(ctx, pdfURL)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > s.maxPDFSize {
		s.logger.Warn().Str("url", pdfURL).Int("size", len(content)).Msg("Skipping oversized PDF")
		attachment.Skipped = true
		return attachment, nil
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		s.logger.Warn().Str("url", pdfURL).Msg("Downloaded attachment is not a PDF, skipping")
		attachment.Skipped = true
		return attachment, nil
	}

	text, err := s.extractPDFText(content)
	if err != nil {
		s.logger.Warn().Err(err).Str("url", pdfURL).Msg("PDF text extraction failed, keeping attachment without text")
		attachment.Skipped = true
		return attachment, nil
	}

	attachment.Text = normalizePDFText(text)
	s.logger.Debug().
		Str("url", pdfURL).
		Int("text_length", len(attachment.Text)).
		Msg("Extracted PDF attachment")
	return attachment, nil
}

// headContentLength probes the document size. A failed probe is not an
// error; the budget is re-checked after download.
func (s *Service) headContentLength(ctx context.Context, pdfURL string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, pdfURL, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("User-Agent", s.userAgent())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.ContentLength <= 0 {
		return 0, false
	}
	return resp.ContentLength, true
}

// downloadPDF fetches the document with linear-backoff retries. Client
// errors (4xx) are final; retrying a missing document does not help.
func (s *Service) downloadPDF(ctx context.Context, pdfURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= len(pdfRetryDelays); attempt++ {
		if attempt > 0 {
			delay := pdfRetryDelays[attempt-1]
			s.logger.Warn().
				Str("url", pdfURL).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Err(lastErr).
				Msg("Retrying PDF download")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		content, retryable, err := s.fetchPDFOnce(ctx, pdfURL)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("PDF download failed after %d attempts: %w", len(pdfRetryDelays)+1, lastErr)
}

func (s *Service) fetchPDFOnce(ctx context.Context, pdfURL string) (content []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request for %s: %w", pdfURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent())

	resp, err := s.pdfClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("failed to fetch %s: %w", pdfURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, false, fmt.Errorf("%w: %s returned %d", ErrPageNotFound, pdfURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, true, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pdfURL)
	}

	// Bounded read so a lying Content-Length cannot exhaust memory
	content, err = io.ReadAll(io.LimitReader(resp.Body, s.maxPDFSize+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s: %w", pdfURL, err)
	}
	return content, false, nil
}

// extractPDFText runs pdfcpu content extraction over a temp file and joins
// pages with Vietnamese page markers.
func (s *Service) extractPDFText(content []byte) (string, error) {
	seq := pdfSeq.Add(1)
	tempFile := filepath.Join(s.tempDir, fmt.Sprintf("extract_%d_%d.pdf", os.Getpid(), seq))
	if err := os.WriteFile(tempFile, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF context: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(s.tempDir, fmt.Sprintf("pages_%d_%d", os.Getpid(), seq))
	os.MkdirAll(outDir, 0755)
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text, ok := pageTexts[pageNum]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("--- Trang %d ---\n\n", pageNum))
		builder.WriteString(text)
	}

	return builder.String(), nil
}

// normalizePDFText collapses extraction whitespace and drops lines that are
// only page numbers.
func normalizePDFText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		if pageNumberLineRe.MatchString(line) && !strings.HasPrefix(line, "--- Trang") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func filenameFromURL(pdfURL string) string {
	parsed, err := url.Parse(pdfURL)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
