package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
)

func newTestService() *Service {
	config := &common.CrawlerConfig{
		UserAgent:      "mekong-test/1.0",
		RequestTimeout: "10s",
		PDFReadTimeout: "10s",
		PDFMaxSizeMB:   1,
	}
	return NewService(config, arbor.NewLogger())
}

const articleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Fallback title</title>
	<meta property="og:description" content="Meta summary">
	<meta property="article:published_time" content="2026-08-20T09:30:00+07:00">
</head>
<body>
	<h1>NHNN điều chỉnh lãi suất OMO</h1>
	<div class="sapo">Ngân hàng Nhà nước nâng lãi suất nghiệp vụ thị trường mở.</div>
	<article>
		<p>Ngày 20/08/2026, NHNN công bố quyết định mới.</p>
		<p>Lãi suất tăng từ <strong>4,0%</strong> lên <strong>4,25%</strong>.</p>
		<a href="/files/quyet-dinh-123.pdf">Tải quyết định</a>
		<a href="https://example.com/other.pdf">Phụ lục</a>
		<a href="/tin-khac">Tin khác</a>
		<script>console.log("tracker")</script>
	</article>
</body>
</html>`

func TestExtractArticle_ParsesFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	svc := newTestService()
	content, err := svc.ExtractArticle(context.Background(), server.URL+"/tin/omo-rate")
	require.NoError(t, err)

	assert.Equal(t, "NHNN điều chỉnh lãi suất OMO", content.Title)
	assert.Equal(t, "Ngân hàng Nhà nước nâng lãi suất nghiệp vụ thị trường mở.", content.Summary)
	assert.Contains(t, content.Body, "4,25%")
	assert.NotContains(t, content.Body, "console.log")
	assert.Equal(t, 2026, content.PublishedAt.Year())

	require.Len(t, content.PDFLinks, 2)
	assert.Equal(t, server.URL+"/files/quyet-dinh-123.pdf", content.PDFLinks[0])
	assert.Equal(t, "https://example.com/other.pdf", content.PDFLinks[1])
}

func TestExtractArticle_Hard404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	svc := newTestService()
	_, err := svc.ExtractArticle(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestExtractArticle_Soft404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>Trang bạn yêu cầu không tồn tại hoặc đã bị xóa.</p></body></html>`))
	}))
	defer server.Close()

	svc := newTestService()
	_, err := svc.ExtractArticle(context.Background(), server.URL+"/removed")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestExtractArticle_FallbackSelectors(t *testing.T) {
	html := `<html><head><meta property="og:title" content="Tiêu đề meta"></head>
	<body><div class="detail-content"><p>Nội dung chính của bài viết.</p></div></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer server.Close()

	svc := newTestService()
	content, err := svc.ExtractArticle(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Tiêu đề meta", content.Title)
	assert.Contains(t, content.Body, "Nội dung chính")
}
