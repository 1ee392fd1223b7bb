package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
)

func newTestCalendarAdapter(baseURL string) *CalendarAdapter {
	return NewCalendarAdapter(
		&common.SourceConfig{Enabled: true, BaseURL: baseURL},
		&common.CrawlerConfig{RequestDelay: "1ms", RequestTimeout: "5s"},
		arbor.NewLogger(),
	)
}

func TestCalendarFetchAndTransform(t *testing.T) {
	feed := `[
		{"event": "FOMC Rate Decision", "country": "US", "date": "2026-08-26", "time": "18:00", "importance": "high", "forecast": "4.25%"},
		{"event": "CPI công bố", "country": "VN", "date": "29/08/2026", "importance": "2", "previous": "3,4%"},
		{"event": "", "country": "US", "date": "2026-08-27"},
		{"event": "Broken date", "country": "EU", "date": "sometime soon"}
	]`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/calendar/week", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(feed))
	}))
	defer server.Close()

	adapter := newTestCalendarAdapter(server.URL)
	bundle, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, bundle.Items, 4)

	output, err := adapter.Transform(bundle)
	require.NoError(t, err)
	require.Len(t, output.Calendar, 2, "empty names and unparseable dates are skipped")
	assert.Equal(t, 2, output.Stats["items_skipped"])

	fomc := output.Calendar[0]
	assert.Equal(t, "FOMC Rate Decision", fomc.EventName)
	assert.Equal(t, "US", fomc.Country)
	assert.Equal(t, time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC), fomc.Date)
	assert.Equal(t, "high", fomc.Importance)
	assert.Equal(t, "4.25%", fomc.Forecast)

	cpi := output.Calendar[1]
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), cpi.Date)
	assert.Equal(t, "medium", cpi.Importance, "numeric importance normalized")
}

func TestNormalizeImportance(t *testing.T) {
	assert.Equal(t, "high", normalizeImportance("High"))
	assert.Equal(t, "low", normalizeImportance("1"))
	assert.Equal(t, "medium", normalizeImportance(""))
}
