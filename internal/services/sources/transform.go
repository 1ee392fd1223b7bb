package sources

import (
	"strings"
	"time"

	"github.com/ternarybob/mekong/internal/common"
)

// parseEventTime decodes a published-at field. Runner-enriched items carry
// RFC 3339; index-only items carry the portal's Vietnamese date string.
func parseEventTime(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	return common.ParseVietDateOr(raw, fallback)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
