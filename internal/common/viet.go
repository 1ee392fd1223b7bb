package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseVietNumber parses a number written in the Vietnamese locale where the
// dot is a thousands separator and the comma is the decimal separator.
// Non-numeric glyphs other than '.' and ',' are stripped, the last comma is
// treated as the decimal point, and all remaining groups form the integer
// part: "25.067" -> 25067, "4,25" -> 4.25, "1.234.567,89" -> 1234567.89.
func ParseVietNumber(raw string) (float64, error) {
	var b strings.Builder
	negative := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			// Leading minus only; dashes inside text are separators.
			negative = true
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("no numeric content in %q", raw)
	}

	intPart := cleaned
	fracPart := ""
	if idx := strings.LastIndex(cleaned, ","); idx >= 0 {
		intPart = cleaned[:idx]
		fracPart = cleaned[idx+1:]
	}

	// Everything left of the decimal comma is digit groups; drop separators.
	intPart = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, intPart)
	fracPart = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, fracPart)

	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("no digits in %q", raw)
	}
	if intPart == "" {
		intPart = "0"
	}

	numeric := intPart
	if fracPart != "" {
		numeric = intPart + "." + fracPart
	}

	value, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q as number: %w", raw, err)
	}
	if negative {
		value = -value
	}
	return value, nil
}

// vietDateLayouts are tried in order. Day-first formats come first because
// Vietnamese publishers write dd/mm/yyyy.
var vietDateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseVietDate parses a date in the publishers' common formats, trying
// dd/mm/yyyy, dd-mm-yyyy and yyyy-mm-dd with optional time components.
func ParseVietDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, layout := range vietDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", raw)
}

// ParseVietDateOr parses a date, returning fallback when no format matches.
// Required dates fall back to today at the call sites.
func ParseVietDateOr(raw string, fallback time.Time) time.Time {
	if t, err := ParseVietDate(raw); err == nil {
		return t
	}
	return fallback
}

// DateOnly truncates a time to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
