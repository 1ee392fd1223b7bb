package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// ExtractJSON pulls the JSON payload out of a model response. Models wrap
// JSON in markdown fences or surround it with prose; this strips both and
// removes trailing commas, the most common malformation.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)

	// Strip markdown code fences
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Trim prose around the outermost JSON value
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	s = s[start : end+1]

	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// IsValidJSON reports whether the response contains a parseable JSON payload
// after extraction.
func IsValidJSON(response string) bool {
	extracted := ExtractJSON(response)
	if extracted == "" {
		return false
	}
	return json.Valid([]byte(extracted))
}

// ParseJSON extracts and unmarshals the JSON payload of a model response.
func ParseJSON(response string, v interface{}) error {
	return json.Unmarshal([]byte(ExtractJSON(response)), v)
}
