package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_MarkdownFences(t *testing.T) {
	response := "Here is the result:\n```json\n{\"is_market_relevant\": true}\n```\nLet me know if you need more."
	assert.Equal(t, `{"is_market_relevant": true}`, ExtractJSON(response))
}

func TestExtractJSON_PlainFences(t *testing.T) {
	response := "```\n{\"score\": 75}\n```"
	assert.Equal(t, `{"score": 75}`, ExtractJSON(response))
}

func TestExtractJSON_ProseAroundObject(t *testing.T) {
	response := `Sure! The classification is {"category": "monetary_policy", "region": "vn"} as requested.`
	assert.Equal(t, `{"category": "monetary_policy", "region": "vn"}`, ExtractJSON(response))
}

func TestExtractJSON_TrailingCommas(t *testing.T) {
	response := `{"chain": ["a", "b",], "confidence": "likely",}`
	extracted := ExtractJSON(response)
	assert.True(t, IsValidJSON(extracted), "trailing commas should be repaired: %s", extracted)
}

func TestExtractJSON_Array(t *testing.T) {
	response := "```json\n[{\"id\": 1}, {\"id\": 2}]\n```"
	assert.Equal(t, `[{"id": 1}, {"id": 2}]`, ExtractJSON(response))
}

func TestIsValidJSON(t *testing.T) {
	assert.True(t, IsValidJSON(`{"ok": true}`))
	assert.True(t, IsValidJSON("```json\n{\"ok\": true}\n```"))
	assert.False(t, IsValidJSON("I cannot answer that"))
	assert.False(t, IsValidJSON(""))
	assert.False(t, IsValidJSON(`{"unterminated": `))
}

func TestParseJSON(t *testing.T) {
	var out struct {
		BaseScore float64 `json:"base_score"`
		Factors   struct {
			Magnitude float64 `json:"magnitude"`
		} `json:"score_factors"`
	}
	response := "```json\n{\"base_score\": 72.5, \"score_factors\": {\"magnitude\": 0.8}}\n```"
	require.NoError(t, ParseJSON(response, &out))
	assert.Equal(t, 72.5, out.BaseScore)
	assert.Equal(t, 0.8, out.Factors.Magnitude)
}
