package models

import "time"

// LLMMessage is one turn in a conversation sent to the model.
type LLMMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// LLMCallRecord is one row per LLM invocation, append-only. The full message
// array is retained for replay and prompt debugging.
type LLMCallRecord struct {
	ID           int64        `json:"id"`
	RunID        string       `json:"run_id,omitempty"`
	TaskType     string       `json:"task_type"`
	Provider     string       `json:"provider"`
	Model        string       `json:"model"`
	Messages     []LLMMessage `json:"messages"`
	Response     string       `json:"response"`
	InputTokens  int          `json:"input_tokens"`
	OutputTokens int          `json:"output_tokens"`
	LatencyMS    int64        `json:"latency_ms"`
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	IsValidJSON  bool         `json:"is_valid_json"`
	CreatedAt    time.Time    `json:"created_at"`
}
