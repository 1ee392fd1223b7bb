package interfaces

import (
	"context"

	"github.com/ternarybob/mekong/internal/models"
)

// CallContext identifies the pipeline work an LLM call belongs to. It is
// passed explicitly; there is no process-global call state.
type CallContext struct {
	TaskType string // e.g. "classify", "score", "review"
	RunID    string
}

// GenerateRequest is a single-prompt completion request.
type GenerateRequest struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float32
}

// GenerateResponse carries the model output plus accounting fields.
type GenerateResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string
	LatencyMS    int64
}

// LLMService is the uniform gateway over a remote model. Every call,
// successful or failed, is logged to the call history off the critical path.
type LLMService interface {
	Generate(ctx context.Context, call CallContext, req GenerateRequest) (*GenerateResponse, error)
	Chat(ctx context.Context, call CallContext, messages []models.LLMMessage, req GenerateRequest) (*GenerateResponse, error)
	Provider() string
	Close() error
}

// CallRecorder accepts call-history rows for asynchronous persistence.
// Record never blocks the caller; overflow drops the record with a warning.
type CallRecorder interface {
	Record(rec *models.LLMCallRecord)
	Close()
}
