package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
)

// NewService creates the configured LLM provider. The recorder receives one
// record per call regardless of provider.
func NewService(config *common.Config, recorder interfaces.CallRecorder, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch config.LLM.Provider {
	case string(common.LLMProviderClaude):
		return NewClaudeService(&config.Claude, recorder, logger)
	case string(common.LLMProviderGemini):
		return NewGeminiService(&config.Gemini, recorder, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected claude or gemini)", config.LLM.Provider)
	}
}
