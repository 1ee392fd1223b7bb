package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
)

// ClaudeService implements the LLMService interface using the Anthropic
// Claude API.
type ClaudeService struct {
	config    *common.ClaudeConfig
	logger    arbor.ILogger
	client    anthropic.Client
	recorder  interfaces.CallRecorder
	timeout   time.Duration
	maxTokens int
}

var _ interfaces.LLMService = (*ClaudeService)(nil)

// NewClaudeService creates a new Claude LLM service instance.
func NewClaudeService(config *common.ClaudeConfig, recorder interfaces.CallRecorder, logger arbor.ILogger) (*ClaudeService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude service (set via ANTHROPIC_API_KEY, MEKONG_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "claude-haiku-3-5-20241022"
	}

	timeout := common.MustDuration(config.Timeout, 120*time.Second)

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(config.APIKey),
	)

	service := &ClaudeService{
		config:    config,
		logger:    logger,
		client:    client,
		recorder:  recorder,
		timeout:   timeout,
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude LLM service initialized")

	return service, nil
}

// Provider returns the provider identifier.
func (s *ClaudeService) Provider() string {
	return "claude"
}

// Generate runs a single-prompt completion.
func (s *ClaudeService) Generate(ctx context.Context, call interfaces.CallContext, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	messages := make([]models.LLMMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, models.LLMMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, models.LLMMessage{Role: "user", Content: req.Prompt})
	return s.Chat(ctx, call, messages, req)
}

// Chat generates a completion for a full conversation history.
func (s *ClaudeService) Chat(ctx context.Context, call interfaces.CallContext, messages []models.LLMMessage, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return nil, err
	}
	if req.System != "" {
		systemText = req.System
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}

	temp := req.Temperature
	if temp <= 0 {
		temp = s.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := s.client.Messages.New(timeoutCtx, params)
	latency := time.Since(startTime)

	rec := &models.LLMCallRecord{
		RunID:     call.RunID,
		TaskType:  call.TaskType,
		Provider:  s.Provider(),
		Model:     s.config.Model,
		Messages:  messages,
		LatencyMS: latency.Milliseconds(),
	}

	if err != nil {
		rec.Error = err.Error()
		s.recorder.Record(rec)
		s.logger.Error().Err(err).
			Str("task_type", call.TaskType).
			Dur("duration", latency).
			Msg("Claude API call failed")
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	content := text.String()

	rec.Response = content
	rec.Success = content != ""
	rec.IsValidJSON = IsValidJSON(content)
	rec.InputTokens = int(resp.Usage.InputTokens)
	rec.OutputTokens = int(resp.Usage.OutputTokens)
	s.recorder.Record(rec)

	if content == "" {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	s.logger.Debug().
		Str("task_type", call.TaskType).
		Int("response_length", len(content)).
		Dur("duration", latency).
		Msg("Claude completion finished")

	return &interfaces.GenerateResponse{
		Content:      content,
		Model:        s.config.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		StopReason:   string(resp.StopReason),
		LatencyMS:    latency.Milliseconds(),
	}, nil
}

// Close releases resources.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude LLM service")
	return nil
}

// convertMessagesToClaude converts []models.LLMMessage to Claude MessageParam
// format. System messages are extracted separately for the System parameter.
func convertMessagesToClaude(messages []models.LLMMessage) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}
