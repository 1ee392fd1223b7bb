package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/interfaces"
	"github.com/ternarybob/mekong/internal/models"
	"google.golang.org/genai"
)

// GeminiService implements the LLMService interface using the Google Gemini
// API.
type GeminiService struct {
	config   *common.GeminiConfig
	logger   arbor.ILogger
	client   *genai.Client
	recorder interfaces.CallRecorder
	timeout  time.Duration
}

var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a new Gemini LLM service instance.
func NewGeminiService(config *common.GeminiConfig, recorder interfaces.CallRecorder, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for Gemini service (set via GEMINI_API_KEY, MEKONG_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	timeout := common.MustDuration(config.Timeout, 120*time.Second)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	service := &GeminiService{
		config:   config,
		logger:   logger,
		client:   client,
		recorder: recorder,
		timeout:  timeout,
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return service, nil
}

// Provider returns the provider identifier.
func (s *GeminiService) Provider() string {
	return "gemini"
}

// Generate runs a single-prompt completion.
func (s *GeminiService) Generate(ctx context.Context, call interfaces.CallContext, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	messages := make([]models.LLMMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, models.LLMMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, models.LLMMessage{Role: "user", Content: req.Prompt})
	return s.Chat(ctx, call, messages, req)
}

// Chat generates a completion for a full conversation history.
func (s *GeminiService) Chat(ctx context.Context, call interfaces.CallContext, messages []models.LLMMessage, req interfaces.GenerateRequest) (*interfaces.GenerateResponse, error) {
	contents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, err
	}
	if req.System != "" {
		systemText = req.System
	}

	temp := req.Temperature
	if temp <= 0 {
		temp = s.config.Temperature
	}

	config := &genai.GenerateContentConfig{}
	if temp > 0 {
		config.Temperature = genai.Ptr(temp)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
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
			Msg("Gemini API call failed")
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	var content string
	if resp != nil && len(resp.Candidates) > 0 {
		content = resp.Text()
	}

	rec.Response = content
	rec.Success = content != ""
	rec.IsValidJSON = IsValidJSON(content)
	if resp != nil && resp.UsageMetadata != nil {
		rec.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		rec.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	s.recorder.Record(rec)

	if content == "" {
		return nil, fmt.Errorf("empty response from Gemini API")
	}

	stopReason := ""
	if len(resp.Candidates) > 0 {
		stopReason = string(resp.Candidates[0].FinishReason)
	}

	s.logger.Debug().
		Str("task_type", call.TaskType).
		Int("response_length", len(content)).
		Dur("duration", latency).
		Msg("Gemini completion finished")

	return &interfaces.GenerateResponse{
		Content:      content,
		Model:        s.config.Model,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		StopReason:   stopReason,
		LatencyMS:    latency.Milliseconds(),
	}, nil
}

// Close releases resources.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini LLM service")
	s.client = nil
	return nil
}

// convertMessagesToGemini converts []models.LLMMessage to Gemini Content
// format. System messages are extracted separately for SystemInstruction.
func convertMessagesToGemini(messages []models.LLMMessage) ([]*genai.Content, string, error) {
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

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	return contents, systemText, nil
}
