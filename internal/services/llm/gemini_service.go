package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

// GeminiService implements interfaces.LLMService using Google Gemini.
// Rate-limited calls are retried with the provider-suggested delay.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
	retry   *RetryConfig
}

// convertMessagesToGemini converts conversation messages to Gemini's
// content format, extracting the first system message separately.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		case "assistant":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}
	return contents, systemText, nil
}

// NewGeminiService creates a Gemini-backed LLM service.
func NewGeminiService(config *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set GEMINI_API_KEY or gemini.api_key in config)")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 120 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized")

	return &GeminiService{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
		retry:   NewDefaultRetryConfig(),
	}, nil
}

// Complete generates a completion for the conversation, retrying through
// rate-limit responses with the provider-suggested delay.
func (s *GeminiService) Complete(ctx context.Context, messages []interfaces.Message) (*interfaces.CompletionResult, error) {
	contents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, err
	}

	genConfig := &genai.GenerateContentConfig{}
	if systemText != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}
	if s.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(s.config.MaxTokens)
	}
	if s.config.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(s.config.Temperature)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retry.CalculateBackoff(attempt-1, ExtractRetryDelay(lastErr))
			s.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Gemini rate limited, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, genConfig)
		cancel()
		if err != nil {
			if IsRateLimitError(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("Gemini API call failed: %w", err)
		}

		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("Gemini returned an empty response")
		}

		result := &interfaces.CompletionResult{Text: text}
		if resp.UsageMetadata != nil {
			result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		return result, nil
	}
	return nil, fmt.Errorf("Gemini rate limit retries exhausted: %w", lastErr)
}

// HealthCheck probes the API with a minimal request.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := s.Complete(probeCtx, []interfaces.Message{{Role: "user", Content: "ping"}})
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return fmt.Errorf("Gemini health check returned empty response")
	}
	return nil
}

// Close releases the client. The genai client needs no explicit cleanup.
func (s *GeminiService) Close() error {
	s.client = nil
	return nil
}
