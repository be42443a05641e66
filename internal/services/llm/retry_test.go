package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/cirahq/cira/internal/interfaces"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.True(t, IsRateLimitError(errors.New("Error 429, Message: too many requests")))
	assert.True(t, IsRateLimitError(errors.New("Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for model")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: rate limited. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	assert.InDelta(t, 45.387, ExtractRetryDelay(err).Seconds(), 0.001)

	assert.Equal(t, 30*time.Second, ExtractRetryDelay(errors.New("retryDelay: 30s")))
	assert.Zero(t, ExtractRetryDelay(errors.New("no delay here")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	// No API delay: initial backoff, multiplied per attempt, capped
	assert.Equal(t, 45*time.Second, cfg.CalculateBackoff(0, 0))
	assert.Equal(t, time.Duration(float64(45*time.Second)*1.5), cfg.CalculateBackoff(1, 0))
	assert.Equal(t, cfg.MaxBackoff, cfg.CalculateBackoff(5, 0))

	// API delay overrides the base, plus a small buffer
	assert.Equal(t, 35*time.Second, cfg.CalculateBackoff(0, 30*time.Second))
}

func TestConvertMessagesToClaude(t *testing.T) {
	msgs, system, err := convertMessagesToClaude([]interfaces.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "continue"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be terse", system)
	assert.Len(t, msgs, 3)

	_, _, err = convertMessagesToClaude(nil)
	assert.Error(t, err)

	_, _, err = convertMessagesToClaude([]interfaces.Message{{Role: "system", Content: "only system"}})
	assert.Error(t, err)
}

func TestConvertMessagesToGemini(t *testing.T) {
	contents, system, err := convertMessagesToGemini([]interfaces.Message{
		{Role: "system", Content: "be terse"},
		{Role: "system", Content: "ignored second system"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be terse", system)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
}
