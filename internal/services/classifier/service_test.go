package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirahq/cira/internal/models"
)

func TestClassify_URLOnly(t *testing.T) {
	s := NewService()

	tests := []struct {
		url      string
		expected models.PageType
	}{
		{"https://example.com/about", models.PageTypeAbout},
		{"https://example.com/about-us/", models.PageTypeAbout},
		{"https://example.com/team", models.PageTypeTeam},
		{"https://example.com/leadership", models.PageTypeTeam},
		{"https://example.com/products/widget", models.PageTypeProduct},
		{"https://example.com/services", models.PageTypeService},
		{"https://example.com/contact-us", models.PageTypeContact},
		{"https://example.com/careers", models.PageTypeCareers},
		{"https://example.com/jobs", models.PageTypeCareers},
		{"https://example.com/pricing", models.PageTypePricing},
		{"https://example.com/blog/post-1", models.PageTypeBlog},
		{"https://example.com/news", models.PageTypeNews},
		{"https://example.com/press-releases", models.PageTypeNews},
	}
	for _, tt := range tests {
		result := s.Classify(tt.url, "")
		assert.Equal(t, tt.expected, result.PageType, tt.url)
		assert.Equal(t, MatchSourceURL, result.MatchSource, tt.url)
		assert.NotEmpty(t, result.MatchedPatterns, tt.url)
	}
}

func TestClassify_AgreementBoostsConfidence(t *testing.T) {
	s := NewService()

	result := s.Classify(
		"https://example.com/careers",
		"Join our team! We have many open positions across engineering.",
	)
	assert.Equal(t, models.PageTypeCareers, result.PageType)
	assert.Equal(t, MatchSourceCombined, result.MatchSource)
	// (0.95 + 0.75) / 1.5, capped at 1
	assert.InDelta(t, 1.0, result.Confidence, 0.001)
	assert.Len(t, result.MatchedPatterns, 2)
}

func TestClassify_AgreementCapsAtOne(t *testing.T) {
	// Confidence never exceeds 1 even when both signals are strong
	result := NewService().Classify(
		"https://example.com/careers",
		"Join our team! We have many open positions across engineering.",
	)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestClassify_DisagreementPenalty(t *testing.T) {
	s := NewService()

	// URL says blog, content says careers: URL is stronger (0.85 vs 0.75)
	result := s.Classify(
		"https://example.com/blog/join-us-post",
		"We're hiring! Apply now for our open roles.",
	)
	assert.Equal(t, models.PageTypeBlog, result.PageType)
	assert.Equal(t, MatchSourceURL, result.MatchSource)
	assert.InDelta(t, 0.85*0.9, result.Confidence, 0.001)
}

func TestClassify_ContentOnly(t *testing.T) {
	s := NewService()

	result := s.Classify(
		"https://example.com/p/12345",
		"Meet our team and learn about our leadership group.",
	)
	assert.Equal(t, models.PageTypeTeam, result.PageType)
	assert.Equal(t, MatchSourceContent, result.MatchSource)
	assert.InDelta(t, 0.75, result.Confidence, 0.001)
}

func TestClassify_Default(t *testing.T) {
	result := NewService().Classify("https://example.com/xyz", "nothing recognizable here")
	assert.Equal(t, models.PageTypeOther, result.PageType)
	assert.Equal(t, MatchSourceDefault, result.MatchSource)
	assert.InDelta(t, 0.30, result.Confidence, 0.001)
}
