package extraction

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// fakeNERModel returns preconfigured spans.
type fakeNERModel struct {
	spans []interfaces.NERSpan
	err   error
}

func (f *fakeNERModel) Process(ctx context.Context, text string) ([]interfaces.NERSpan, error) {
	return f.spans, f.err
}

func (f *fakeNERModel) ProcessBatch(ctx context.Context, texts []string) ([][]interfaces.NERSpan, error) {
	out := make([][]interfaces.NERSpan, len(texts))
	for i := range texts {
		out[i] = f.spans
	}
	return out, f.err
}

func spanFor(text, value, label string) interfaces.NERSpan {
	start := strings.Index(text, value)
	return interfaces.NERSpan{Text: value, Label: label, Start: start, End: start + len(value)}
}

func TestScoreSpan(t *testing.T) {
	tests := []struct {
		value    string
		expected float64
	}{
		// base + uppercase + one extra word
		{"John Smith", 0.70 + 0.10 + 0.05},
		// base + uppercase + three extra words capped at +0.15
		{"John Ronald Reuel Tolkien", 0.70 + 0.10 + 0.15},
		// single char: base - 0.30 (no uppercase bonus for 'x')
		{"x", 0.70 - 0.30},
		// ALL-CAPS over three chars: base + uppercase - 0.10
		{"ACMECORP", 0.70 + 0.10 - 0.10},
		// lowercase single word: base only
		{"acme", 0.70},
		// short all-caps is not penalized
		{"IBM", 0.70 + 0.10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.expected, ScoreSpan(tt.value), 0.0001, tt.value)
	}
}

func TestExtract_LabelMapping(t *testing.T) {
	text := "John Smith leads Acme Corp from Boston selling WidgetPro since 2019 for $5M."
	model := &fakeNERModel{spans: []interfaces.NERSpan{
		spanFor(text, "John Smith", "PERSON"),
		spanFor(text, "Acme Corp", "ORG"),
		spanFor(text, "Boston", "GPE"),
		spanFor(text, "WidgetPro", "PRODUCT"),
		spanFor(text, "2019", "DATE"),
		spanFor(text, "$5M", "MONEY"),
		spanFor(text, "something", "CARDINAL"), // unmapped label dropped
	}}

	extractor := NewNamedEntityExtractor(model, 0.5, 100)
	items, err := extractor.Extract(context.Background(), text)
	require.NoError(t, err)

	types := map[models.EntityType]bool{}
	for _, item := range items {
		types[item.Type] = true
	}
	assert.True(t, types[models.EntityTypePerson])
	assert.True(t, types[models.EntityTypeOrg])
	assert.True(t, types[models.EntityTypeLocation])
	assert.True(t, types[models.EntityTypeProduct])
	assert.True(t, types[models.EntityTypeDate])
	assert.True(t, types[models.EntityTypeMoney])
	assert.Len(t, items, 6)
}

func TestExtract_ConfidenceFloor(t *testing.T) {
	text := "x is mentioned"
	model := &fakeNERModel{spans: []interfaces.NERSpan{
		spanFor(text, "x", "PERSON"),
	}}

	// ScoreSpan("x") = 0.40, below the default 0.5 floor
	extractor := NewNamedEntityExtractor(model, 0.5, 100)
	items, err := extractor.Extract(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestExtract_PersonRoleDetection(t *testing.T) {
	text := "Jane Doe, Chief Executive Officer of Acme, spoke at the event."
	model := &fakeNERModel{spans: []interfaces.NERSpan{
		spanFor(text, "Jane Doe", "PERSON"),
	}}

	extractor := NewNamedEntityExtractor(model, 0.5, 100)
	items, err := extractor.Extract(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "CEO", items[0].Extra["role"])
}

func TestExtract_OrgRelationshipTagging(t *testing.T) {
	text := "The round was led by Sequoia Capital, a longtime investor in the company."
	model := &fakeNERModel{spans: []interfaces.NERSpan{
		spanFor(text, "Sequoia Capital", "ORG"),
	}}

	extractor := NewNamedEntityExtractor(model, 0.5, 100)
	items, err := extractor.Extract(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, items, 1)

	rels, ok := items[0].Extra["relationships"].([]string)
	require.True(t, ok)
	assert.Contains(t, rels, "investor")
}

func TestDetectRole_PriorityOrder(t *testing.T) {
	// CEO outranks Engineer when both titles appear in the window
	role := detectRole("Jane Doe, CEO and former engineer at BigCo")
	assert.Equal(t, "CEO", role)

	assert.Equal(t, "Founder", detectRole("co-founder of Acme"))
	assert.Equal(t, "", detectRole("just some text"))
}

func TestDetectRole_CarriesSpecialization(t *testing.T) {
	assert.Equal(t, "VP of Engineering", detectRole("VP of Engineering"))
	assert.Equal(t, "VP of Sales", detectRole("promoted to vice president of sales last year"))
	assert.Equal(t, "Director of Marketing", detectRole("the director of marketing said"))
	assert.Equal(t, "Head of Product", detectRole("head of product"))
}
