package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/models"
)

func entity(t models.EntityType, value string, conf float64, sourceURL string) *models.Entity {
	return &models.Entity{
		Type:       t,
		Value:      value,
		Confidence: conf,
		SourceURL:  sourceURL,
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("acme", "acme"), 0.0001)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 0.0001)
	// LCS("acme corp", "acme corporation") = 9, 2*9/(9+16)
	assert.InDelta(t, 0.72, Similarity("acme corp", "acme corporation"), 0.0001)
	assert.InDelta(t, 1.0, Similarity("", ""), 0.0001)
}

func TestDeduplicate_PersonInitialRule(t *testing.T) {
	d := NewDeduplicator(0.85)

	merged := d.Deduplicate([]*models.Entity{
		entity(models.EntityTypePerson, "John Smith", 0.9, "https://a.example"),
		entity(models.EntityTypePerson, "J. Smith", 0.8, "https://b.example"),
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "John Smith", merged[0].Value)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, merged[0].SourceURLs)
	assert.GreaterOrEqual(t, merged[0].Confidence, 0.9)
	assert.Equal(t, 2, merged[0].MentionCount)
}

func TestDeduplicate_PersonDifferentLastNames(t *testing.T) {
	d := NewDeduplicator(0.85)

	merged := d.Deduplicate([]*models.Entity{
		entity(models.EntityTypePerson, "John Smith", 0.9, ""),
		entity(models.EntityTypePerson, "John Doe", 0.9, ""),
	})
	assert.Len(t, merged, 2)
}

func TestDeduplicate_SingleTokenPersonsNeverFuzzyMatch(t *testing.T) {
	d := NewDeduplicator(0.85)

	merged := d.Deduplicate([]*models.Entity{
		entity(models.EntityTypePerson, "Smith", 0.9, ""),
		entity(models.EntityTypePerson, "J. Smith", 0.8, ""),
	})
	assert.Len(t, merged, 2)
}

func TestDeduplicate_OrgLegalSuffixes(t *testing.T) {
	d := NewDeduplicator(0.85)

	merged := d.Deduplicate([]*models.Entity{
		entity(models.EntityTypeOrg, "Acme Corp", 0.8, ""),
		entity(models.EntityTypeOrg, "Acme Corporation", 0.7, ""),
		entity(models.EntityTypeOrg, "Acme, Inc.", 0.6, ""),
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "Acme Corporation", merged[0].Value)
	assert.Equal(t, 3, merged[0].MentionCount)
}

func TestDeduplicate_EmailExactOnly(t *testing.T) {
	d := NewDeduplicator(0.85)

	a := entity(models.EntityTypeEmail, "info@acme.io", 0.9, "")
	a.NormalizedValue = "info@acme.io"
	b := entity(models.EntityTypeEmail, "INFO@ACME.IO", 0.8, "")
	b.NormalizedValue = "info@acme.io"
	c := entity(models.EntityTypeEmail, "sales@acme.io", 0.9, "")
	c.NormalizedValue = "sales@acme.io"

	merged := d.Deduplicate([]*models.Entity{a, b, c})
	assert.Len(t, merged, 2)
}

func TestDeduplicate_FuzzyFallbackForOtherTypes(t *testing.T) {
	d := NewDeduplicator(0.85)

	merged := d.Deduplicate([]*models.Entity{
		entity(models.EntityTypeProduct, "WidgetPro Platform", 0.8, ""),
		entity(models.EntityTypeProduct, "WidgetPro Platform!", 0.7, ""),
		entity(models.EntityTypeProduct, "Completely Different", 0.7, ""),
	})
	assert.Len(t, merged, 2)
}

func TestMergeGroup_Policy(t *testing.T) {
	a := entity(models.EntityTypePerson, "J. Smith", 0.95, "https://a.example")
	a.Extra = map[string]interface{}{"role": "CEO"}
	a.Context = "J. Smith, CEO"
	b := entity(models.EntityTypePerson, "John Smith", 0.7, "https://b.example")
	b.Extra = map[string]interface{}{"role": "Founder"}
	b.Context = "founded by John Smith"

	merged := mergeGroup([]*models.Entity{a, b})

	// Longest value is canonical even when shorter had higher confidence
	assert.Equal(t, "John Smith", merged.Value)
	// max(0.95, 0.7) + 0.02*2
	assert.InDelta(t, 0.99, merged.Confidence, 0.0001)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, merged.SourceURLs)
	assert.Len(t, merged.Contexts, 2)
	assert.ElementsMatch(t, []string{"CEO", "Founder"}, merged.Extra["roles"])
}

func TestMergeGroup_ConfidenceClamped(t *testing.T) {
	var group []*models.Entity
	for i := 0; i < 20; i++ {
		group = append(group, entity(models.EntityTypeOrg, "Acme", 0.95, ""))
	}
	merged := mergeGroup(group)
	assert.Equal(t, 1.0, merged.Confidence)
}
