package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// labelMap translates the model's label taxonomy to domain entity types.
var labelMap = map[string]models.EntityType{
	"PERSON":      models.EntityTypePerson,
	"ORG":         models.EntityTypeOrg,
	"NORP":        models.EntityTypeOrg,
	"LAW":         models.EntityTypeOrg,
	"GPE":         models.EntityTypeLocation,
	"LOC":         models.EntityTypeLocation,
	"FAC":         models.EntityTypeLocation,
	"PRODUCT":     models.EntityTypeProduct,
	"WORK_OF_ART": models.EntityTypeProduct,
	"DATE":        models.EntityTypeDate,
	"TIME":        models.EntityTypeDate,
	"EVENT":       models.EntityTypeDate,
	"MONEY":       models.EntityTypeMoney,
	"PERCENT":     models.EntityTypeMoney,
}

// roleRule pairs a title pattern with its canonical role. Ordered by
// seniority; the first match near a person mention wins. A "%s" in the
// role is filled with the captured specialization ("VP of Engineering").
type roleRule struct {
	pattern *regexp.Regexp
	role    string
}

var roleRules = []roleRule{
	{regexp.MustCompile(`(?i)\b(chief executive officer|ceo)\b`), "CEO"},
	{regexp.MustCompile(`(?i)\b(chief technology officer|cto)\b`), "CTO"},
	{regexp.MustCompile(`(?i)\b(chief financial officer|cfo)\b`), "CFO"},
	{regexp.MustCompile(`(?i)\b(chief operating officer|coo)\b`), "COO"},
	{regexp.MustCompile(`(?i)\b(co-?founder|founder)\b`), "Founder"},
	{regexp.MustCompile(`(?i)\bpresident\b`), "President"},
	{regexp.MustCompile(`(?i)\b(?:vp|vice president) of ([a-z]+)\b`), "VP of %s"},
	{regexp.MustCompile(`(?i)\bdirector of ([a-z]+)\b`), "Director of %s"},
	{regexp.MustCompile(`(?i)\bhead of ([a-z]+)\b`), "Head of %s"},
	{regexp.MustCompile(`(?i)\b(principal|staff|senior|lead)? ?(software )?engineer\b`), "Engineer"},
	{regexp.MustCompile(`(?i)\bmanager\b`), "Manager"},
}

// relationshipKeywords tag org mentions with how they relate to the
// company being researched.
var relationshipKeywords = map[string][]string{
	"partner":    {"partner", "partnership", "partnered with", "in collaboration with", "alliance"},
	"client":     {"client", "customer", "serves", "working with"},
	"investor":   {"investor", "invested", "funding from", "backed by", "led by", "series"},
	"competitor": {"competitor", "competes with", "rival", "alternative to"},
	"acquired":   {"acquired", "acquisition of", "purchased", "merged with"},
}

// NamedEntityExtractor wraps the external NER model: maps labels to the
// domain taxonomy, scores confidence, attaches context windows, and tags
// person roles and org relationships.
type NamedEntityExtractor struct {
	model         interfaces.NERModel
	minConfidence float64
	contextWindow int
}

// NewNamedEntityExtractor creates a NER-backed extractor.
func NewNamedEntityExtractor(model interfaces.NERModel, minConfidence float64, windowSize int) *NamedEntityExtractor {
	if minConfidence <= 0 {
		minConfidence = 0.5
	}
	if windowSize <= 0 {
		windowSize = 100
	}
	return &NamedEntityExtractor{
		model:         model,
		minConfidence: minConfidence,
		contextWindow: windowSize,
	}
}

// Extract runs the model over one document and post-processes its spans.
// Spans mapping to no domain type and spans scoring under the confidence
// floor are dropped.
func (n *NamedEntityExtractor) Extract(ctx context.Context, text string) ([]Extracted, error) {
	spans, err := n.model.Process(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ner model: %w", err)
	}
	return n.postProcess(text, spans), nil
}

// ExtractBatch processes several documents in one model call.
func (n *NamedEntityExtractor) ExtractBatch(ctx context.Context, texts []string) ([][]Extracted, error) {
	spanSets, err := n.model.ProcessBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ner model batch: %w", err)
	}
	out := make([][]Extracted, len(spanSets))
	for i, spans := range spanSets {
		out[i] = n.postProcess(texts[i], spans)
	}
	return out, nil
}

func (n *NamedEntityExtractor) postProcess(text string, spans []interfaces.NERSpan) []Extracted {
	var out []Extracted
	for _, span := range spans {
		entityType, ok := labelMap[strings.ToUpper(span.Label)]
		if !ok {
			continue
		}

		value := strings.TrimSpace(span.Text)
		confidence := ScoreSpan(value)
		if confidence < n.minConfidence {
			continue
		}

		window := contextWindow(text, span.Start, span.End, n.contextWindow)
		extra := map[string]interface{}{}
		switch entityType {
		case models.EntityTypePerson:
			if role := detectRole(window); role != "" {
				extra["role"] = role
			}
		case models.EntityTypeOrg:
			if rels := detectRelationships(window); len(rels) > 0 {
				extra["relationships"] = rels
			}
		}
		if len(extra) == 0 {
			extra = nil
		}

		out = append(out, Extracted{
			Type:            entityType,
			Value:           value,
			NormalizedValue: strings.ToLower(value),
			Confidence:      confidence,
			Context:         window,
			Extra:           extra,
		})
	}
	return dedupeByNormalized(out)
}

// ScoreSpan computes span confidence: base 0.70, -0.30 if shorter than
// two chars, +0.10 if the first rune is uppercase, +0.05 per word beyond
// the first capped at +0.15, -0.10 for all-caps strings longer than
// three chars. Clamped to [0,1].
func ScoreSpan(value string) float64 {
	confidence := 0.70

	if len(value) < 2 {
		confidence -= 0.30
	}
	runes := []rune(value)
	if len(runes) > 0 && unicode.IsUpper(runes[0]) {
		confidence += 0.10
	}
	words := len(strings.Fields(value))
	if words > 1 {
		bonus := 0.05 * float64(words-1)
		if bonus > 0.15 {
			bonus = 0.15
		}
		confidence += bonus
	}
	if len(value) > 3 && value == strings.ToUpper(value) && strings.ToUpper(value) != strings.ToLower(value) {
		confidence -= 0.10
	}

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// detectRole returns the first (highest-seniority) role title found in
// the context window, expanding specialized titles from the capture.
func detectRole(window string) string {
	for _, rule := range roleRules {
		m := rule.pattern.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		if strings.Contains(rule.role, "%s") && len(m) > 1 {
			return fmt.Sprintf(rule.role, titleWords(strings.TrimSpace(m[len(m)-1])))
		}
		return rule.role
	}
	return ""
}

// titleWords uppercases the first letter of each word.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// detectRelationships collects every relationship whose keywords appear
// in the context window.
func detectRelationships(window string) []string {
	lower := strings.ToLower(window)
	var rels []string
	for rel, keywords := range relationshipKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				rels = append(rels, rel)
				break
			}
		}
	}
	return rels
}
