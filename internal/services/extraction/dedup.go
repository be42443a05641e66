package extraction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cirahq/cira/internal/models"
)

// legalSuffixes are stripped when normalizing org names for grouping.
var legalSuffixes = map[string]bool{
	"inc":         true,
	"llc":         true,
	"ltd":         true,
	"corp":        true,
	"corporation": true,
	"company":     true,
	"co":          true,
	"limited":     true,
}

var nonWordChars = regexp.MustCompile(`[^a-z0-9 ]`)

// Deduplicator groups same-type entities that refer to one real-world
// thing and merges each group into a single row.
type Deduplicator struct {
	similarityCutoff float64
}

// NewDeduplicator creates a deduplicator with the given fuzzy-match
// threshold.
func NewDeduplicator(similarityCutoff float64) *Deduplicator {
	if similarityCutoff <= 0 {
		similarityCutoff = 0.85
	}
	return &Deduplicator{similarityCutoff: similarityCutoff}
}

// Deduplicate merges duplicate entities, returning one row per group.
// Input rows are not mutated.
func (d *Deduplicator) Deduplicate(entities []*models.Entity) []*models.Entity {
	byType := make(map[models.EntityType][]*models.Entity)
	var typeOrder []models.EntityType
	for _, e := range entities {
		if _, ok := byType[e.Type]; !ok {
			typeOrder = append(typeOrder, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	var out []*models.Entity
	for _, t := range typeOrder {
		for _, group := range d.groupByType(t, byType[t]) {
			out = append(out, mergeGroup(group))
		}
	}
	return out
}

// groupByType applies the per-type matching policy greedily: each entity
// joins the first existing group whose canonical it matches.
func (d *Deduplicator) groupByType(t models.EntityType, entities []*models.Entity) [][]*models.Entity {
	var groups [][]*models.Entity

	for _, e := range entities {
		placed := false
		for i, group := range groups {
			if d.matches(t, group[0], e) {
				groups[i] = append(groups[i], e)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []*models.Entity{e})
		}
	}
	return groups
}

func (d *Deduplicator) matches(t models.EntityType, canonical, candidate *models.Entity) bool {
	switch t {
	case models.EntityTypeEmail, models.EntityTypePhone:
		return normalizedKey(canonical) == normalizedKey(candidate)
	case models.EntityTypePerson:
		return personsMatch(canonical.Value, candidate.Value)
	case models.EntityTypeOrg:
		return d.orgsMatch(canonical.Value, candidate.Value)
	default:
		a := strings.ToLower(canonical.Value)
		b := strings.ToLower(candidate.Value)
		return a == b || Similarity(a, b) >= d.similarityCutoff
	}
}

func normalizedKey(e *models.Entity) string {
	if e.NormalizedValue != "" {
		return e.NormalizedValue
	}
	return strings.ToLower(e.Value)
}

// personsMatch implements the person policy: exact case-folded equality,
// or both names have at least two tokens, identical last tokens, and
// first tokens that agree up to a single-letter initial ("J." vs "John").
func personsMatch(a, b string) bool {
	an := strings.ToLower(strings.TrimSpace(a))
	bn := strings.ToLower(strings.TrimSpace(b))
	if an == bn {
		return true
	}

	at := strings.Fields(an)
	bt := strings.Fields(bn)
	if len(at) < 2 || len(bt) < 2 {
		return false
	}
	if at[len(at)-1] != bt[len(bt)-1] {
		return false
	}
	return initialsAgree(at[0], bt[0])
}

// initialsAgree reports whether two first tokens are equal or one is the
// initial of the other ("j" or "j." against "john").
func initialsAgree(a, b string) bool {
	a = strings.TrimSuffix(a, ".")
	b = strings.TrimSuffix(b, ".")
	if a == b {
		return true
	}
	if len(a) == 1 {
		return strings.HasPrefix(b, a)
	}
	if len(b) == 1 {
		return strings.HasPrefix(a, b)
	}
	return false
}

// orgsMatch normalizes away legal suffixes and punctuation, then accepts
// equality, containment, or similarity at the cutoff.
func (d *Deduplicator) orgsMatch(a, b string) bool {
	an := normalizeOrg(a)
	bn := normalizeOrg(b)
	if an == "" || bn == "" {
		return an == bn
	}
	if an == bn {
		return true
	}
	if strings.Contains(an, bn) || strings.Contains(bn, an) {
		return true
	}
	return Similarity(an, bn) >= d.similarityCutoff
}

func normalizeOrg(name string) string {
	lower := nonWordChars.ReplaceAllString(strings.ToLower(name), "")
	tokens := strings.Fields(lower)
	for len(tokens) > 0 && legalSuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Similarity is the ratio 2·LCS(a,b) / (len(a)+len(b)), where LCS is the
// longest common subsequence length.
func Similarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1
	}
	return 2 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
}

func lcsLength(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// mergeGroup collapses one duplicate group: canonical value is the
// longest member value; confidence is the group max plus a size bonus of
// min(0.2, 0.02·|group|), clamped to 1; sources and contexts are deduped
// sets; extra data merges with roles and relationships collected as sets.
func mergeGroup(group []*models.Entity) *models.Entity {
	canonical := group[0]
	for _, e := range group[1:] {
		if len(e.Value) > len(canonical.Value) {
			canonical = e
		}
	}

	merged := &models.Entity{
		ID:              canonical.ID,
		CompanyID:       canonical.CompanyID,
		Type:            canonical.Type,
		Value:           canonical.Value,
		NormalizedValue: canonical.NormalizedValue,
		SourceURL:       canonical.SourceURL,
		Context:         canonical.Context,
		CreatedAt:       canonical.CreatedAt,
		MentionCount:    len(group),
	}

	maxConf := 0.0
	sources := make(map[string]bool)
	contexts := make(map[string]bool)
	roles := make(map[string]bool)
	relationships := make(map[string]bool)
	extra := make(map[string]interface{})

	for _, e := range group {
		if e.Confidence > maxConf {
			maxConf = e.Confidence
		}
		if e.SourceURL != "" {
			sources[e.SourceURL] = true
		}
		for _, s := range e.SourceURLs {
			sources[s] = true
		}
		if e.Context != "" {
			contexts[e.Context] = true
		}
		for _, c := range e.Contexts {
			contexts[c] = true
		}
		if role := e.ExtraString("role"); role != "" {
			roles[role] = true
		}
		for _, rel := range e.ExtraStrings("relationships") {
			relationships[rel] = true
		}
		for k, v := range e.Extra {
			if k == "role" || k == "relationships" {
				continue
			}
			if _, ok := extra[k]; !ok {
				extra[k] = v
			}
		}
	}

	bonus := 0.02 * float64(len(group))
	if bonus > 0.2 {
		bonus = 0.2
	}
	merged.Confidence = maxConf + bonus
	if merged.Confidence > 1 {
		merged.Confidence = 1
	}

	merged.SourceURLs = sortedKeys(sources)
	merged.Contexts = sortedKeys(contexts)

	if len(roles) == 1 {
		extra["role"] = sortedKeys(roles)[0]
	} else if len(roles) > 1 {
		extra["roles"] = sortedKeys(roles)
	}
	if len(relationships) > 0 {
		extra["relationships"] = sortedKeys(relationships)
	}
	if len(extra) > 0 {
		merged.Extra = extra
	}
	return merged
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
