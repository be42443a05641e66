package extraction

import (
	"regexp"
	"strings"

	"github.com/cirahq/cira/internal/models"
)

// Extracted is one structured-extraction hit before persistence.
type Extracted struct {
	Type            models.EntityType
	Value           string
	NormalizedValue string
	Confidence      float64
	Context         string
	Extra           map[string]interface{}
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Obfuscated form: "name [at] domain [dot] com" with (), [], {} fences
	obfuscatedEmailPattern = regexp.MustCompile(`(?i)([a-zA-Z0-9._%+\-]+)\s*[\[({]\s*at\s*[\])}]\s*([a-zA-Z0-9.\-]+(?:\s*[\[({]\s*dot\s*[\])}]\s*[a-zA-Z0-9\-]+)+)`)
	obfuscatedDotPattern   = regexp.MustCompile(`(?i)\s*[\[({]\s*dot\s*[\])}]\s*`)

	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
	digitsOnly   = regexp.MustCompile(`\D`)

	addressPattern = regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9.\-]+\s){0,3}(?:street|st|avenue|ave|boulevard|blvd|road|rd|drive|dr|lane|ln|way|court|ct|place|pl|suite|ste)\.?(?:\s*,?\s*(?:suite|ste|unit|#)\s*\w+)?(?:\s*,\s*[A-Za-z\s]+,?\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?)?`)

	socialURLPattern = regexp.MustCompile(`(?i)https?://(?:www\.)?(linkedin\.com/(?:company|in)/|twitter\.com/|x\.com/|facebook\.com/|instagram\.com/|youtube\.com/@?|github\.com/)([A-Za-z0-9._\-]+)`)
	atHandlePattern  = regexp.MustCompile(`(?:^|\s)@([A-Za-z0-9_]{2,30})\b`)
)

// rejectedEmailDomains filters example and disposable addresses.
var rejectedEmailDomains = map[string]bool{
	"example.com":     true,
	"example.org":     true,
	"email.com":       true,
	"domain.com":      true,
	"yourcompany.com": true,
	"mailinator.com":  true,
	"guerrillamail.com": true,
	"tempmail.com":    true,
	"10minutemail.com": true,
}

// techDictionary groups known technology names by category. Disabled by
// default; enabled per company via config.
var techDictionary = map[string][]string{
	"languages":  {"Go", "Golang", "Python", "JavaScript", "TypeScript", "Java", "Ruby", "Rust", "Kotlin", "Swift", "C++", "C#", "PHP", "Scala", "Elixir"},
	"frameworks": {"React", "Vue", "Angular", "Django", "Rails", "Spring", "Flask", "Next.js", "Svelte", "Laravel", "Express", "FastAPI"},
	"databases":  {"PostgreSQL", "Postgres", "MySQL", "MongoDB", "Redis", "Cassandra", "DynamoDB", "Elasticsearch", "SQLite", "BadgerDB", "ClickHouse", "Snowflake"},
	"cloud":      {"AWS", "Amazon Web Services", "GCP", "Google Cloud", "Azure", "Kubernetes", "Docker", "Terraform", "Cloudflare", "Vercel", "Heroku"},
}

// StructuredExtractor finds emails, phones, addresses, social handles,
// and (optionally) tech-stack mentions with regex rules. Within one
// document, hits are collapsed by normalized value.
type StructuredExtractor struct {
	contextWindow int
	extractTech   bool
	defaultRegion string
}

// NewStructuredExtractor creates a structured extractor.
func NewStructuredExtractor(contextWindow int, extractTech bool, defaultRegion string) *StructuredExtractor {
	if contextWindow <= 0 {
		contextWindow = 100
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &StructuredExtractor{
		contextWindow: contextWindow,
		extractTech:   extractTech,
		defaultRegion: defaultRegion,
	}
}

// Extract runs all enabled extractors over one document's text.
func (e *StructuredExtractor) Extract(text string) []Extracted {
	var out []Extracted
	out = append(out, e.extractEmails(text)...)
	out = append(out, e.extractPhones(text)...)
	out = append(out, e.extractAddresses(text)...)
	out = append(out, e.extractSocialHandles(text)...)
	if e.extractTech {
		out = append(out, e.extractTechStack(text)...)
	}
	return dedupeByNormalized(out)
}

func (e *StructuredExtractor) extractEmails(text string) []Extracted {
	var out []Extracted

	for _, loc := range emailPattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		normalized := strings.ToLower(value)
		if rejectedEmailDomains[emailDomain(normalized)] {
			continue
		}
		out = append(out, Extracted{
			Type:            models.EntityTypeEmail,
			Value:           value,
			NormalizedValue: normalized,
			Confidence:      0.95,
			Context:         e.window(text, loc[0], loc[1]),
		})
	}

	// Obfuscation repair: "jane [at] acme [dot] com" -> jane@acme.com
	for _, m := range obfuscatedEmailPattern.FindAllStringSubmatchIndex(text, -1) {
		local := text[m[2]:m[3]]
		domainPart := obfuscatedDotPattern.ReplaceAllString(text[m[4]:m[5]], ".")
		normalized := strings.ToLower(local + "@" + domainPart)
		if rejectedEmailDomains[emailDomain(normalized)] {
			continue
		}
		out = append(out, Extracted{
			Type:            models.EntityTypeEmail,
			Value:           text[m[0]:m[1]],
			NormalizedValue: normalized,
			Confidence:      0.85,
			Context:         e.window(text, m[0], m[1]),
			Extra:           map[string]interface{}{"obfuscated": true},
		})
	}
	return out
}

func (e *StructuredExtractor) extractPhones(text string) []Extracted {
	var out []Extracted
	for _, loc := range phonePattern.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		digits := digitsOnly.ReplaceAllString(value, "")

		// US default: accept 10 digits, or 11 with a leading 1
		var normalized string
		switch {
		case len(digits) == 10:
			normalized = "+1" + digits
		case len(digits) == 11 && strings.HasPrefix(digits, "1"):
			normalized = "+" + digits
		default:
			continue
		}
		out = append(out, Extracted{
			Type:            models.EntityTypePhone,
			Value:           strings.TrimSpace(value),
			NormalizedValue: normalized,
			Confidence:      0.90,
			Context:         e.window(text, loc[0], loc[1]),
		})
	}
	return out
}

func (e *StructuredExtractor) extractAddresses(text string) []Extracted {
	var out []Extracted
	for _, loc := range addressPattern.FindAllStringIndex(text, -1) {
		value := strings.TrimSpace(text[loc[0]:loc[1]])
		out = append(out, Extracted{
			Type:            models.EntityTypeAddress,
			Value:           value,
			NormalizedValue: strings.ToLower(strings.Join(strings.Fields(value), " ")),
			Confidence:      0.70,
			Context:         e.window(text, loc[0], loc[1]),
		})
	}
	return out
}

func (e *StructuredExtractor) extractSocialHandles(text string) []Extracted {
	var out []Extracted

	for _, m := range socialURLPattern.FindAllStringSubmatchIndex(text, -1) {
		prefix := strings.ToLower(text[m[2]:m[3]])
		handle := text[m[4]:m[5]]
		platform := platformForPrefix(prefix)
		if platform == "" {
			continue
		}
		out = append(out, Extracted{
			Type:            models.EntityTypeSocialHandle,
			Value:           handle,
			NormalizedValue: platform + ":" + strings.ToLower(handle),
			Confidence:      0.90,
			Context:         e.window(text, m[0], m[1]),
			Extra:           map[string]interface{}{"platform": platform},
		})
	}

	for _, m := range atHandlePattern.FindAllStringSubmatchIndex(text, -1) {
		handle := text[m[2]:m[3]]
		out = append(out, Extracted{
			Type:            models.EntityTypeSocialHandle,
			Value:           "@" + handle,
			NormalizedValue: "handle:" + strings.ToLower(handle),
			Confidence:      0.60,
			Context:         e.window(text, m[0], m[1]),
		})
	}
	return out
}

func (e *StructuredExtractor) extractTechStack(text string) []Extracted {
	var out []Extracted
	for category, names := range techDictionary {
		for _, name := range names {
			pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
			locs := pattern.FindAllStringIndex(text, -1)
			if len(locs) == 0 {
				continue
			}
			// Repeated mentions boost confidence
			confidence := 0.60 + 0.10*float64(len(locs)-1)
			if confidence > 0.90 {
				confidence = 0.90
			}
			out = append(out, Extracted{
				Type:            models.EntityTypeTechStack,
				Value:           name,
				NormalizedValue: "tech:" + strings.ToLower(name),
				Confidence:      confidence,
				Context:         e.window(text, locs[0][0], locs[0][1]),
				Extra: map[string]interface{}{
					"category": category,
					"mentions": len(locs),
				},
			})
		}
	}
	return out
}

// window extracts up to contextWindow chars around a match, snapped to
// word boundaries, with ellipses marking truncation.
func (e *StructuredExtractor) window(text string, start, end int) string {
	return contextWindow(text, start, end, e.contextWindow)
}

func contextWindow(text string, start, end, size int) string {
	matchLen := end - start
	pad := (size - matchLen) / 2
	if pad < 0 {
		pad = 0
	}

	left := start - pad
	if left < 0 {
		left = 0
	}
	right := end + pad
	if right > len(text) {
		right = len(text)
	}

	// Snap to word boundaries
	for left > 0 && text[left] != ' ' && left > start-pad-20 {
		left--
	}
	for right < len(text) && text[right] != ' ' && right < end+pad+20 {
		right++
	}

	snippet := strings.TrimSpace(text[left:right])
	if left > 0 {
		snippet = "..." + snippet
	}
	if right < len(text) {
		snippet = snippet + "..."
	}
	return snippet
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

func platformForPrefix(prefix string) string {
	switch {
	case strings.HasPrefix(prefix, "linkedin.com"):
		return models.PlatformLinkedIn
	case strings.HasPrefix(prefix, "twitter.com"), strings.HasPrefix(prefix, "x.com"):
		return models.PlatformTwitter
	case strings.HasPrefix(prefix, "facebook.com"):
		return models.PlatformFacebook
	case strings.HasPrefix(prefix, "instagram.com"):
		return models.PlatformInstagram
	case strings.HasPrefix(prefix, "youtube.com"):
		return models.PlatformYouTube
	case strings.HasPrefix(prefix, "github.com"):
		return models.PlatformGitHub
	}
	return ""
}

// dedupeByNormalized collapses same-document duplicates, keeping the
// higher-confidence hit.
func dedupeByNormalized(items []Extracted) []Extracted {
	best := make(map[string]int)
	var out []Extracted
	for _, item := range items {
		key := string(item.Type) + "|" + item.NormalizedValue
		if idx, ok := best[key]; ok {
			if item.Confidence > out[idx].Confidence {
				out[idx] = item
			}
			continue
		}
		best[key] = len(out)
		out = append(out, item)
	}
	return out
}
