package classifier

import (
	"regexp"
	"strings"

	"github.com/cirahq/cira/internal/models"
)

// MatchSource records which signal produced a classification.
type MatchSource string

const (
	MatchSourceURL      MatchSource = "url"
	MatchSourceContent  MatchSource = "content"
	MatchSourceCombined MatchSource = "combined"
	MatchSourceDefault  MatchSource = "default"
)

// Result is one classification outcome.
type Result struct {
	PageType        models.PageType `json:"page_type"`
	Confidence      float64         `json:"confidence"`
	MatchSource     MatchSource     `json:"match_source"`
	MatchedPatterns []string        `json:"matched_patterns,omitempty"`
}

// urlRule maps a URL path pattern to a page type with a confidence.
type urlRule struct {
	pattern    *regexp.Regexp
	pageType   models.PageType
	confidence float64
}

// contentRule maps a body-text pattern to a page type with a weight.
type contentRule struct {
	pattern  *regexp.Regexp
	pageType models.PageType
	weight   float64
}

// urlRules are evaluated in order; first match wins. Patterns target the
// lowercased URL.
var urlRules = []urlRule{
	{regexp.MustCompile(`/(about|about-us|company|who-we-are|our-story)(/|$)`), models.PageTypeAbout, 0.95},
	{regexp.MustCompile(`/(team|people|leadership|our-team|management|founders)(/|$)`), models.PageTypeTeam, 0.95},
	{regexp.MustCompile(`/(products?|platform|solutions?)(/|$)`), models.PageTypeProduct, 0.90},
	{regexp.MustCompile(`/(services?|what-we-do|offerings?|capabilities)(/|$)`), models.PageTypeService, 0.90},
	{regexp.MustCompile(`/(contact|contact-us|get-in-touch|reach-us)(/|$)`), models.PageTypeContact, 0.95},
	{regexp.MustCompile(`/(careers?|jobs?|join-us|work-with-us|hiring|vacancies)(/|$)`), models.PageTypeCareers, 0.95},
	{regexp.MustCompile(`/(pricing|plans|subscribe|packages)(/|$)`), models.PageTypePricing, 0.90},
	{regexp.MustCompile(`/(blog|articles|insights|resources/blog)(/|$)`), models.PageTypeBlog, 0.85},
	{regexp.MustCompile(`/(news|press|press-releases?|media|announcements)(/|$)`), models.PageTypeNews, 0.85},
}

// contentRules are scored against the lowercased body text. All matching
// rules compete; the heaviest wins.
var contentRules = []contentRule{
	{regexp.MustCompile(`(our (mission|story|journey)|founded in \d{4}|who we are|about us)`), models.PageTypeAbout, 0.75},
	{regexp.MustCompile(`(meet (the|our) team|our (leadership|founders|people)|chief executive officer|board of directors)`), models.PageTypeTeam, 0.75},
	{regexp.MustCompile(`(product (features|overview)|our platform|key features|request a demo)`), models.PageTypeProduct, 0.65},
	{regexp.MustCompile(`(our services|we (offer|provide|deliver)|service offerings)`), models.PageTypeService, 0.60},
	{regexp.MustCompile(`(contact us|get in touch|send us a message|our office|call us)`), models.PageTypeContact, 0.70},
	{regexp.MustCompile(`(open (positions|roles)|join our team|we('|&#39;)re hiring|current vacancies|apply now)`), models.PageTypeCareers, 0.75},
	{regexp.MustCompile(`(per (month|user|seat)|free trial|pricing plans?|billed (monthly|annually))`), models.PageTypePricing, 0.70},
	{regexp.MustCompile(`(read more|posted (on|by)|min read|latest (posts|articles))`), models.PageTypeBlog, 0.55},
	{regexp.MustCompile(`(press release|in the news|media (coverage|contact)|announced today)`), models.PageTypeNews, 0.60},
}

// defaultConfidence is carried when neither signal matches.
const defaultConfidence = 0.30

// Service assigns a page type from URL and content patterns.
type Service struct{}

// NewService creates a page classifier.
func NewService() *Service {
	return &Service{}
}

// Classify tags a page. Text may be empty (URL-only classification, used
// when deciding crawl priority before the page is fetched).
func (s *Service) Classify(rawURL, text string) Result {
	urlMatch, urlPattern, urlConf := matchURL(rawURL)
	contentMatch, contentPattern, contentConf := matchContent(text)

	switch {
	case urlMatch != "" && contentMatch != "" && urlMatch == contentMatch:
		conf := (urlConf + contentConf) / 1.5
		if conf > 1 {
			conf = 1
		}
		return Result{
			PageType:        urlMatch,
			Confidence:      conf,
			MatchSource:     MatchSourceCombined,
			MatchedPatterns: []string{urlPattern, contentPattern},
		}
	case urlMatch != "" && contentMatch != "":
		// Signals disagree: trust the stronger one, discounted
		if urlConf >= contentConf {
			return Result{
				PageType:        urlMatch,
				Confidence:      urlConf * 0.9,
				MatchSource:     MatchSourceURL,
				MatchedPatterns: []string{urlPattern},
			}
		}
		return Result{
			PageType:        contentMatch,
			Confidence:      contentConf * 0.9,
			MatchSource:     MatchSourceContent,
			MatchedPatterns: []string{contentPattern},
		}
	case urlMatch != "":
		return Result{
			PageType:        urlMatch,
			Confidence:      urlConf,
			MatchSource:     MatchSourceURL,
			MatchedPatterns: []string{urlPattern},
		}
	case contentMatch != "":
		return Result{
			PageType:        contentMatch,
			Confidence:      contentConf,
			MatchSource:     MatchSourceContent,
			MatchedPatterns: []string{contentPattern},
		}
	}

	return Result{
		PageType:    models.PageTypeOther,
		Confidence:  defaultConfidence,
		MatchSource: MatchSourceDefault,
	}
}

func matchURL(rawURL string) (models.PageType, string, float64) {
	lower := strings.ToLower(rawURL)
	for _, rule := range urlRules {
		if rule.pattern.MatchString(lower) {
			return rule.pageType, rule.pattern.String(), rule.confidence
		}
	}
	return "", "", 0
}

func matchContent(text string) (models.PageType, string, float64) {
	if text == "" {
		return "", "", 0
	}
	lower := strings.ToLower(text)

	var best contentRule
	for _, rule := range contentRules {
		if rule.weight > best.weight && rule.pattern.MatchString(lower) {
			best = rule
		}
	}
	if best.pattern == nil {
		return "", "", 0
	}
	return best.pageType, best.pattern.String(), best.weight
}
