package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cirahq/cira/internal/models"
)

// ExternalLink is a detected social-platform link.
type ExternalLink struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
}

// platformHosts maps known social hosts to their platform label.
var platformHosts = map[string]string{
	"linkedin.com":    models.PlatformLinkedIn,
	"twitter.com":     models.PlatformTwitter,
	"x.com":           models.PlatformTwitter,
	"facebook.com":    models.PlatformFacebook,
	"fb.com":          models.PlatformFacebook,
	"instagram.com":   models.PlatformInstagram,
	"youtube.com":     models.PlatformYouTube,
	"github.com":      models.PlatformGitHub,
}

// handlePatterns recognize profile-shaped paths per platform. Anything
// else on a platform host (share widgets, posts, help pages) is ignored.
var handlePatterns = map[string][]*regexp.Regexp{
	models.PlatformLinkedIn: {
		regexp.MustCompile(`^/company/([A-Za-z0-9._-]+)/?$`),
		regexp.MustCompile(`^/in/([A-Za-z0-9._-]+)/?$`),
		regexp.MustCompile(`^/school/([A-Za-z0-9._-]+)/?$`),
	},
	models.PlatformTwitter: {
		regexp.MustCompile(`^/@?([A-Za-z0-9_]{1,15})/?$`),
	},
	models.PlatformFacebook: {
		regexp.MustCompile(`^/([A-Za-z0-9.]+)/?$`),
	},
	models.PlatformInstagram: {
		regexp.MustCompile(`^/([A-Za-z0-9._]+)/?$`),
	},
	models.PlatformYouTube: {
		regexp.MustCompile(`^/@([A-Za-z0-9._-]+)/?$`),
		regexp.MustCompile(`^/c(?:hannel)?/([A-Za-z0-9._-]+)/?$`),
		regexp.MustCompile(`^/user/([A-Za-z0-9._-]+)/?$`),
	},
	models.PlatformGitHub: {
		regexp.MustCompile(`^/([A-Za-z0-9-]+)/?$`),
	},
}

// handleBlocklist filters platform paths that look like profiles but are
// navigation or widget endpoints.
var handleBlocklist = map[string]bool{
	"share":      true,
	"sharer":     true,
	"intent":     true,
	"login":      true,
	"signup":     true,
	"home":       true,
	"search":     true,
	"hashtag":    true,
	"help":       true,
	"about":      true,
	"legal":      true,
	"privacy":    true,
	"settings":   true,
	"explore":    true,
	"watch":      true,
	"features":   true,
	"marketplace": true,
	"topics":     true,
	"trending":   true,
}

// ExternalLinkDetector finds social-platform profile links in crawled HTML.
type ExternalLinkDetector struct{}

// NewExternalLinkDetector creates a detector.
func NewExternalLinkDetector() *ExternalLinkDetector {
	return &ExternalLinkDetector{}
}

// DetectLinks extracts platform profile links from an HTML document,
// resolving relative and protocol-relative targets against the base URL.
// Results are deduped by (platform, handle).
func (d *ExternalLinkDetector) DetectLinks(html, baseURL string) []ExternalLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []ExternalLink

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		target, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(target)

		link, ok := classifyTarget(resolved)
		if !ok {
			return
		}
		key := link.Platform + ":" + strings.ToLower(link.Handle)
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, link)
	})

	return links
}

// ShouldFollow consults the company config for the link's platform.
func (d *ExternalLinkDetector) ShouldFollow(link ExternalLink, config *models.CompanyConfig) bool {
	if config == nil {
		return false
	}
	return config.FollowsPlatform(link.Platform)
}

// classifyTarget matches a resolved URL against the platform host and
// handle-shape tables.
func classifyTarget(u *url.URL) (ExternalLink, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	platform, ok := platformHosts[host]
	if !ok {
		return ExternalLink{}, false
	}

	for _, re := range handlePatterns[platform] {
		m := re.FindStringSubmatch(u.Path)
		if m == nil {
			continue
		}
		handle := m[1]
		if handleBlocklist[strings.ToLower(handle)] {
			return ExternalLink{}, false
		}
		return ExternalLink{
			Platform: platform,
			Handle:   handle,
			URL:      u.String(),
		}, true
	}
	return ExternalLink{}, false
}
