package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cirahq/cira/internal/models"
)

func TestDetectLinks_KnownPlatforms(t *testing.T) {
	html := `<html><body>
		<a href="https://www.linkedin.com/company/acme-corp">LinkedIn</a>
		<a href="https://twitter.com/acmecorp">Twitter</a>
		<a href="https://x.com/acmehq">X</a>
		<a href="https://github.com/acme">GitHub</a>
		<a href="https://www.youtube.com/@acme">YouTube</a>
		<a href="https://example.com/about">Internal</a>
	</body></html>`

	links := NewExternalLinkDetector().DetectLinks(html, "https://example.com")

	byPlatform := make(map[string][]string)
	for _, l := range links {
		byPlatform[l.Platform] = append(byPlatform[l.Platform], l.Handle)
	}
	assert.Equal(t, []string{"acme-corp"}, byPlatform[models.PlatformLinkedIn])
	assert.ElementsMatch(t, []string{"acmecorp", "acmehq"}, byPlatform[models.PlatformTwitter])
	assert.Equal(t, []string{"acme"}, byPlatform[models.PlatformGitHub])
	assert.Equal(t, []string{"acme"}, byPlatform[models.PlatformYouTube])
}

func TestDetectLinks_ProtocolRelative(t *testing.T) {
	html := `<a href="//linkedin.com/in/jane-doe">profile</a>`
	links := NewExternalLinkDetector().DetectLinks(html, "https://example.com/team")

	assert.Len(t, links, 1)
	assert.Equal(t, models.PlatformLinkedIn, links[0].Platform)
	assert.Equal(t, "jane-doe", links[0].Handle)
}

func TestDetectLinks_BlocklistAndNonProfilePaths(t *testing.T) {
	html := `<html><body>
		<a href="https://twitter.com/share?url=x">share</a>
		<a href="https://twitter.com/intent/tweet">tweet</a>
		<a href="https://facebook.com/sharer/sharer.php">fb share</a>
		<a href="https://github.com/acme/widget/issues/12">deep repo path</a>
		<a href="https://linkedin.com/feed/update/urn:li:activity:1">feed</a>
	</body></html>`

	links := NewExternalLinkDetector().DetectLinks(html, "https://example.com")
	assert.Empty(t, links)
}

func TestDetectLinks_DedupesByHandle(t *testing.T) {
	html := `<html><body>
		<a href="https://github.com/Acme">header</a>
		<a href="https://github.com/acme/">footer</a>
	</body></html>`

	links := NewExternalLinkDetector().DetectLinks(html, "https://example.com")
	assert.Len(t, links, 1)
}

func TestShouldFollow(t *testing.T) {
	d := NewExternalLinkDetector()
	config := models.DefaultCompanyConfig()

	assert.True(t, d.ShouldFollow(ExternalLink{Platform: models.PlatformLinkedIn}, &config))
	assert.True(t, d.ShouldFollow(ExternalLink{Platform: models.PlatformGitHub}, &config))
	assert.False(t, d.ShouldFollow(ExternalLink{Platform: models.PlatformFacebook}, &config))
	assert.False(t, d.ShouldFollow(ExternalLink{Platform: models.PlatformTwitter}, nil))
}
