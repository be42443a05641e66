package sitemap

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
)

func newTestService(maxFiles, maxURLs int) *Service {
	return NewService(common.GetLogger(), &common.CrawlerConfig{
		UserAgent:       "CIRABot/1.0",
		SitemapTimeout:  5 * time.Second,
		MaxSitemapFiles: maxFiles,
		MaxSitemapURLs:  maxURLs,
	})
}

// locs projects discovery results down to their page URLs.
func locs(urls []URL) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = u.Loc
	}
	return out
}

func TestDiscover_URLSet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sitemap.xml", r.URL.Path)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://example.com/team</loc></url>
  <url><loc> https://example.com/careers </loc></url>
</urlset>`)
	}))
	defer server.Close()

	urls := newTestService(50, 10000).Discover(context.Background(), server.URL)
	assert.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/team",
		"https://example.com/careers",
	}, locs(urls))
}

func TestDiscover_URLSetMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/about</loc>
    <lastmod>2026-03-15</lastmod>
    <changefreq>monthly</changefreq>
    <priority>0.8</priority>
  </url>
  <url><loc>https://example.com/bare</loc></url>
</urlset>`)
	}))
	defer server.Close()

	urls := newTestService(50, 10000).Discover(context.Background(), server.URL)
	require.Len(t, urls, 2)

	about := urls[0]
	assert.Equal(t, "https://example.com/about", about.Loc)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), about.LastMod)
	assert.Equal(t, "monthly", about.ChangeFreq)
	assert.Equal(t, 0.8, about.Priority)

	// Omitted metadata: zero lastmod, protocol-default priority
	bare := urls[1]
	assert.True(t, bare.LastMod.IsZero())
	assert.Empty(t, bare.ChangeFreq)
	assert.Equal(t, 0.5, bare.Priority)
}

func TestDiscover_IndexRecursion(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/sitemap-pages.xml</loc></sitemap>
  <sitemap><loc>%s/sitemap-blog.xml</loc></sitemap>
</sitemapindex>`, server.URL, server.URL)
		case "/sitemap-pages.xml":
			fmt.Fprint(w, `<urlset><url><loc>https://example.com/a</loc></url></urlset>`)
		case "/sitemap-blog.xml":
			fmt.Fprint(w, `<urlset><url><loc>https://example.com/b</loc></url></urlset>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	urls := newTestService(50, 10000).Discover(context.Background(), server.URL)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, locs(urls))
}

func TestDiscover_GzipSitemap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<sitemapindex><sitemap><loc>%s/sitemap-1.xml.gz</loc></sitemap></sitemapindex>`, server.URL)
		case "/sitemap-1.xml.gz":
			gz := gzip.NewWriter(w)
			fmt.Fprint(gz, `<urlset><url><loc>https://example.com/zipped</loc></url></urlset>`)
			_ = gz.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	urls := newTestService(50, 10000).Discover(context.Background(), server.URL)
	assert.Equal(t, []string{"https://example.com/zipped"}, locs(urls))
}

func TestDiscover_CapsEnforced(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, `<sitemapindex>`)
			for i := 0; i < 10; i++ {
				fmt.Fprintf(w, `<sitemap><loc>%s/sitemap-%d.xml</loc></sitemap>`, server.URL, i)
			}
			fmt.Fprint(w, `</sitemapindex>`)
			return
		}
		fmt.Fprint(w, `<urlset>`)
		for i := 0; i < 5; i++ {
			fmt.Fprintf(w, `<url><loc>https://example.com%s/p%d</loc></url>`, r.URL.Path, i)
		}
		fmt.Fprint(w, `</urlset>`)
	}))
	defer server.Close()

	// Index itself counts as a file, so three child sitemaps are read
	urls := newTestService(4, 12).Discover(context.Background(), server.URL)
	assert.Len(t, urls, 12)
}

func TestDiscover_MissingSitemap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	urls := newTestService(50, 10000).Discover(context.Background(), server.URL)
	assert.Empty(t, urls)
}

func TestDiscover_CachedPerHost(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/x</loc></url></urlset>`)
	}))
	defer server.Close()

	s := newTestService(50, 10000)
	s.Discover(context.Background(), server.URL)
	s.Discover(context.Background(), server.URL)
	assert.Equal(t, 1, fetches)
}
