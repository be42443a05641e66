package sitemap

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
)

const cacheTTL = 24 * time.Hour

// sitemapIndex is the <sitemapindex> document pointing at child sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

// urlSet is the <urlset> document listing page URLs.
type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// URL is one discovered page with the optional metadata its urlset entry
// carried. Priority defaults to 0.5 when the entry omits it, per the
// sitemaps.org protocol.
type URL struct {
	Loc        string
	LastMod    time.Time
	ChangeFreq string
	Priority   float64
}

type cacheEntry struct {
	urls      []URL
	fetchedAt time.Time
}

// Service discovers page URLs from a site's sitemap.xml, following
// sitemap index files recursively and transparently decompressing .gz
// sitemaps. Discovery is capped to keep a hostile or enormous sitemap
// from flooding the frontier, and results are cached per host for a day.
type Service struct {
	logger    arbor.ILogger
	client    *http.Client
	userAgent string
	maxFiles  int
	maxURLs   int

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewService creates a sitemap discovery service.
func NewService(logger arbor.ILogger, config *common.CrawlerConfig) *Service {
	timeout := config.SitemapTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxFiles := config.MaxSitemapFiles
	if maxFiles <= 0 {
		maxFiles = 50
	}
	maxURLs := config.MaxSitemapURLs
	if maxURLs <= 0 {
		maxURLs = 10000
	}
	return &Service{
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		userAgent: config.UserAgent,
		maxFiles:  maxFiles,
		maxURLs:   maxURLs,
		cache:     make(map[string]*cacheEntry),
	}
}

// Discover returns the page URLs listed by the host's sitemap. A missing
// or broken sitemap yields an empty slice, never an error: sitemaps are
// an optimization, the crawl proceeds from the seed regardless.
func (s *Service) Discover(ctx context.Context, seedURL string) []URL {
	u, err := url.Parse(seedURL)
	if err != nil {
		return nil
	}
	host := u.Host

	s.mu.Lock()
	entry, ok := s.cache[host]
	s.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.urls
	}

	root := fmt.Sprintf("%s://%s/sitemap.xml", u.Scheme, u.Host)
	filesFetched := 0
	urls := s.collect(ctx, root, &filesFetched)

	s.mu.Lock()
	s.cache[host] = &cacheEntry{urls: urls, fetchedAt: time.Now()}
	s.mu.Unlock()

	s.logger.Debug().
		Str("host", host).
		Int("urls", len(urls)).
		Int("files", filesFetched).
		Msg("Sitemap discovery finished")
	return urls
}

// collect fetches one sitemap file and recurses into index entries,
// honoring the file and URL caps.
func (s *Service) collect(ctx context.Context, sitemapURL string, filesFetched *int) []URL {
	if *filesFetched >= s.maxFiles {
		return nil
	}
	*filesFetched++

	body, err := s.fetch(ctx, sitemapURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", sitemapURL).Msg("Sitemap fetch failed")
		return nil
	}

	// Try index first: an index document never contains <url> entries
	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []URL
		for _, ref := range index.Sitemaps {
			loc := strings.TrimSpace(ref.Loc)
			if loc == "" {
				continue
			}
			urls = append(urls, s.collect(ctx, loc, filesFetched)...)
			if len(urls) >= s.maxURLs {
				return urls[:s.maxURLs]
			}
		}
		return urls
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		s.logger.Debug().Err(err).Str("url", sitemapURL).Msg("Sitemap unparseable")
		return nil
	}

	urls := make([]URL, 0, len(set.URLs))
	for _, entry := range set.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			continue
		}
		urls = append(urls, URL{
			Loc:        loc,
			LastMod:    parseLastMod(entry.LastMod),
			ChangeFreq: strings.TrimSpace(entry.ChangeFreq),
			Priority:   parsePriority(entry.Priority),
		})
		if len(urls) >= s.maxURLs {
			break
		}
	}
	return urls
}

// parseLastMod accepts the W3C datetime forms sitemaps use: a full
// timestamp or a bare date. Anything else yields the zero time.
func parseLastMod(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parsePriority(raw string) float64 {
	p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || p < 0 || p > 1 {
		return 0.5
	}
	return p
}

func (s *Service) fetch(ctx context.Context, sitemapURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if strings.HasSuffix(sitemapURL, ".gz") || resp.Header.Get("Content-Type") == "application/gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(io.LimitReader(reader, 16*1024*1024))
}

// EvictExpired drops memory cache entries past the TTL.
func (s *Service) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for host, entry := range s.cache {
		if time.Since(entry.fetchedAt) >= cacheTTL {
			delete(s.cache, host)
			evicted++
		}
	}
	return evicted
}
