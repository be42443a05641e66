package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
)

const cacheTTL = 24 * time.Hour

// cacheEntry pairs parsed robots data with its fetch time.
type cacheEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Service fetches, caches, and evaluates robots.txt per host. The raw
// file body is mirrored into the KV store under robots:{host} so a
// restarted process can rebuild its memory cache without refetching.
//
// Fetch failures of any kind (missing file, non-200, network error,
// unparseable body) resolve to allow-all: an unreachable robots.txt must
// never stall a crawl.
type Service struct {
	logger    arbor.ILogger
	client    *http.Client
	kv        interfaces.KeyValueStorage
	userAgent string

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewService creates a robots service.
func NewService(logger arbor.ILogger, kv interfaces.KeyValueStorage, config *common.CrawlerConfig) *Service {
	timeout := config.RobotsTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
		kv:        kv,
		userAgent: config.UserAgent,
		cache:     make(map[string]*cacheEntry),
	}
}

// Allowed reports whether the crawler may fetch the URL under the host's
// robots.txt rules.
func (s *Service) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	data, err := s.dataFor(ctx, u)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}
	return data.FindGroup(s.userAgent).Test(u.Path), nil
}

// CrawlDelay returns the crawl-delay directive for the host, or zero when
// none applies.
func (s *Service) CrawlDelay(ctx context.Context, rawURL string) (time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	data, err := s.dataFor(ctx, u)
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	return data.FindGroup(s.userAgent).CrawlDelay, nil
}

// Sitemaps returns the Sitemap directives declared by the host's
// robots.txt, if any.
func (s *Service) Sitemaps(ctx context.Context, rawURL string) ([]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	data, err := s.dataFor(ctx, u)
	if err != nil || data == nil {
		return nil, err
	}
	return data.Sitemaps, nil
}

// dataFor returns parsed robots data for the URL's host, consulting the
// memory cache, then the KV mirror, then the network. A nil result with
// nil error means allow-all.
func (s *Service) dataFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Host

	s.mu.Lock()
	entry, ok := s.cache[host]
	s.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.data, nil
	}

	if body, err := s.kv.Get(ctx, "robots:"+host); err == nil {
		data, parseErr := robotstxt.FromString(body)
		if parseErr != nil {
			data = nil
		}
		s.store(host, data)
		return data, nil
	}

	data, body := s.fetch(ctx, u)
	s.store(host, data)
	if err := s.kv.Set(ctx, "robots:"+host, body, cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("host", host).Msg("Failed to cache robots.txt")
	}
	return data, nil
}

// fetch retrieves and parses robots.txt. Returns the parsed data (nil for
// allow-all) and the body to mirror into KV. An empty body is stored on
// failure so the allow-all decision is cached too.
func (s *Service) fetch(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, string) {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, ""
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt fetch failed, allowing all")
		return nil, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug().Int("status", resp.StatusCode).Str("url", robotsURL).Msg("robots.txt unavailable, allowing all")
		return nil, ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, ""
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", robotsURL).Msg("robots.txt unparseable, allowing all")
		return nil, string(body)
	}
	return data, string(body)
}

func (s *Service) store(host string, data *robotstxt.RobotsData) {
	s.mu.Lock()
	s.cache[host] = &cacheEntry{data: data, fetchedAt: time.Now()}
	s.mu.Unlock()
}

// EvictExpired drops memory cache entries past the TTL. The KV mirror
// expires on its own.
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
