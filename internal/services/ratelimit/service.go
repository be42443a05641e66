package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/cirahq/cira/internal/common"
)

// domainState holds the token bucket and in-flight slot for one domain.
type domainState struct {
	limiter *rate.Limiter
	// inflight is a one-slot semaphore serializing requests to the
	// domain: politeness means at most one outstanding fetch per host
	// regardless of worker count. A semaphore rather than a mutex so
	// Release stays idempotent.
	inflight chan struct{}
}

// Service provides per-domain politeness: a token bucket (default one
// request per second) plus a per-domain mutex so concurrent workers never
// overlap requests to the same host. robots.txt crawl-delay overrides the
// default refill rate for its domain.
type Service struct {
	logger arbor.ILogger

	defaultRate  rate.Limit
	defaultBurst int

	mu      sync.Mutex
	domains map[string]*domainState
}

// NewService creates a rate limiter from crawler config.
func NewService(logger arbor.ILogger, config *common.CrawlerConfig) *Service {
	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Service{
		logger:       logger,
		defaultRate:  rate.Limit(rps),
		defaultBurst: burst,
		domains:      make(map[string]*domainState),
	}
}

func (s *Service) state(domain string) *domainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.domains[domain]
	if !ok {
		ds = &domainState{
			limiter:  rate.NewLimiter(s.defaultRate, s.defaultBurst),
			inflight: make(chan struct{}, 1),
		}
		s.domains[domain] = ds
	}
	return ds
}

// Acquire blocks until the caller may issue a request to the domain. It
// takes the domain's in-flight slot and then waits for a token; the caller
// must call Release when the request finishes. The context bounds the wait.
func (s *Service) Acquire(ctx context.Context, domain string) error {
	ds := s.state(domain)

	select {
	case ds.inflight <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("rate limit acquire for %s: %w", domain, ctx.Err())
	}

	if err := ds.limiter.Wait(ctx); err != nil {
		<-ds.inflight
		return fmt.Errorf("rate limit wait for %s: %w", domain, err)
	}
	return nil
}

// Release frees the domain's in-flight slot. Idempotent: releasing a slot
// that is not held, or a domain never acquired, is a no-op.
func (s *Service) Release(domain string) {
	s.mu.Lock()
	ds, ok := s.domains[domain]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ds.inflight:
	default:
	}
}

// SetCrawlDelay applies a robots.txt crawl-delay to the domain. The
// effective interval is max(default interval, crawl-delay): a site cannot
// ask to be crawled faster than the configured politeness floor. A zero
// or negative delay restores the default.
func (s *Service) SetCrawlDelay(domain string, delay time.Duration) {
	ds := s.state(domain)
	defaultInterval := time.Duration(float64(time.Second) / float64(s.defaultRate))
	if delay <= 0 || delay < defaultInterval {
		ds.limiter.SetLimit(s.defaultRate)
		ds.limiter.SetBurst(s.defaultBurst)
		return
	}
	ds.limiter.SetLimit(rate.Every(delay))
	ds.limiter.SetBurst(1)
	s.logger.Debug().
		Str("domain", domain).
		Str("crawl_delay", delay.String()).
		Msg("Applied robots crawl-delay")
}

// WaitTimeFor reports how long a caller would currently wait for a token,
// without consuming one. Used for progress estimates.
func (s *Service) WaitTimeFor(domain string) time.Duration {
	ds := s.state(domain)
	now := time.Now()
	reservation := ds.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return delay
}
