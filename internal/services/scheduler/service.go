package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/services/batch"
	"github.com/cirahq/cira/internal/services/progress"
	"github.com/cirahq/cira/internal/services/robots"
	"github.com/cirahq/cira/internal/services/sitemap"
)

// Maintenance cadences. The timeout sweep runs often because it is the
// only thing that enforces the pipeline budget; cache cleanup is cheap
// housekeeping.
const (
	timeoutSweepSpec = "@every 1m"
	batchTickSpec    = "@every 30s"
	cacheCleanSpec   = "@daily"
)

// Service drives periodic maintenance and user-scheduled batch starts on
// a single cron runner.
type Service struct {
	logger   arbor.ILogger
	cron     *cron.Cron
	progress *progress.Service
	batches  *batch.Service
	robots   *robots.Service
	sitemaps *sitemap.Service

	mu           sync.Mutex
	batchEntries map[string]cron.EntryID
	running      bool
}

// NewService wires the scheduler.
func NewService(
	logger arbor.ILogger,
	progressSvc *progress.Service,
	batchSvc *batch.Service,
	robotsSvc *robots.Service,
	sitemapSvc *sitemap.Service,
) *Service {
	return &Service{
		logger:       logger,
		cron:         cron.New(),
		progress:     progressSvc,
		batches:      batchSvc,
		robots:       robotsSvc,
		sitemaps:     sitemapSvc,
		batchEntries: make(map[string]cron.EntryID),
	}
}

// Start registers the maintenance jobs and starts the cron runner.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if _, err := s.cron.AddFunc(timeoutSweepSpec, func() {
		if err := s.progress.SweepTimeouts(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Timeout sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register timeout sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(batchTickSpec, func() {
		if err := s.batches.Tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Batch tick failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to register batch tick: %w", err)
	}

	if _, err := s.cron.AddFunc(cacheCleanSpec, func() {
		evicted := s.robots.EvictExpired() + s.sitemaps.EvictExpired()
		s.logger.Info().Int("evicted", evicted).Msg("Expired crawl caches cleaned")
	}); err != nil {
		return fmt.Errorf("failed to register cache cleanup: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// ScheduleBatch registers a cron-triggered start for a batch, replacing
// any existing schedule for the same batch.
func (s *Service) ScheduleBatch(ctx context.Context, batchID, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.batchEntries[batchID]; ok {
		s.cron.Remove(existing)
		delete(s.batchEntries, batchID)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.batches.StartBatch(ctx, batchID); err != nil {
			s.logger.Error().Err(err).Str("batch_id", batchID).Msg("Scheduled batch start failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.batchEntries[batchID] = entryID
	s.logger.Info().
		Str("batch_id", batchID).
		Str("cron", cronExpr).
		Msg("Batch scheduled")
	return nil
}

// UnscheduleBatch removes a batch's cron trigger. Unknown batches are a
// no-op.
func (s *Service) UnscheduleBatch(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.batchEntries[batchID]; ok {
		s.cron.Remove(entryID)
		delete(s.batchEntries, batchID)
	}
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}
