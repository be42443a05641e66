package crawler

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/classifier"
	"github.com/cirahq/cira/internal/services/ratelimit"
	"github.com/cirahq/cira/internal/services/robots"
	"github.com/cirahq/cira/internal/services/sitemap"
)

// StopReason explains why a crawl loop ended.
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopMaxPages  StopReason = "max_pages"
	StopTimeout   StopReason = "timeout"
	StopPaused    StopReason = "paused"
	StopStopped   StopReason = "stopped"
	StopError     StopReason = "error"
)

// ControlSignal is polled between pages so pause and cancel take effect
// mid-crawl. SignalNone continues the loop.
type ControlSignal string

const (
	SignalNone  ControlSignal = ""
	SignalPause ControlSignal = "pause"
	SignalStop  ControlSignal = "stop"
)

// ControlCheck reports an externally requested interruption.
type ControlCheck func(ctx context.Context) ControlSignal

// CheckpointSink persists crawl progress. The crawl loop calls it
// periodically and once more on exit.
type CheckpointSink interface {
	SaveCheckpoint(ctx context.Context, companyID string, cp *models.CrawlCheckpoint) error
}

// Result summarizes one crawl run.
type Result struct {
	PagesCrawled       int
	PagesFailed        int
	DuplicatesSkipped  int
	RobotsBlocked      int
	ExternalLinksFound []string
	MaxDepthReached    int
	StopReason         StopReason
	Err                error
}

// Worker runs the crawl loop for one company. A single worker crawls a
// company at a time; concurrency exists only across companies.
type Worker struct {
	logger     arbor.ILogger
	config     *common.CrawlerConfig
	fetcher    interfaces.Fetcher
	robots     *robots.Service
	ratelimit  *ratelimit.Service
	sitemap    *sitemap.Service
	classifier *classifier.Service
	detector   *ExternalLinkDetector
	pages      interfaces.PageStorage
	events     interfaces.EventService
}

// NewWorker wires a crawl worker.
func NewWorker(
	logger arbor.ILogger,
	config *common.CrawlerConfig,
	fetcher interfaces.Fetcher,
	robotsSvc *robots.Service,
	rateSvc *ratelimit.Service,
	sitemapSvc *sitemap.Service,
	classifierSvc *classifier.Service,
	pages interfaces.PageStorage,
	events interfaces.EventService,
) *Worker {
	return &Worker{
		logger:     logger,
		config:     config,
		fetcher:    fetcher,
		robots:     robotsSvc,
		ratelimit:  rateSvc,
		sitemap:    sitemapSvc,
		classifier: classifierSvc,
		detector:   NewExternalLinkDetector(),
		pages:      pages,
		events:     events,
	}
}

// Crawl runs the loop for a company, resuming from the checkpoint when it
// carries state. The returned result always includes a final checkpoint
// save through the sink.
func (w *Worker) Crawl(ctx context.Context, company *models.Company, checkpoint *models.CrawlCheckpoint, sink CheckpointSink, control ControlCheck) *Result {
	cfg := company.Config
	frontier := NewFrontier(company.SeedURL, cfg.MaxDepth, cfg.ExcludePatterns)

	startTime := time.Now()
	if checkpoint != nil && !checkpoint.CrawlStartTime.IsZero() {
		startTime = checkpoint.CrawlStartTime
	}
	externalLinks := map[string]bool{}

	if checkpoint != nil && (len(checkpoint.PagesQueued) > 0 || len(checkpoint.PagesVisited) > 0) {
		frontier.Restore(checkpoint.PagesQueued, checkpoint.PagesVisited, checkpoint.ContentHashes)
		for _, l := range checkpoint.ExternalLinksFound {
			externalLinks[l] = true
		}
		w.logger.Info().
			Str("company_id", company.ID).
			Int("pending", frontier.Len()).
			Int("visited", frontier.VisitedCount()).
			Msg("Resuming crawl from checkpoint")
	} else {
		w.seed(ctx, company, frontier)
	}

	result := &Result{StopReason: StopCompleted}
	pagesSinceCheckpoint := 0
	lastCheckpoint := time.Now()

	for {
		if sig := w.interrupted(ctx, control); sig != "" {
			result.StopReason = sig
			break
		}
		if cfg.CrawlTimeout > 0 && time.Since(startTime) > cfg.CrawlTimeout {
			result.StopReason = StopTimeout
			break
		}
		if cfg.MaxPages > 0 && frontier.VisitedCount() >= cfg.MaxPages {
			result.StopReason = StopMaxPages
			break
		}

		next, ok := frontier.Next()
		if !ok {
			result.StopReason = StopCompleted
			break
		}
		if frontier.IsVisited(next.URL) {
			continue
		}

		page, requeued := w.crawlOne(ctx, company, frontier, next, externalLinks, result)
		if requeued {
			continue
		}
		frontier.MarkVisited(next.URL)
		if next.Depth > result.MaxDepthReached {
			result.MaxDepthReached = next.Depth
		}

		if page != nil {
			if err := w.pages.SavePage(ctx, page); err != nil {
				w.logger.Error().Err(err).Str("url", page.URL).Msg("Failed to save page")
			}
		}

		pagesSinceCheckpoint++
		if pagesSinceCheckpoint >= w.checkpointPages() || time.Since(lastCheckpoint) >= w.checkpointInterval() {
			w.saveProgress(ctx, company.ID, frontier, startTime, result.MaxDepthReached, externalLinks, sink)
			pagesSinceCheckpoint = 0
			lastCheckpoint = time.Now()

			_ = w.events.Publish(ctx, interfaces.Event{
				Type: interfaces.EventCrawlProgress,
				Payload: map[string]interface{}{
					"company_id":    company.ID,
					"pages_crawled": frontier.VisitedCount(),
					"pages_queued":  frontier.Len(),
				},
			})
		}
	}

	for l := range externalLinks {
		result.ExternalLinksFound = append(result.ExternalLinksFound, l)
	}
	result.PagesCrawled = frontier.VisitedCount()

	w.saveProgress(ctx, company.ID, frontier, startTime, result.MaxDepthReached, externalLinks, sink)

	w.logger.Info().
		Str("company_id", company.ID).
		Int("pages", result.PagesCrawled).
		Str("stop_reason", string(result.StopReason)).
		Msg("Crawl finished")
	return result
}

// seed initializes the frontier with the seed URL and, when enabled,
// sitemap discoveries classified by URL.
func (w *Worker) seed(ctx context.Context, company *models.Company, frontier *Frontier) {
	frontier.Add(company.SeedURL, 0, models.PriorityFor(models.PageTypeOther))

	if !company.Config.UseSitemap {
		return
	}
	for _, entry := range w.sitemap.Discover(ctx, company.SeedURL) {
		c := w.classifier.Classify(entry.Loc, "")
		frontier.Add(entry.Loc, 1, models.PriorityFor(c.PageType))
	}
}

// crawlOne fetches and processes a single frontier entry, returning the
// page record to persist (nil when skipped entirely) and whether the entry
// went back to the frontier instead of being fetched.
func (w *Worker) crawlOne(ctx context.Context, company *models.Company, frontier *Frontier, next models.QueuedPage, externalLinks map[string]bool, result *Result) (*models.Page, bool) {
	allowed, err := w.robots.Allowed(ctx, next.URL)
	if err == nil && !allowed {
		result.RobotsBlocked++
		return &models.Page{
			ID:        common.NewPageID(),
			CompanyID: company.ID,
			URL:       next.URL,
			PageType:  models.PageTypeOther,
			Depth:     next.Depth,
			Error:     "blocked by robots.txt",
			CrawledAt: time.Now(),
		}, false
	}

	if delay, err := w.robots.CrawlDelay(ctx, next.URL); err == nil && delay > 0 {
		w.ratelimit.SetCrawlDelay(common.ExtractDomain(next.URL), delay)
	}

	domain := common.ExtractDomain(next.URL)
	acquireCtx, cancel := context.WithTimeout(ctx, w.acquireTimeout())
	err = w.ratelimit.Acquire(acquireCtx, domain)
	cancel()
	if err != nil {
		if next.Retries == 0 {
			// Could not get a slot in time; requeue once at the same depth
			next.Retries++
			frontier.Requeue(next)
			w.logger.Debug().Str("url", next.URL).Msg("Rate limit acquire timed out, requeued")
			return nil, true
		}
		w.logger.Debug().Str("url", next.URL).Msg("Rate limit acquire timed out after retry, dropping")
		result.PagesFailed++
		return nil, false
	}
	fetched := w.fetcher.Fetch(ctx, next.URL)
	w.ratelimit.Release(domain)

	page := &models.Page{
		ID:         common.NewPageID(),
		CompanyID:  company.ID,
		URL:        next.URL,
		Depth:      next.Depth,
		StatusCode: fetched.StatusCode,
		Title:      fetched.Title,
		CrawledAt:  time.Now(),
	}

	if !fetched.Success() {
		page.PageType = models.PageTypeOther
		page.Error = fetched.Error
		result.PagesFailed++
		return page, false
	}

	hash := common.ContentHash(fetched.Text)
	page.ContentHash = hash
	if !frontier.RecordHash(hash) {
		// Duplicate body: keep the record, skip children
		result.DuplicatesSkipped++
		page.PageType = models.PageTypeOther
		page.Error = "duplicate content"
		return page, false
	}

	classification := w.classifier.Classify(next.URL, fetched.Text)
	page.PageType = classification.PageType
	page.HTML = fetched.HTML
	page.Text = fetched.Text

	for _, link := range w.detector.DetectLinks(fetched.HTML, fetched.FinalURL) {
		if w.detector.ShouldFollow(link, &company.Config) {
			externalLinks[link.URL] = true
		}
	}

	for _, link := range fetched.Links {
		c := w.classifier.Classify(link, "")
		frontier.Add(link, next.Depth+1, models.PriorityFor(c.PageType))
	}
	return page, false
}

func (w *Worker) interrupted(ctx context.Context, control ControlCheck) StopReason {
	if ctx.Err() != nil {
		return StopStopped
	}
	if control == nil {
		return ""
	}
	switch control(ctx) {
	case SignalPause:
		return StopPaused
	case SignalStop:
		return StopStopped
	}
	return ""
}

func (w *Worker) saveProgress(ctx context.Context, companyID string, frontier *Frontier, startTime time.Time, maxDepth int, externalLinks map[string]bool, sink CheckpointSink) {
	if sink == nil {
		return
	}
	pending, visited, hashes := frontier.Snapshot()
	cp := models.NewCrawlCheckpoint()
	cp.PagesQueued = pending
	cp.PagesVisited = visited
	cp.ContentHashes = hashes
	cp.CurrentDepth = maxDepth
	cp.CrawlStartTime = startTime
	cp.LastCheckpointTime = time.Now()
	for l := range externalLinks {
		cp.ExternalLinksFound = append(cp.ExternalLinksFound, l)
	}
	if err := sink.SaveCheckpoint(ctx, companyID, cp); err != nil {
		w.logger.Warn().Err(err).Str("company_id", companyID).Msg("Checkpoint save failed")
	}
}

func (w *Worker) checkpointPages() int {
	if w.config.CheckpointPages > 0 {
		return w.config.CheckpointPages
	}
	return 10
}

func (w *Worker) checkpointInterval() time.Duration {
	if w.config.CheckpointInterval > 0 {
		return w.config.CheckpointInterval
	}
	return 120 * time.Second
}

func (w *Worker) acquireTimeout() time.Duration {
	if w.config.AcquireTimeout > 0 {
		return w.config.AcquireTimeout
	}
	return 30 * time.Second
}
