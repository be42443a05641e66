package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/analysis"
	"github.com/cirahq/cira/internal/services/crawler"
	"github.com/cirahq/cira/internal/services/extraction"
)

// CrawlExecutor runs the crawl phase for a company and advances the state
// machine according to the crawl's stop reason.
type CrawlExecutor struct {
	logger    arbor.ILogger
	jobs      *Service
	worker    *crawler.Worker
	companies interfaces.CompanyStorage
}

// NewCrawlExecutor wires the crawl phase executor.
func NewCrawlExecutor(logger arbor.ILogger, jobs *Service, worker *crawler.Worker, companies interfaces.CompanyStorage) *CrawlExecutor {
	return &CrawlExecutor{logger: logger, jobs: jobs, worker: worker, companies: companies}
}

// Execute handles TaskCrawlCompany.
func (e *CrawlExecutor) Execute(ctx context.Context, task *models.Task) error {
	company, err := e.companies.GetCompany(ctx, task.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}
	if company.Status != models.CompanyStatusInProgress {
		e.logger.Warn().
			Str("company_id", company.ID).
			Str("status", string(company.Status)).
			Msg("Dropping crawl task for inactive company")
		return nil
	}

	switch company.Phase {
	case models.PhaseQueued:
		if err := e.jobs.TransitionPhase(ctx, company, models.PhaseCrawling); err != nil {
			return err
		}
	case models.PhaseCrawling:
		// Resumed or redelivered task; continue from the checkpoint
	default:
		e.logger.Warn().
			Str("company_id", company.ID).
			Str("phase", string(company.Phase)).
			Msg("Dropping crawl task for company past the crawl phase")
		return nil
	}

	cp, err := e.jobs.checkpoints.Load(ctx, company.ID)
	if err != nil {
		return err
	}

	result := e.worker.Crawl(ctx, company, cp, e.jobs.checkpoints, e.jobs.ControlCheck(company.ID))

	switch result.StopReason {
	case crawler.StopCompleted, crawler.StopMaxPages:
		if result.PagesCrawled == 0 {
			return e.jobs.FailJob(ctx, company, "crawl produced no pages")
		}
		return e.jobs.TransitionPhase(ctx, company, models.PhaseExtracting)

	case crawler.StopTimeout:
		if result.PagesCrawled > 0 {
			// Partial crawl: carry what we have into extraction
			company.Errors = append(company.Errors, "crawl stopped at timeout")
			return e.jobs.TransitionPhase(ctx, company, models.PhaseExtracting)
		}
		_ = e.jobs.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobTimeout,
			Payload: map[string]interface{}{"company_id": company.ID, "phase": "crawling"},
		})
		return e.jobs.FailJob(ctx, company, "crawl timed out before any page was fetched")

	case crawler.StopPaused:
		now := time.Now()
		company.Status = models.CompanyStatusPaused
		company.PausedAt = &now
		company.UpdatedAt = now
		if err := e.companies.SaveCompany(ctx, company); err != nil {
			return fmt.Errorf("failed to save paused company: %w", err)
		}
		_ = e.jobs.checkpoints.CloseSession(ctx, company.ID, models.SessionStatusPaused, "")
		_ = e.jobs.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobPaused,
			Payload: map[string]interface{}{"company_id": company.ID},
		})
		return nil

	case crawler.StopStopped:
		return e.jobs.FailJob(ctx, company, "cancelled by operator")

	default:
		reason := "crawl failed"
		if result.Err != nil {
			reason = fmt.Sprintf("crawl failed: %v", result.Err)
		}
		return e.jobs.FailJob(ctx, company, reason)
	}
}

// ExtractExecutor runs the extraction phase.
type ExtractExecutor struct {
	logger    arbor.ILogger
	jobs      *Service
	extractor *extraction.Service
	companies interfaces.CompanyStorage
}

// NewExtractExecutor wires the extraction phase executor.
func NewExtractExecutor(logger arbor.ILogger, jobs *Service, extractor *extraction.Service, companies interfaces.CompanyStorage) *ExtractExecutor {
	return &ExtractExecutor{logger: logger, jobs: jobs, extractor: extractor, companies: companies}
}

// Execute handles TaskExtractEntities.
func (e *ExtractExecutor) Execute(ctx context.Context, task *models.Task) error {
	company, err := e.companies.GetCompany(ctx, task.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}
	if company.Status != models.CompanyStatusInProgress || company.Phase != models.PhaseExtracting {
		e.logger.Warn().
			Str("company_id", company.ID).
			Str("phase", string(company.Phase)).
			Msg("Dropping extract task outside the extraction phase")
		return nil
	}

	count, err := e.extractor.Run(ctx, company)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	cp, err := e.jobs.checkpoints.Load(ctx, company.ID)
	if err != nil {
		return err
	}
	cp.EntitiesExtractedCount = count
	if err := e.jobs.checkpoints.SaveCheckpoint(ctx, company.ID, cp); err != nil {
		return err
	}

	return e.jobs.TransitionPhase(ctx, company, models.PhaseAnalyzing)
}

// AnalyzeExecutor runs the LLM synthesis phase.
type AnalyzeExecutor struct {
	logger      arbor.ILogger
	jobs        *Service
	synthesizer *analysis.Synthesizer
	companies   interfaces.CompanyStorage
}

// NewAnalyzeExecutor wires the analysis phase executor.
func NewAnalyzeExecutor(logger arbor.ILogger, jobs *Service, synthesizer *analysis.Synthesizer, companies interfaces.CompanyStorage) *AnalyzeExecutor {
	return &AnalyzeExecutor{logger: logger, jobs: jobs, synthesizer: synthesizer, companies: companies}
}

// Execute handles TaskAnalyzeContent.
func (e *AnalyzeExecutor) Execute(ctx context.Context, task *models.Task) error {
	company, err := e.companies.GetCompany(ctx, task.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}
	if company.Status != models.CompanyStatusInProgress || company.Phase != models.PhaseAnalyzing {
		e.logger.Warn().
			Str("company_id", company.ID).
			Str("phase", string(company.Phase)).
			Msg("Dropping analyze task outside the analysis phase")
		return nil
	}

	result, err := e.synthesizer.Synthesize(ctx, company)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	cp, err := e.jobs.checkpoints.Load(ctx, company.ID)
	if err != nil {
		return err
	}
	cp.AnalysisSectionsCompleted = nil
	for _, section := range result.Analysis.Sections {
		if !section.Failed && section.Content != "" {
			cp.AnalysisSectionsCompleted = append(cp.AnalysisSectionsCompleted, section.ID)
		}
	}
	if err := e.jobs.checkpoints.SaveCheckpoint(ctx, company.ID, cp); err != nil {
		return err
	}

	if !result.Successful {
		return e.jobs.FailJob(ctx, company, "analysis missing required sections")
	}
	return e.jobs.TransitionPhase(ctx, company, models.PhaseGenerating)
}

// GenerateExecutor finalizes the pipeline: it rolls token accounting up to
// the company record and completes the job.
type GenerateExecutor struct {
	logger    arbor.ILogger
	jobs      *Service
	tracker   *analysis.TokenTracker
	companies interfaces.CompanyStorage
}

// NewGenerateExecutor wires the finalization executor.
func NewGenerateExecutor(logger arbor.ILogger, jobs *Service, tracker *analysis.TokenTracker, companies interfaces.CompanyStorage) *GenerateExecutor {
	return &GenerateExecutor{logger: logger, jobs: jobs, tracker: tracker, companies: companies}
}

// Execute handles TaskGenerateSummary.
func (e *GenerateExecutor) Execute(ctx context.Context, task *models.Task) error {
	company, err := e.companies.GetCompany(ctx, task.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}
	if company.Status != models.CompanyStatusInProgress || company.Phase != models.PhaseGenerating {
		e.logger.Warn().
			Str("company_id", company.ID).
			Str("phase", string(company.Phase)).
			Msg("Dropping generate task outside the generating phase")
		return nil
	}

	usage, err := e.tracker.CompanyUsage(ctx, company.ID)
	if err != nil {
		return err
	}
	company.InputTokens = usage.InputTokens
	company.OutputTokens = usage.OutputTokens
	company.TotalTokens = usage.TotalTokens
	company.TotalCostUSD = usage.CostUSD

	return e.jobs.CompleteJob(ctx, company)
}
