package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/jobs"
)

// lockTTL bounds how long a pause or resume holds the per-job lock. Crash
// recovery relies on expiry; normal paths release explicitly.
const lockTTL = 60 * time.Second

// ErrNotPausable is returned when pausing a job that is not running.
var ErrNotPausable = errors.New("job is not running")

// ErrNotResumable is returned when resuming a job that is not paused.
var ErrNotResumable = errors.New("job is not paused")

// ErrLocked is returned when another operator holds the job lock.
var ErrLocked = errors.New("job is locked by another operation")

// Service implements operator-facing job control: pause, resume, cancel,
// progress reporting, and the pipeline timeout sweep. Pause and resume are
// serialized per job through a KV lock.
type Service struct {
	logger    arbor.ILogger
	companies interfaces.CompanyStorage
	sessions  interfaces.SessionStorage
	entities  interfaces.EntityStorage
	jobs      *jobs.Service
	kv        interfaces.KeyValueStorage
	events    interfaces.EventService
	workerID  string
}

// NewService wires the progress service. The worker ID identifies this
// process as a lock owner.
func NewService(
	logger arbor.ILogger,
	companies interfaces.CompanyStorage,
	sessions interfaces.SessionStorage,
	entities interfaces.EntityStorage,
	jobsSvc *jobs.Service,
	kv interfaces.KeyValueStorage,
	events interfaces.EventService,
) *Service {
	return &Service{
		logger:    logger,
		companies: companies,
		sessions:  sessions,
		entities:  entities,
		jobs:      jobsSvc,
		kv:        kv,
		events:    events,
		workerID:  common.NewWorkerID(),
	}
}

// withLock runs fn while holding the company's job lock.
func (s *Service) withLock(ctx context.Context, companyID string, fn func() error) error {
	key := common.JobLockKey(companyID)
	ok, err := s.kv.SetNX(ctx, key, s.workerID, lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	defer func() {
		if _, err := s.kv.CompareAndDelete(ctx, key, s.workerID); err != nil {
			s.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to release job lock")
		}
	}()
	return fn()
}

// Pause requests a pause for a running job. The crawl loop honors the
// request at its next control poll; non-crawl phases are paused directly
// and their pending task is dropped by the executor's status guard.
func (s *Service) Pause(ctx context.Context, companyID string) error {
	return s.withLock(ctx, companyID, func() error {
		company, err := s.companies.GetCompany(ctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load company: %w", err)
		}
		if company.Status != models.CompanyStatusInProgress {
			return ErrNotPausable
		}

		if err := s.kv.Set(ctx, common.JobControlKey(companyID), "pause", 0); err != nil {
			return fmt.Errorf("failed to set pause request: %w", err)
		}

		if company.Phase != models.PhaseCrawling {
			// No crawl loop to observe the signal; pause immediately
			now := time.Now()
			company.Status = models.CompanyStatusPaused
			company.PausedAt = &now
			if err := s.companies.SaveCompany(ctx, company); err != nil {
				return fmt.Errorf("failed to save paused company: %w", err)
			}
			_ = s.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventJobPaused,
				Payload: map[string]interface{}{"company_id": companyID},
			})
		}

		s.logger.Info().Str("company_id", companyID).Str("phase", string(company.Phase)).Msg("Pause requested")
		return nil
	})
}

// Resume restarts a paused job at its current phase, crediting the paused
// interval to the timeout budget.
func (s *Service) Resume(ctx context.Context, companyID string) error {
	return s.withLock(ctx, companyID, func() error {
		company, err := s.companies.GetCompany(ctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load company: %w", err)
		}
		if company.Status != models.CompanyStatusPaused {
			return ErrNotResumable
		}

		if company.PausedAt != nil {
			company.TotalPausedMs += time.Since(*company.PausedAt).Milliseconds()
			company.PausedAt = nil
		}
		company.Status = models.CompanyStatusInProgress
		if err := s.companies.SaveCompany(ctx, company); err != nil {
			return fmt.Errorf("failed to save resumed company: %w", err)
		}

		_ = s.kv.Delete(ctx, common.JobControlKey(companyID))
		s.jobs.Touch(ctx, companyID)

		if err := s.jobs.DispatchPhase(ctx, company); err != nil {
			return err
		}

		_ = s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobResumed,
			Payload: map[string]interface{}{"company_id": companyID},
		})
		s.logger.Info().Str("company_id", companyID).Str("phase", string(company.Phase)).Msg("Job resumed")
		return nil
	})
}

// Cancel stops a job permanently. A running crawl sees the stop signal at
// its next poll; the job is failed either way.
func (s *Service) Cancel(ctx context.Context, companyID string) error {
	return s.withLock(ctx, companyID, func() error {
		company, err := s.companies.GetCompany(ctx, companyID)
		if err != nil {
			return fmt.Errorf("failed to load company: %w", err)
		}
		if company.IsTerminal() {
			return nil
		}
		if err := s.kv.Set(ctx, common.JobControlKey(companyID), "stop", 0); err != nil {
			return fmt.Errorf("failed to set stop request: %w", err)
		}
		if company.Phase != models.PhaseCrawling || company.Status != models.CompanyStatusInProgress {
			return s.jobs.FailJob(ctx, company, "cancelled by operator")
		}
		return nil
	})
}

// Progress reports a job's current state, including the remaining pipeline
// timeout budget (elapsed time excludes paused intervals).
func (s *Service) Progress(ctx context.Context, companyID string) (*models.JobProgress, error) {
	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	now := time.Now()
	elapsed := company.Elapsed(now)
	remaining := company.Config.PipelineTimeout - elapsed
	if remaining < 0 || company.IsTerminal() {
		remaining = 0
	}

	progress := &models.JobProgress{
		CompanyID:     companyID,
		Status:        company.Status,
		Phase:         company.Phase,
		ElapsedMs:     elapsed.Milliseconds(),
		RemainingMs:   remaining.Milliseconds(),
		TotalPausedMs: company.TotalPausedMs,
		Errors:        company.Errors,
		UpdatedAt:     now,
	}

	if session, err := s.sessions.GetLatestSession(ctx, companyID); err == nil {
		progress.PagesCrawled = session.PagesCrawled
		progress.PagesQueued = session.PagesQueued
		cp := models.UnmarshalCrawlCheckpoint(session.Checkpoint)
		progress.SectionsCompleted = len(cp.AnalysisSectionsCompleted)
	}
	if count, err := s.entities.CountEntitiesByCompany(ctx, companyID); err == nil {
		progress.EntitiesExtracted = count
	}
	return progress, nil
}

// SweepTimeouts fails every in-progress job whose active time has exceeded
// its pipeline timeout. Checkpoints survive, so a timed-out job can be
// rescanned from where it stopped.
func (s *Service) SweepTimeouts(ctx context.Context) error {
	companies, err := s.companies.ListCompaniesByStatus(ctx, models.CompanyStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to list in-progress companies: %w", err)
	}

	now := time.Now()
	for _, company := range companies {
		timeout := company.Config.PipelineTimeout
		if timeout <= 0 || company.Elapsed(now) < timeout {
			continue
		}
		_ = s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventJobTimeout,
			Payload: map[string]interface{}{"company_id": company.ID},
		})
		if err := s.jobs.FailJob(ctx, company, "pipeline timeout exceeded"); err != nil {
			s.logger.Warn().Err(err).Str("company_id", company.ID).Msg("Failed to time out job")
		}
	}
	return nil
}
