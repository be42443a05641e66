package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/checkpoint"
	"github.com/cirahq/cira/internal/services/crawler"
)

// heartbeatTTL bounds how long a heartbeat outlives its last touch. Wide
// enough to survive slow phases, short enough that recovery is not blind.
const heartbeatTTL = 2 * time.Hour

// staleThreshold is the silence window after which a recovered in-progress
// job is declared abandoned and failed.
const staleThreshold = time.Hour

// ErrJobAlreadyRunning is returned when starting a company whose job is
// already in progress.
var ErrJobAlreadyRunning = errors.New("job already in progress")

// ErrJobPaused is returned when starting a paused company; paused jobs are
// resumed, not restarted.
var ErrJobPaused = errors.New("job is paused; resume it instead")

// Service owns the per-company pipeline state machine: it starts jobs,
// validates phase transitions, dispatches the next phase's task, and
// recovers jobs left in progress by a previous process.
type Service struct {
	logger      arbor.ILogger
	companies   interfaces.CompanyStorage
	checkpoints *checkpoint.Service
	queue       interfaces.TaskQueue
	kv          interfaces.KeyValueStorage
	events      interfaces.EventService
}

// NewService wires the job lifecycle service.
func NewService(
	logger arbor.ILogger,
	companies interfaces.CompanyStorage,
	checkpoints *checkpoint.Service,
	queue interfaces.TaskQueue,
	kv interfaces.KeyValueStorage,
	events interfaces.EventService,
) *Service {
	return &Service{
		logger:      logger,
		companies:   companies,
		checkpoints: checkpoints,
		queue:       queue,
		kv:          kv,
		events:      events,
	}
}

// StartJob begins (or re-runs) the pipeline for a company. In-progress and
// paused jobs are rejected; completed and failed jobs restart from QUEUED.
func (s *Service) StartJob(ctx context.Context, companyID string) error {
	company, err := s.companies.GetCompany(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to load company: %w", err)
	}
	switch company.Status {
	case models.CompanyStatusInProgress:
		return ErrJobAlreadyRunning
	case models.CompanyStatusPaused:
		return ErrJobPaused
	}

	now := time.Now()
	company.Status = models.CompanyStatusInProgress
	company.Phase = models.PhaseQueued
	company.StartedAt = &now
	company.PausedAt = nil
	company.CompletedAt = nil
	company.TotalPausedMs = 0
	company.Errors = nil
	company.UpdatedAt = now
	if err := s.companies.SaveCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}

	if _, err := s.checkpoints.StartSession(ctx, companyID); err != nil {
		return err
	}
	_ = s.kv.Delete(ctx, common.JobControlKey(companyID))
	s.Touch(ctx, companyID)
	s.syncStatus(ctx, company)

	if err := s.queue.Enqueue(ctx, models.QueueCrawl, models.Task{
		CompanyID: companyID,
		Type:      models.TaskCrawlCompany,
	}); err != nil {
		return fmt.Errorf("failed to enqueue crawl task: %w", err)
	}

	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobStarted,
		Payload: map[string]interface{}{"company_id": companyID},
	})
	s.logger.Info().Str("company_id", companyID).Msg("Job started")
	return nil
}

// TransitionPhase moves a company along the state machine and dispatches
// the next phase's task. Illegal transitions are rejected.
func (s *Service) TransitionPhase(ctx context.Context, company *models.Company, to models.Phase) error {
	if !models.CanTransition(company.Phase, to) {
		return fmt.Errorf("invalid phase transition %s -> %s", company.Phase, to)
	}

	from := company.Phase
	company.Phase = to
	company.UpdatedAt = time.Now()
	if err := s.companies.SaveCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to save phase transition: %w", err)
	}
	s.Touch(ctx, company.ID)
	s.syncStatus(ctx, company)

	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventPhaseChanged,
		Payload: map[string]interface{}{
			"company_id": company.ID,
			"from":       string(from),
			"to":         string(to),
		},
	})
	s.logger.Info().
		Str("company_id", company.ID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("Phase transition")

	if task, queue, ok := taskForPhase(to); ok {
		if err := s.queue.Enqueue(ctx, queue, models.Task{CompanyID: company.ID, Type: task}); err != nil {
			return fmt.Errorf("failed to enqueue %s task: %w", task, err)
		}
	}
	return nil
}

// taskForPhase maps a phase to the task that performs it. QUEUED and
// COMPLETED dispatch nothing.
func taskForPhase(phase models.Phase) (models.TaskType, models.QueueName, bool) {
	switch phase {
	case models.PhaseCrawling:
		return models.TaskCrawlCompany, models.QueueCrawl, true
	case models.PhaseExtracting:
		return models.TaskExtractEntities, models.QueueExtract, true
	case models.PhaseAnalyzing:
		return models.TaskAnalyzeContent, models.QueueAnalyze, true
	case models.PhaseGenerating:
		return models.TaskGenerateSummary, models.QueueAnalyze, true
	}
	return "", "", false
}

// DispatchPhase enqueues the task for the company's current phase without
// transitioning. Used when resuming a paused job.
func (s *Service) DispatchPhase(ctx context.Context, company *models.Company) error {
	phase := company.Phase
	if phase == models.PhaseQueued {
		phase = models.PhaseCrawling
	}
	task, queue, ok := taskForPhase(phase)
	if !ok {
		return nil
	}
	if err := s.queue.Enqueue(ctx, queue, models.Task{CompanyID: company.ID, Type: task}); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task, err)
	}
	return nil
}

// CompleteJob finalizes a successful pipeline run.
func (s *Service) CompleteJob(ctx context.Context, company *models.Company) error {
	now := time.Now()
	company.Status = models.CompanyStatusCompleted
	company.Phase = models.PhaseCompleted
	company.CompletedAt = &now
	company.UpdatedAt = now
	if err := s.companies.SaveCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to save completed company: %w", err)
	}

	_ = s.checkpoints.CloseSession(ctx, company.ID, models.SessionStatusCompleted, "")
	_ = s.kv.Delete(ctx, common.JobHeartbeatKey(company.ID))
	_ = s.kv.Delete(ctx, common.JobControlKey(company.ID))
	s.syncStatus(ctx, company)

	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobCompleted,
		Payload: map[string]interface{}{"company_id": company.ID},
	})
	s.logger.Info().Str("company_id", company.ID).Msg("Job completed")
	return nil
}

// FailJob marks a job failed, preserving its checkpoint so a later rescan
// can resume rather than restart.
func (s *Service) FailJob(ctx context.Context, company *models.Company, reason string) error {
	company.Status = models.CompanyStatusFailed
	company.Errors = append(company.Errors, reason)
	company.UpdatedAt = time.Now()
	if err := s.companies.SaveCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to save failed company: %w", err)
	}

	_ = s.checkpoints.CloseSession(ctx, company.ID, models.SessionStatusFailed, reason)
	_ = s.queue.PurgeCompany(ctx, company.ID)
	_ = s.kv.Delete(ctx, common.JobHeartbeatKey(company.ID))
	_ = s.kv.Delete(ctx, common.JobControlKey(company.ID))
	s.syncStatus(ctx, company)

	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobFailed,
		Payload: map[string]interface{}{"company_id": company.ID, "reason": reason},
	})
	s.logger.Warn().Str("company_id", company.ID).Str("reason", reason).Msg("Job failed")
	return nil
}

// Touch refreshes the job heartbeat. Called on every phase transition and
// control poll so recovery can tell live jobs from dead ones.
func (s *Service) Touch(ctx context.Context, companyID string) {
	if err := s.kv.Set(ctx, common.JobHeartbeatKey(companyID), time.Now().Format(time.RFC3339), heartbeatTTL); err != nil {
		s.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to refresh heartbeat")
	}
}

// syncStatus mirrors the company's status and phase into the KV store for
// cheap polling. The database remains the source of truth.
func (s *Service) syncStatus(ctx context.Context, company *models.Company) {
	snapshot := models.JobStatusSnapshot{
		CompanyID: company.ID,
		Status:    company.Status,
		Phase:     company.Phase,
		UpdatedAt: time.Now(),
	}
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, common.JobStatusKey(company.ID), string(blob), heartbeatTTL); err != nil {
		s.logger.Warn().Err(err).Str("company_id", company.ID).Msg("Failed to mirror job status")
	}
}

// ControlCheck returns the crawl loop's interruption poll for one company,
// backed by the control key in KV. Each poll doubles as a heartbeat.
func (s *Service) ControlCheck(companyID string) crawler.ControlCheck {
	return func(ctx context.Context) crawler.ControlSignal {
		s.Touch(ctx, companyID)
		value, err := s.kv.Get(ctx, common.JobControlKey(companyID))
		if err != nil {
			return crawler.SignalNone
		}
		switch value {
		case string(crawler.SignalPause):
			return crawler.SignalPause
		case string(crawler.SignalStop):
			return crawler.SignalStop
		}
		return crawler.SignalNone
	}
}

// RecoverInProgressJobs is the cold-start sweep: jobs silent for longer
// than the stale threshold are failed; live ones are re-dispatched at the
// phase their checkpoint indicates.
func (s *Service) RecoverInProgressJobs(ctx context.Context) error {
	companies, err := s.companies.ListCompaniesByStatus(ctx, models.CompanyStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to list in-progress companies: %w", err)
	}

	for _, company := range companies {
		if s.isStale(ctx, company) {
			if err := s.FailJob(ctx, company, "job abandoned by previous run"); err != nil {
				s.logger.Warn().Err(err).Str("company_id", company.ID).Msg("Failed to fail stale job")
			}
			continue
		}
		if err := s.resume(ctx, company); err != nil {
			s.logger.Warn().Err(err).Str("company_id", company.ID).Msg("Failed to recover job")
		}
	}
	return nil
}

func (s *Service) isStale(ctx context.Context, company *models.Company) bool {
	lastSeen := company.UpdatedAt
	if raw, err := s.kv.Get(ctx, common.JobHeartbeatKey(company.ID)); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil && t.After(lastSeen) {
			lastSeen = t
		}
	}
	if raw, err := s.kv.Get(ctx, common.JobStatusKey(company.ID)); err == nil {
		var snapshot models.JobStatusSnapshot
		if json.Unmarshal([]byte(raw), &snapshot) == nil && snapshot.UpdatedAt.After(lastSeen) {
			lastSeen = snapshot.UpdatedAt
		}
	}
	return time.Since(lastSeen) >= staleThreshold
}

// resume re-dispatches a live in-progress job from its checkpointed phase.
func (s *Service) resume(ctx context.Context, company *models.Company) error {
	cp, err := s.checkpoints.Load(ctx, company.ID)
	if err != nil {
		return err
	}

	phase := cp.ResumePhase()
	if phase == models.PhaseQueued {
		// Nothing checkpointed: restart the pipeline from the top
		company.Phase = models.PhaseQueued
		company.UpdatedAt = time.Now()
		if err := s.companies.SaveCompany(ctx, company); err != nil {
			return fmt.Errorf("failed to reset recovered company: %w", err)
		}
		return s.queue.Enqueue(ctx, models.QueueCrawl, models.Task{
			CompanyID: company.ID,
			Type:      models.TaskCrawlCompany,
		})
	}

	company.Phase = phase
	company.UpdatedAt = time.Now()
	if err := s.companies.SaveCompany(ctx, company); err != nil {
		return fmt.Errorf("failed to save recovered company: %w", err)
	}
	s.Touch(ctx, company.ID)

	task, queue, ok := taskForPhase(phase)
	if !ok {
		return nil
	}
	s.logger.Info().
		Str("company_id", company.ID).
		Str("phase", string(phase)).
		Msg("Recovered in-progress job")
	return s.queue.Enqueue(ctx, queue, models.Task{CompanyID: company.ID, Type: task})
}
