package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/jobs"
	"github.com/cirahq/cira/internal/services/progress"
)

// defaultMaxConcurrent applies when a batch is created without an explicit
// concurrency ceiling.
const defaultMaxConcurrent = 3

// ErrEmptyBatch is returned when creating a batch with no companies.
var ErrEmptyBatch = errors.New("batch has no companies")

// Service schedules batches of companies through the pipeline. Each
// scheduler pass tops every running batch up to its concurrency ceiling,
// in priority order, starting companies in submission order.
type Service struct {
	logger    arbor.ILogger
	batches   interfaces.BatchStorage
	companies interfaces.CompanyStorage
	jobs      *jobs.Service
	progress  *progress.Service
	events    interfaces.EventService
}

// NewService wires the batch scheduler.
func NewService(
	logger arbor.ILogger,
	batches interfaces.BatchStorage,
	companies interfaces.CompanyStorage,
	jobsSvc *jobs.Service,
	progressSvc *progress.Service,
	events interfaces.EventService,
) *Service {
	return &Service{
		logger:    logger,
		batches:   batches,
		companies: companies,
		jobs:      jobsSvc,
		progress:  progressSvc,
		events:    events,
	}
}

// CreateBatch registers a pending batch over existing companies.
func (s *Service) CreateBatch(ctx context.Context, name string, companyIDs []string, maxConcurrent, priority int) (*models.BatchJob, error) {
	if len(companyIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	for _, id := range companyIDs {
		if _, err := s.companies.GetCompany(ctx, id); err != nil {
			return nil, fmt.Errorf("company %s: %w", id, err)
		}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	batch := &models.BatchJob{
		ID:             common.NewBatchID(),
		Name:           name,
		CompanyIDs:     companyIDs,
		Status:         models.BatchStatusPending,
		Priority:       priority,
		TotalCompanies: len(companyIDs),
		MaxConcurrent:  maxConcurrent,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save batch: %w", err)
	}
	s.logger.Info().Str("batch_id", batch.ID).Int("companies", len(companyIDs)).Msg("Batch created")
	return batch, nil
}

// StartBatch moves a pending or paused batch to running. The next
// scheduler pass begins dispatching its companies.
func (s *Service) StartBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status == models.BatchStatusRunning {
		return nil
	}
	if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusCancelled {
		return fmt.Errorf("batch %s is %s", id, batch.Status)
	}

	now := time.Now()
	batch.Status = models.BatchStatusRunning
	if batch.StartedAt == nil {
		batch.StartedAt = &now
	}
	batch.UpdatedAt = now
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return s.Tick(ctx)
}

// Tick is one scheduler pass: refresh batch counters, complete finished
// batches, and start queued companies up to each running batch's ceiling.
// Higher-priority batches are topped up first.
func (s *Service) Tick(ctx context.Context) error {
	batches, err := s.batches.ListBatchesByStatus(ctx, models.BatchStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list running batches: %w", err)
	}
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].Priority != batches[j].Priority {
			return batches[i].Priority > batches[j].Priority
		}
		return batches[i].CreatedAt.Before(batches[j].CreatedAt)
	})

	for _, batch := range batches {
		if err := s.tickBatch(ctx, batch); err != nil {
			s.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Batch scheduling pass failed")
		}
	}
	return nil
}

func (s *Service) tickBatch(ctx context.Context, batch *models.BatchJob) error {
	var active, completed, failed int
	var startable []string

	for _, companyID := range batch.CompanyIDs {
		company, err := s.companies.GetCompany(ctx, companyID)
		if err != nil {
			failed++
			continue
		}
		switch company.Status {
		case models.CompanyStatusInProgress, models.CompanyStatusPaused:
			active++
		case models.CompanyStatusCompleted:
			completed++
		case models.CompanyStatusFailed:
			failed++
		default:
			startable = append(startable, companyID)
		}
	}

	for _, companyID := range startable {
		if active >= batch.MaxConcurrent {
			break
		}
		if err := s.jobs.StartJob(ctx, companyID); err != nil {
			s.logger.Warn().Err(err).
				Str("batch_id", batch.ID).
				Str("company_id", companyID).
				Msg("Failed to start batched company")
			continue
		}
		active++
	}

	batch.Completed = completed
	batch.Failed = failed
	batch.UpdatedAt = time.Now()
	if completed+failed >= batch.TotalCompanies {
		now := time.Now()
		batch.Status = models.BatchStatusCompleted
		batch.EndedAt = &now
		s.logger.Info().
			Str("batch_id", batch.ID).
			Int("completed", completed).
			Int("failed", failed).
			Msg("Batch completed")
	}
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	_ = s.events.Publish(ctx, interfaces.Event{
		Type: interfaces.EventBatchProgress,
		Payload: map[string]interface{}{
			"batch_id":  batch.ID,
			"progress":  batch.Progress(),
			"completed": completed,
			"failed":    failed,
		},
	})
	return nil
}

// PauseBatch pauses the batch and fans the pause out to its running
// companies. Companies that cannot be paused are skipped.
func (s *Service) PauseBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status != models.BatchStatusRunning {
		return fmt.Errorf("batch %s is not running", id)
	}

	batch.Status = models.BatchStatusPaused
	batch.UpdatedAt = time.Now()
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	for _, companyID := range batch.CompanyIDs {
		if err := s.progress.Pause(ctx, companyID); err != nil &&
			!errors.Is(err, progress.ErrNotPausable) {
			s.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to pause batched company")
		}
	}
	return nil
}

// ResumeBatch resumes the batch's paused companies and restarts scheduling.
func (s *Service) ResumeBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status != models.BatchStatusPaused {
		return fmt.Errorf("batch %s is not paused", id)
	}

	batch.Status = models.BatchStatusRunning
	batch.UpdatedAt = time.Now()
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	for _, companyID := range batch.CompanyIDs {
		if err := s.progress.Resume(ctx, companyID); err != nil &&
			!errors.Is(err, progress.ErrNotResumable) {
			s.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to resume batched company")
		}
	}
	return s.Tick(ctx)
}

// CancelBatch cancels the batch and every non-terminal company in it.
func (s *Service) CancelBatch(ctx context.Context, id string) error {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}
	if batch.Status == models.BatchStatusCompleted || batch.Status == models.BatchStatusCancelled {
		return nil
	}

	now := time.Now()
	batch.Status = models.BatchStatusCancelled
	batch.EndedAt = &now
	batch.UpdatedAt = now
	if err := s.batches.SaveBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}

	for _, companyID := range batch.CompanyIDs {
		company, err := s.companies.GetCompany(ctx, companyID)
		if err != nil || company.IsTerminal() || company.Status == models.CompanyStatusPending {
			continue
		}
		if err := s.progress.Cancel(ctx, companyID); err != nil {
			s.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to cancel batched company")
		}
	}
	return nil
}
