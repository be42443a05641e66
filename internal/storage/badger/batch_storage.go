package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// BatchStorage implements interfaces.BatchStorage for Badger
type BatchStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBatchStorage creates a new BatchStorage instance
func NewBatchStorage(db *BadgerDB, logger arbor.ILogger) *BatchStorage {
	return &BatchStorage{db: db, logger: logger}
}

// SaveBatch upserts a batch job, refreshing UpdatedAt.
func (s *BatchStorage) SaveBatch(ctx context.Context, batch *models.BatchJob) error {
	batch.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(batch.ID, batch); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (s *BatchStorage) GetBatch(ctx context.Context, id string) (*models.BatchJob, error) {
	var batch models.BatchJob
	err := s.db.Store().Get(id, &batch)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

// ListBatches returns all batches, newest first.
func (s *BatchStorage) ListBatches(ctx context.Context) ([]*models.BatchJob, error) {
	var batches []*models.BatchJob
	err := s.db.Store().Find(&batches, badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// ListBatchesByStatus returns batches with the given status.
func (s *BatchStorage) ListBatchesByStatus(ctx context.Context, status models.BatchStatus) ([]*models.BatchJob, error) {
	var batches []*models.BatchJob
	err := s.db.Store().Find(&batches, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list batches by status: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a batch job. Member companies are not deleted.
func (s *BatchStorage) DeleteBatch(ctx context.Context, id string) error {
	err := s.db.Store().Delete(id, &models.BatchJob{})
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}
