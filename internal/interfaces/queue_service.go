package interfaces

import (
	"context"

	"github.com/cirahq/cira/internal/models"
)

// AckFunc acknowledges a received task, removing it from the queue.
type AckFunc func() error

// TaskQueue is the durable task broker. Tasks become invisible for the
// visibility timeout after Receive; unacked tasks are redelivered with
// exponential backoff and dead-lettered after max attempts.
type TaskQueue interface {
	Enqueue(ctx context.Context, queue models.QueueName, task models.Task) error
	// Receive returns models.ErrNoTask when nothing is visible.
	Receive(ctx context.Context, queue models.QueueName) (*models.Task, AckFunc, error)
	Len(ctx context.Context, queue models.QueueName) (int, error)
	PurgeCompany(ctx context.Context, companyID string) error
}

// TaskExecutor handles one task type. Executors are registered with the
// worker pool and must be idempotent: the state machine provides the
// only execution-order guarantee.
type TaskExecutor interface {
	Execute(ctx context.Context, task *models.Task) error
}
