package queue

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// WorkerPool polls the logical queues and routes tasks to registered
// executors. Each queue gets its own set of polling goroutines so slow
// LLM calls on the analyze queue cannot starve crawl fetches.
type WorkerPool struct {
	broker       interfaces.TaskQueue
	logger       arbor.ILogger
	pollInterval time.Duration
	concurrency  int

	mu        sync.RWMutex
	executors map[models.TaskType]interfaces.TaskExecutor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a worker pool over the broker.
func NewWorkerPool(broker interfaces.TaskQueue, logger arbor.ILogger, config *common.QueueConfig) *WorkerPool {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &WorkerPool{
		broker:       broker,
		logger:       logger,
		pollInterval: config.PollIntervalDuration(),
		concurrency:  concurrency,
		executors:    make(map[models.TaskType]interfaces.TaskExecutor),
	}
}

// Register binds an executor to a task type. Must be called before Start.
func (p *WorkerPool) Register(taskType models.TaskType, executor interfaces.TaskExecutor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executors[taskType] = executor
}

// Start launches the polling goroutines. Call Stop to drain them.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	queues := []models.QueueName{models.QueueCrawl, models.QueueExtract, models.QueueAnalyze}
	for _, queue := range queues {
		for i := 0; i < p.concurrency; i++ {
			p.wg.Add(1)
			go p.run(ctx, queue)
		}
	}

	p.logger.Info().
		Int("concurrency", p.concurrency).
		Int("queues", len(queues)).
		Msg("Worker pool started")
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, queue models.QueueName) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ack, err := p.broker.Receive(ctx, queue)
		if err == models.ErrNoTask {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}
		if err != nil {
			p.logger.Error().Err(err).Str("queue", string(queue)).Msg("Failed to receive task")
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.dispatch(ctx, queue, task, ack)
	}
}

func (p *WorkerPool) dispatch(ctx context.Context, queue models.QueueName, task *models.Task, ack interfaces.AckFunc) {
	p.mu.RLock()
	executor, ok := p.executors[task.Type]
	p.mu.RUnlock()

	if !ok {
		// Unroutable tasks are acked, redelivery cannot fix them
		p.logger.Error().
			Str("task_type", string(task.Type)).
			Str("company_id", task.CompanyID).
			Msg("No executor registered for task type")
		if err := ack(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to ack unroutable task")
		}
		return
	}

	start := time.Now()
	if err := executor.Execute(ctx, task); err != nil {
		// Leave unacked: the broker redelivers with backoff
		p.logger.Warn().Err(err).
			Str("queue", string(queue)).
			Str("task_type", string(task.Type)).
			Str("company_id", task.CompanyID).
			Msg("Task execution failed, will retry")
		return
	}

	if err := ack(); err != nil {
		p.logger.Warn().Err(err).
			Str("task_type", string(task.Type)).
			Str("company_id", task.CompanyID).
			Msg("Failed to ack completed task")
		return
	}

	p.logger.Debug().
		Str("queue", string(queue)).
		Str("task_type", string(task.Type)).
		Str("company_id", task.CompanyID).
		Str("duration", time.Since(start).String()).
		Msg("Task completed")
}
