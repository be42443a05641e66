package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/models"
	storagebadger "github.com/cirahq/cira/internal/storage/badger"
)

func newTestBroker(t *testing.T, visibility time.Duration, maxAttempts int) *Broker {
	t.Helper()
	db, err := storagebadger.NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBroker(db.Store().Badger(), common.GetLogger(), visibility, maxAttempts)
}

func TestBackoffDelay(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		delay := BackoffDelay(attempt)
		assert.LessOrEqual(t, delay, 10*time.Minute, "attempt %d", attempt)
		assert.GreaterOrEqual(t, delay, 10*time.Second, "attempt %d", attempt)
	}

	// Doubling holds below the cap even with max jitter
	assert.Less(t, BackoffDelay(1), 13*time.Second)
	assert.GreaterOrEqual(t, BackoffDelay(2), 20*time.Second)
	assert.Equal(t, 10*time.Minute, BackoffDelay(100))
}

func TestBroker_EnqueueReceiveAck(t *testing.T) {
	broker := newTestBroker(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, models.QueueCrawl, models.Task{
		CompanyID: "cmp_1",
		Type:      models.TaskCrawlCompany,
	}))

	count, err := broker.Len(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	task, ack, err := broker.Receive(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, "cmp_1", task.CompanyID)
	assert.Equal(t, models.TaskCrawlCompany, task.Type)

	// In flight: invisible to other receivers but still counted
	_, _, err = broker.Receive(ctx, models.QueueCrawl)
	assert.ErrorIs(t, err, models.ErrNoTask)

	require.NoError(t, ack())

	count, err = broker.Len(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestBroker_QueueIsolation(t *testing.T) {
	broker := newTestBroker(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, models.QueueAnalyze, models.Task{
		CompanyID: "cmp_1",
		Type:      models.TaskAnalyzeContent,
	}))

	_, _, err := broker.Receive(ctx, models.QueueCrawl)
	assert.ErrorIs(t, err, models.ErrNoTask)

	task, ack, err := broker.Receive(ctx, models.QueueAnalyze)
	require.NoError(t, err)
	assert.Equal(t, models.TaskAnalyzeContent, task.Type)
	require.NoError(t, ack())
}

func TestBroker_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	broker := newTestBroker(t, 20*time.Millisecond, 3)
	ctx := context.Background()
	require.NoError(t, broker.Enqueue(ctx, models.QueueExtract, models.Task{
		CompanyID: "cmp_1",
		Type:      models.TaskExtractEntities,
	}))

	_, _, err := broker.Receive(ctx, models.QueueExtract)
	require.NoError(t, err)
	// Not acked: task must come back once the visibility window lapses

	_, _, err = broker.Receive(ctx, models.QueueExtract)
	assert.ErrorIs(t, err, models.ErrNoTask)

	time.Sleep(30 * time.Millisecond)

	task, ack, err := broker.Receive(ctx, models.QueueExtract)
	require.NoError(t, err)
	assert.Equal(t, "cmp_1", task.CompanyID)
	require.NoError(t, ack())
}

func TestBroker_PurgeCompany(t *testing.T) {
	broker := newTestBroker(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, broker.Enqueue(ctx, models.QueueCrawl, models.Task{CompanyID: "cmp_a", Type: models.TaskCrawlPage}))
	require.NoError(t, broker.Enqueue(ctx, models.QueueCrawl, models.Task{CompanyID: "cmp_b", Type: models.TaskCrawlPage}))
	require.NoError(t, broker.Enqueue(ctx, models.QueueAnalyze, models.Task{CompanyID: "cmp_a", Type: models.TaskAnalyzeContent}))

	require.NoError(t, broker.PurgeCompany(ctx, "cmp_a"))

	crawlLen, err := broker.Len(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, 1, crawlLen)

	analyzeLen, err := broker.Len(ctx, models.QueueAnalyze)
	require.NoError(t, err)
	assert.Equal(t, 0, analyzeLen)

	task, ack, err := broker.Receive(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, "cmp_b", task.CompanyID)
	require.NoError(t, ack())
}

type recordingExecutor struct {
	mu chan *models.Task
}

func (e *recordingExecutor) Execute(ctx context.Context, task *models.Task) error {
	e.mu <- task
	return nil
}

func TestWorkerPool_RoutesTaskToExecutor(t *testing.T) {
	broker := newTestBroker(t, time.Minute, 3)
	ctx := context.Background()

	executed := make(chan *models.Task, 1)
	pool := NewWorkerPool(broker, common.GetLogger(), &common.QueueConfig{
		PollInterval: "10ms",
		Concurrency:  1,
	})
	pool.Register(models.TaskCrawlCompany, &recordingExecutor{mu: executed})
	pool.Start(ctx)
	defer pool.Stop()

	require.NoError(t, broker.Enqueue(ctx, models.QueueCrawl, models.Task{
		CompanyID: "cmp_1",
		Type:      models.TaskCrawlCompany,
	}))

	select {
	case task := <-executed:
		assert.Equal(t, "cmp_1", task.CompanyID)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not dispatched to the executor")
	}
}
