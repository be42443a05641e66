package batch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/queue"
	"github.com/cirahq/cira/internal/services/checkpoint"
	"github.com/cirahq/cira/internal/services/jobs"
	"github.com/cirahq/cira/internal/services/progress"
	storagebadger "github.com/cirahq/cira/internal/storage/badger"
)

type noopEvents struct{}

func (noopEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) {}
func (noopEvents) Publish(context.Context, interfaces.Event) error         { return nil }
func (noopEvents) PublishSync(context.Context, interfaces.Event) error     { return nil }
func (noopEvents) Close() error                                            { return nil }

type batchEnv struct {
	manager *storagebadger.Manager
	svc     *Service
}

func newBatchEnv(t *testing.T) *batchEnv {
	t.Helper()
	logger := common.GetLogger()
	manager, err := storagebadger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	broker := queue.NewBroker(manager.DB().Store().Badger(), logger, 30*time.Second, 3)
	checkpoints := checkpoint.NewService(logger, manager.SessionStorage())
	jobsSvc := jobs.NewService(logger, manager.CompanyStorage(), checkpoints, broker, manager.KeyValueStorage(), noopEvents{})
	progressSvc := progress.NewService(logger, manager.CompanyStorage(), manager.SessionStorage(),
		manager.EntityStorage(), jobsSvc, manager.KeyValueStorage(), noopEvents{})
	svc := NewService(logger, manager.BatchStorage(), manager.CompanyStorage(), jobsSvc, progressSvc, noopEvents{})
	return &batchEnv{manager: manager, svc: svc}
}

func (e *batchEnv) seedCompanies(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		company := &models.Company{
			ID:      common.NewCompanyID(),
			Name:    fmt.Sprintf("Company %d", i),
			SeedURL: fmt.Sprintf("https://c%d.example", i),
			Status:  models.CompanyStatusPending,
			Phase:   models.PhaseQueued,
			Config:  models.DefaultCompanyConfig(),
		}
		require.NoError(t, e.manager.CompanyStorage().SaveCompany(context.Background(), company))
		ids[i] = company.ID
	}
	return ids
}

func (e *batchEnv) statusCounts(t *testing.T, ids []string) map[models.CompanyStatus]int {
	t.Helper()
	counts := map[models.CompanyStatus]int{}
	for _, id := range ids {
		company, err := e.manager.CompanyStorage().GetCompany(context.Background(), id)
		require.NoError(t, err)
		counts[company.Status]++
	}
	return counts
}

func (e *batchEnv) forceStatus(t *testing.T, id string, status models.CompanyStatus) {
	t.Helper()
	company, err := e.manager.CompanyStorage().GetCompany(context.Background(), id)
	require.NoError(t, err)
	company.Status = status
	require.NoError(t, e.manager.CompanyStorage().SaveCompany(context.Background(), company))
}

func TestCreateBatch_Validation(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateBatch(ctx, "empty", nil, 3, 0)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = env.svc.CreateBatch(ctx, "missing", []string{"cmp_nope"}, 3, 0)
	assert.Error(t, err)

	ids := env.seedCompanies(t, 2)
	batch, err := env.svc.CreateBatch(ctx, "ok", ids, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusPending, batch.Status)
	assert.Equal(t, 2, batch.TotalCompanies)
	assert.Equal(t, defaultMaxConcurrent, batch.MaxConcurrent)
}

func TestStartBatch_RespectsConcurrencyCeiling(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()
	ids := env.seedCompanies(t, 5)

	batch, err := env.svc.CreateBatch(ctx, "b", ids, 2, 0)
	require.NoError(t, err)
	require.NoError(t, env.svc.StartBatch(ctx, batch.ID))

	counts := env.statusCounts(t, ids)
	assert.Equal(t, 2, counts[models.CompanyStatusInProgress])
	assert.Equal(t, 3, counts[models.CompanyStatusPending])
}

func TestTick_BackfillsAsCompaniesFinish(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()
	ids := env.seedCompanies(t, 3)

	batch, err := env.svc.CreateBatch(ctx, "b", ids, 2, 0)
	require.NoError(t, err)
	require.NoError(t, env.svc.StartBatch(ctx, batch.ID))

	// First company finishes; the next pending one should be started
	env.forceStatus(t, ids[0], models.CompanyStatusCompleted)
	require.NoError(t, env.svc.Tick(ctx))

	counts := env.statusCounts(t, ids)
	assert.Equal(t, 2, counts[models.CompanyStatusInProgress])
	assert.Equal(t, 1, counts[models.CompanyStatusCompleted])

	updated, err := env.manager.BatchStorage().GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Completed)
	assert.Equal(t, models.BatchStatusRunning, updated.Status)
}

func TestTick_CompletesBatchWhenAllTerminal(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()
	ids := env.seedCompanies(t, 2)

	batch, err := env.svc.CreateBatch(ctx, "b", ids, 2, 0)
	require.NoError(t, err)
	require.NoError(t, env.svc.StartBatch(ctx, batch.ID))

	env.forceStatus(t, ids[0], models.CompanyStatusCompleted)
	env.forceStatus(t, ids[1], models.CompanyStatusFailed)
	require.NoError(t, env.svc.Tick(ctx))

	updated, err := env.manager.BatchStorage().GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCompleted, updated.Status)
	assert.Equal(t, 1, updated.Completed)
	assert.Equal(t, 1, updated.Failed)
	require.NotNil(t, updated.EndedAt)
	assert.InDelta(t, 1.0, updated.Progress(), 0.0001)
}

func TestPauseAndResumeBatch(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()
	ids := env.seedCompanies(t, 2)

	batch, err := env.svc.CreateBatch(ctx, "b", ids, 2, 0)
	require.NoError(t, err)
	require.NoError(t, env.svc.StartBatch(ctx, batch.ID))

	// Move the started jobs into a pausable phase
	for _, id := range ids {
		company, err := env.manager.CompanyStorage().GetCompany(ctx, id)
		require.NoError(t, err)
		company.Phase = models.PhaseExtracting
		require.NoError(t, env.manager.CompanyStorage().SaveCompany(ctx, company))
	}

	require.NoError(t, env.svc.PauseBatch(ctx, batch.ID))
	counts := env.statusCounts(t, ids)
	assert.Equal(t, 2, counts[models.CompanyStatusPaused])

	require.NoError(t, env.svc.ResumeBatch(ctx, batch.ID))
	counts = env.statusCounts(t, ids)
	assert.Equal(t, 2, counts[models.CompanyStatusInProgress])

	updated, err := env.manager.BatchStorage().GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusRunning, updated.Status)
}

func TestCancelBatch(t *testing.T) {
	env := newBatchEnv(t)
	ctx := context.Background()
	ids := env.seedCompanies(t, 3)

	batch, err := env.svc.CreateBatch(ctx, "b", ids, 2, 0)
	require.NoError(t, err)
	require.NoError(t, env.svc.StartBatch(ctx, batch.ID))

	// Non-crawl phase so cancel takes effect synchronously
	for _, id := range ids[:2] {
		company, err := env.manager.CompanyStorage().GetCompany(ctx, id)
		require.NoError(t, err)
		company.Phase = models.PhaseAnalyzing
		require.NoError(t, env.manager.CompanyStorage().SaveCompany(ctx, company))
	}

	require.NoError(t, env.svc.CancelBatch(ctx, batch.ID))

	updated, err := env.manager.BatchStorage().GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusCancelled, updated.Status)

	counts := env.statusCounts(t, ids)
	assert.Equal(t, 2, counts[models.CompanyStatusFailed])
	// The never-started company stays pending
	assert.Equal(t, 1, counts[models.CompanyStatusPending])
}
