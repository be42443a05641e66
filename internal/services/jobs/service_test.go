package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/queue"
	"github.com/cirahq/cira/internal/services/checkpoint"
	"github.com/cirahq/cira/internal/services/crawler"
	storagebadger "github.com/cirahq/cira/internal/storage/badger"
)

type noopEvents struct{}

func (noopEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) {}
func (noopEvents) Publish(context.Context, interfaces.Event) error         { return nil }
func (noopEvents) PublishSync(context.Context, interfaces.Event) error     { return nil }
func (noopEvents) Close() error                                            { return nil }

type jobsEnv struct {
	manager     *storagebadger.Manager
	broker      *queue.Broker
	checkpoints *checkpoint.Service
	svc         *Service
}

func newJobsEnv(t *testing.T) *jobsEnv {
	t.Helper()
	logger := common.GetLogger()
	manager, err := storagebadger.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	broker := queue.NewBroker(manager.DB().Store().Badger(), logger, 30*time.Second, 3)
	checkpoints := checkpoint.NewService(logger, manager.SessionStorage())
	svc := NewService(logger, manager.CompanyStorage(), checkpoints, broker, manager.KeyValueStorage(), noopEvents{})
	return &jobsEnv{manager: manager, broker: broker, checkpoints: checkpoints, svc: svc}
}

func (e *jobsEnv) seedCompany(t *testing.T, status models.CompanyStatus, phase models.Phase) *models.Company {
	t.Helper()
	company := &models.Company{
		ID:        common.NewCompanyID(),
		Name:      "Acme",
		SeedURL:   "https://acme.example",
		Status:    status,
		Phase:     phase,
		Config:    models.DefaultCompanyConfig(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, e.manager.CompanyStorage().SaveCompany(context.Background(), company))
	return company
}

func TestStartJob_EnqueuesCrawlTask(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusPending, models.PhaseQueued)

	require.NoError(t, env.svc.StartJob(ctx, company.ID))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusInProgress, updated.Status)
	assert.Equal(t, models.PhaseQueued, updated.Phase)
	require.NotNil(t, updated.StartedAt)

	task, ack, err := env.broker.Receive(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCrawlCompany, task.Type)
	assert.Equal(t, company.ID, task.CompanyID)
	require.NoError(t, ack())

	// A session was opened for checkpointing
	session, err := env.manager.SessionStorage().GetActiveSession(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
}

func TestStartJob_RejectsRunningAndPaused(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()

	running := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)
	assert.ErrorIs(t, env.svc.StartJob(ctx, running.ID), ErrJobAlreadyRunning)

	paused := env.seedCompany(t, models.CompanyStatusPaused, models.PhaseCrawling)
	assert.ErrorIs(t, env.svc.StartJob(ctx, paused.ID), ErrJobPaused)
}

func TestStartJob_RestartsCompletedJob(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusCompleted, models.PhaseCompleted)
	company.TotalPausedMs = 5000
	company.Errors = []string{"old error"}
	require.NoError(t, env.manager.CompanyStorage().SaveCompany(ctx, company))

	require.NoError(t, env.svc.StartJob(ctx, company.ID))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQueued, updated.Phase)
	assert.Zero(t, updated.TotalPausedMs)
	assert.Empty(t, updated.Errors)
	assert.Nil(t, updated.CompletedAt)
}

func TestTransitionPhase_DispatchesNextTask(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	require.NoError(t, env.svc.TransitionPhase(ctx, company, models.PhaseExtracting))

	task, ack, err := env.broker.Receive(ctx, models.QueueExtract)
	require.NoError(t, err)
	assert.Equal(t, models.TaskExtractEntities, task.Type)
	require.NoError(t, ack())

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseExtracting, updated.Phase)
}

func TestTransitionPhase_RejectsIllegalEdge(t *testing.T) {
	env := newJobsEnv(t)
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseQueued)

	err := env.svc.TransitionPhase(context.Background(), company, models.PhaseAnalyzing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid phase transition")

	// Terminal phase has no outgoing edges
	company.Phase = models.PhaseCompleted
	assert.Error(t, env.svc.TransitionPhase(context.Background(), company, models.PhaseCrawling))
}

func TestFailJob_PreservesCheckpointAndPurgesQueue(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	cp := models.NewCrawlCheckpoint()
	cp.PagesVisited = []string{"https://acme.example/"}
	require.NoError(t, env.checkpoints.SaveCheckpoint(ctx, company.ID, cp))
	require.NoError(t, env.broker.Enqueue(ctx, models.QueueCrawl, models.Task{
		CompanyID: company.ID, Type: models.TaskCrawlCompany,
	}))

	require.NoError(t, env.svc.FailJob(ctx, company, "boom"))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusFailed, updated.Status)
	assert.Contains(t, updated.Errors, "boom")

	// Checkpoint survives for a later rescan
	loaded, err := env.checkpoints.Load(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.example/"}, loaded.PagesVisited)

	// Pending tasks for the company are gone
	n, err := env.broker.Len(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestControlCheck_ReadsControlKey(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	check := env.svc.ControlCheck(company.ID)
	assert.Equal(t, crawler.SignalNone, check(ctx))

	require.NoError(t, env.manager.KeyValueStorage().Set(ctx, common.JobControlKey(company.ID), "pause", time.Minute))
	assert.Equal(t, crawler.SignalPause, check(ctx))

	require.NoError(t, env.manager.KeyValueStorage().Set(ctx, common.JobControlKey(company.ID), "stop", time.Minute))
	assert.Equal(t, crawler.SignalStop, check(ctx))
}

func TestRecover_StaleJobFails(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	// Backdate directly in the store; SaveCompany would refresh UpdatedAt
	company.UpdatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.manager.DB().Store().Upsert(company.ID, company))

	require.NoError(t, env.svc.RecoverInProgressJobs(ctx))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusFailed, updated.Status)
	assert.Contains(t, updated.Errors, "job abandoned by previous run")
}

func TestRecover_LiveJobResumesFromCheckpointPhase(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	// Visited pages but nothing extracted: resume at extraction
	cp := models.NewCrawlCheckpoint()
	cp.PagesVisited = []string{"https://acme.example/"}
	require.NoError(t, env.checkpoints.SaveCheckpoint(ctx, company.ID, cp))

	require.NoError(t, env.svc.RecoverInProgressJobs(ctx))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseExtracting, updated.Phase)

	task, ack, err := env.broker.Receive(ctx, models.QueueExtract)
	require.NoError(t, err)
	assert.Equal(t, models.TaskExtractEntities, task.Type)
	require.NoError(t, ack())
}

func TestRecover_LiveJobWithoutCheckpointRestartsCrawl(t *testing.T) {
	env := newJobsEnv(t)
	ctx := context.Background()
	company := env.seedCompany(t, models.CompanyStatusInProgress, models.PhaseCrawling)

	require.NoError(t, env.svc.RecoverInProgressJobs(ctx))

	updated, err := env.manager.CompanyStorage().GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQueued, updated.Phase)

	task, ack, err := env.broker.Receive(ctx, models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCrawlCompany, task.Type)
	require.NoError(t, ack())
}
