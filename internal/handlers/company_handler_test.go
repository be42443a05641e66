package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/queue"
	"github.com/cirahq/cira/internal/services/checkpoint"
	"github.com/cirahq/cira/internal/services/export"
	"github.com/cirahq/cira/internal/services/jobs"
	"github.com/cirahq/cira/internal/services/progress"
	storagebadger "github.com/cirahq/cira/internal/storage/badger"
)

type noopEvents struct{}

func (noopEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) {}
func (noopEvents) Publish(context.Context, interfaces.Event) error         { return nil }
func (noopEvents) PublishSync(context.Context, interfaces.Event) error     { return nil }
func (noopEvents) Close() error                                            { return nil }

type handlerEnv struct {
	manager *storagebadger.Manager
	broker  *queue.Broker
	jobs    *jobs.Service
	handler *CompanyHandler
}

func newHandlerEnv(t *testing.T) *handlerEnv {
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
	exportSvc := export.NewService(logger, manager.CompanyStorage(), manager.AnalysisStorage())

	handler := NewCompanyHandler(
		logger,
		manager.CompanyStorage(),
		manager.PageStorage(),
		manager.EntityStorage(),
		manager.AnalysisStorage(),
		manager.TokenUsageStorage(),
		jobsSvc,
		progressSvc,
		exportSvc,
	)
	return &handlerEnv{manager: manager, broker: broker, jobs: jobsSvc, handler: handler}
}

func (e *handlerEnv) seedCompany(t *testing.T, status models.CompanyStatus) *models.Company {
	t.Helper()
	company := &models.Company{
		ID:      common.NewCompanyID(),
		Name:    "Acme Robotics",
		SeedURL: "https://acme.example",
		Status:  status,
		Phase:   models.PhaseQueued,
		Config:  models.DefaultCompanyConfig(),
	}
	require.NoError(t, e.manager.CompanyStorage().SaveCompany(context.Background(), company))
	return company
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateCompanyHandler_StartsJob(t *testing.T) {
	env := newHandlerEnv(t)

	payload := `{"name":"Acme Robotics","seed_url":"https://acme.example","max_pages":25}`
	req := httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	env.handler.CreateCompanyHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var company models.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))
	assert.Equal(t, models.CompanyStatusInProgress, company.Status)
	assert.Equal(t, 25, company.Config.MaxPages)

	task, ack, err := env.broker.Receive(context.Background(), models.QueueCrawl)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCrawlCompany, task.Type)
	assert.Equal(t, company.ID, task.CompanyID)
	require.NoError(t, ack())
}

func TestCreateCompanyHandler_Validation(t *testing.T) {
	env := newHandlerEnv(t)

	cases := []string{
		`{"seed_url":"https://acme.example"}`,
		`{"name":"Acme","seed_url":"not-a-url"}`,
		`{"name":"Acme","seed_url":"ftp://acme.example"}`,
		`{"name":"Acme","seed_url":"https://acme.example","analysis_mode":"extreme"}`,
	}
	for _, payload := range cases {
		req := httptest.NewRequest(http.MethodPost, "/companies", strings.NewReader(payload))
		rec := httptest.NewRecorder()
		env.handler.CreateCompanyHandler(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)

		body := decodeJSON(t, rec)
		errEnvelope := body["error"].(map[string]interface{})
		assert.Equal(t, CodeValidation, errEnvelope["code"])
	}
}

func TestGetCompanyHandler_NotFound(t *testing.T) {
	env := newHandlerEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/companies/cmp_missing", nil)
	rec := httptest.NewRecorder()
	env.handler.GetCompanyHandler(rec, req, "cmp_missing")

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeJSON(t, rec)
	errEnvelope := body["error"].(map[string]interface{})
	assert.Equal(t, CodeNotFound, errEnvelope["code"])
}

func TestDeleteCompanyHandler_RejectsRunningJob(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusInProgress)

	req := httptest.NewRequest(http.MethodDelete, "/companies/"+company.ID, nil)
	rec := httptest.NewRecorder()
	env.handler.DeleteCompanyHandler(rec, req, company.ID)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	_, err := env.manager.CompanyStorage().GetCompany(context.Background(), company.ID)
	assert.NoError(t, err)
}

func TestPauseHandler_InvalidState(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusCompleted)

	req := httptest.NewRequest(http.MethodPost, "/companies/"+company.ID+"/pause", nil)
	rec := httptest.NewRecorder()
	env.handler.PauseHandler(rec, req, company.ID)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeJSON(t, rec)
	errEnvelope := body["error"].(map[string]interface{})
	assert.Equal(t, CodeInvalidState, errEnvelope["code"])
}

func TestRescanHandler_RestartsTerminalJob(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusFailed)

	req := httptest.NewRequest(http.MethodPost, "/companies/"+company.ID+"/rescan", nil)
	rec := httptest.NewRecorder()
	env.handler.RescanHandler(rec, req, company.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	reloaded, err := env.manager.CompanyStorage().GetCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyStatusInProgress, reloaded.Status)
}

func TestEntitiesHandler_FiltersByType(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusCompleted)
	ctx := context.Background()

	entities := []*models.Entity{
		{ID: common.NewEntityID(), CompanyID: company.ID, Type: models.EntityTypePerson, Value: "Jordan Birch", Confidence: 0.9},
		{ID: common.NewEntityID(), CompanyID: company.ID, Type: models.EntityTypePerson, Value: "Sam Okafor", Confidence: 0.8},
		{ID: common.NewEntityID(), CompanyID: company.ID, Type: models.EntityTypeEmail, Value: "info@acme.example", Confidence: 1.0},
	}
	require.NoError(t, env.manager.EntityStorage().SaveEntities(ctx, entities))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/companies/%s/entities?type=person", company.ID), nil)
	rec := httptest.NewRecorder()
	env.handler.EntitiesHandler(rec, req, company.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestExportHandler_SetsDownloadHeaders(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusCompleted)

	analysis := &models.Analysis{
		ID:        common.NewAnalysisID(),
		CompanyID: company.ID,
		Version:   1,
		Sections: []models.AnalysisSection{
			{ID: "company_overview", Title: "Company Overview", Content: "Overview text.", Confidence: 0.8},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.manager.AnalysisStorage().SaveAnalysis(context.Background(), analysis))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/companies/%s/export?format=markdown", company.ID), nil)
	rec := httptest.NewRecorder()
	env.handler.ExportHandler(rec, req, company.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store, no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "# Acme Robotics")
}

func TestExportHandler_UnknownFormat(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusCompleted)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/companies/%s/export?format=xlsx", company.ID), nil)
	rec := httptest.NewRecorder()
	env.handler.ExportHandler(rec, req, company.ID)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareHandler_DiffsSections(t *testing.T) {
	env := newHandlerEnv(t)
	company := env.seedCompany(t, models.CompanyStatusCompleted)
	ctx := context.Background()

	v1 := &models.Analysis{
		ID:        common.NewAnalysisID(),
		CompanyID: company.ID,
		Version:   1,
		Sections: []models.AnalysisSection{
			{ID: "company_overview", Title: "Company Overview", Content: "Old overview."},
			{ID: "technology", Title: "Technology", Content: "Go and Badger."},
		},
		CreatedAt: time.Now(),
	}
	v2 := &models.Analysis{
		ID:        common.NewAnalysisID(),
		CompanyID: company.ID,
		Version:   2,
		Sections: []models.AnalysisSection{
			{ID: "company_overview", Title: "Company Overview", Content: "New overview."},
			{ID: "technology", Title: "Technology", Content: "Go and Badger."},
		},
		CreatedAt: time.Now(),
	}
	require.NoError(t, env.manager.AnalysisStorage().SaveAnalysis(ctx, v1))
	require.NoError(t, env.manager.AnalysisStorage().SaveAnalysis(ctx, v2))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/companies/%s/compare?from=1&to=2", company.ID), nil)
	rec := httptest.NewRecorder()
	env.handler.CompareHandler(rec, req, company.ID)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	sections := body["sections"].([]interface{})
	require.Len(t, sections, 2)

	byID := map[string]map[string]interface{}{}
	for _, raw := range sections {
		section := raw.(map[string]interface{})
		byID[section["id"].(string)] = section
	}
	assert.Equal(t, true, byID["company_overview"]["changed"])
	assert.Equal(t, false, byID["technology"]["changed"])
}

func TestSplitResourcePath(t *testing.T) {
	id, action := SplitResourcePath("/companies/cmp_1/pause", "/companies/")
	assert.Equal(t, "cmp_1", id)
	assert.Equal(t, "pause", action)

	id, action = SplitResourcePath("/companies/cmp_1", "/companies/")
	assert.Equal(t, "cmp_1", id)
	assert.Equal(t, "", action)

	id, _ = SplitResourcePath("/companies/", "/companies/")
	assert.Equal(t, "", id)
}
