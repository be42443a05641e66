package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/batch"
	"github.com/cirahq/cira/internal/services/scheduler"
)

// BatchHandler serves the batch resource and its control actions.
type BatchHandler struct {
	logger    arbor.ILogger
	batches   interfaces.BatchStorage
	service   *batch.Service
	scheduler *scheduler.Service
}

func NewBatchHandler(logger arbor.ILogger, batches interfaces.BatchStorage, batchSvc *batch.Service, schedulerSvc *scheduler.Service) *BatchHandler {
	return &BatchHandler{
		logger:    logger,
		batches:   batches,
		service:   batchSvc,
		scheduler: schedulerSvc,
	}
}

type createBatchRequest struct {
	Name          string   `json:"name"`
	CompanyIDs    []string `json:"company_ids"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Priority      int      `json:"priority,omitempty"`
}

// CreateBatchHandler registers a pending batch over existing companies.
func (h *BatchHandler) CreateBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if !DecodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, CodeValidation, "name is required")
		return
	}

	created, err := h.service.CreateBatch(r.Context(), req.Name, req.CompanyIDs, req.MaxConcurrent, req.Priority)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrEmptyBatch):
			WriteError(w, http.StatusBadRequest, CodeValidation, "company_ids must not be empty")
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, CodeNotFound, err.Error())
		default:
			WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to create batch")
		}
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

// ListBatchesHandler lists batches, optionally filtered by status.
func (h *BatchHandler) ListBatchesHandler(w http.ResponseWriter, r *http.Request) {
	var (
		batches []*models.BatchJob
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		batches, err = h.batches.ListBatchesByStatus(r.Context(), models.BatchStatus(status))
	} else {
		batches, err = h.batches.ListBatches(r.Context())
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list batches")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// GetBatchHandler returns one batch with its progress fraction.
func (h *BatchHandler) GetBatchHandler(w http.ResponseWriter, r *http.Request, id string) {
	batchJob, ok := h.loadBatch(w, r, id)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batch":    batchJob,
		"progress": batchJob.Progress(),
	})
}

// DeleteBatchHandler removes a batch record. Running batches must be
// cancelled first.
func (h *BatchHandler) DeleteBatchHandler(w http.ResponseWriter, r *http.Request, id string) {
	batchJob, ok := h.loadBatch(w, r, id)
	if !ok {
		return
	}
	if batchJob.Status == models.BatchStatusRunning || batchJob.Status == models.BatchStatusPaused {
		WriteError(w, http.StatusUnprocessableEntity, CodeInvalidState, "cancel the batch before deleting it")
		return
	}
	h.scheduler.UnscheduleBatch(id)
	if err := h.batches.DeleteBatch(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to delete batch")
		return
	}
	WriteSuccess(w, "batch deleted")
}

// StartHandler begins scheduling the batch's companies.
func (h *BatchHandler) StartHandler(w http.ResponseWriter, r *http.Request, id string) {
	h.control(w, r, id, "start", h.service.StartBatch)
}

// PauseHandler pauses the batch and its running jobs.
func (h *BatchHandler) PauseHandler(w http.ResponseWriter, r *http.Request, id string) {
	h.control(w, r, id, "pause", h.service.PauseBatch)
}

// ResumeHandler resumes a paused batch.
func (h *BatchHandler) ResumeHandler(w http.ResponseWriter, r *http.Request, id string) {
	h.control(w, r, id, "resume", h.service.ResumeBatch)
}

// CancelHandler cancels the batch and its non-terminal jobs.
func (h *BatchHandler) CancelHandler(w http.ResponseWriter, r *http.Request, id string) {
	h.scheduler.UnscheduleBatch(id)
	h.control(w, r, id, "cancel", h.service.CancelBatch)
}

type scheduleBatchRequest struct {
	BatchID string `json:"batch_id"`
	Cron    string `json:"cron"`
}

// ScheduleHandler registers a cron-triggered start for a batch.
func (h *BatchHandler) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleBatchRequest
	if !DecodeBody(w, r, &req) {
		return
	}
	if req.BatchID == "" || req.Cron == "" {
		WriteError(w, http.StatusBadRequest, CodeValidation, "batch_id and cron are required")
		return
	}
	if _, ok := h.loadBatch(w, r, req.BatchID); !ok {
		return
	}
	if err := h.scheduler.ScheduleBatch(r.Context(), req.BatchID, req.Cron); err != nil {
		WriteError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	WriteSuccess(w, "batch scheduled")
}

func (h *BatchHandler) control(w http.ResponseWriter, r *http.Request, id, op string, fn func(ctx context.Context, id string) error) {
	if err := fn(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, CodeNotFound, "batch not found")
		default:
			h.logger.Error().Err(err).Str("batch_id", id).Str("op", op).Msg("Batch control operation failed")
			WriteError(w, http.StatusUnprocessableEntity, CodeInvalidState, err.Error())
		}
		return
	}
	WriteSuccess(w, "batch "+op+" accepted")
}

func (h *BatchHandler) loadBatch(w http.ResponseWriter, r *http.Request, id string) (*models.BatchJob, bool) {
	batchJob, err := h.batches.GetBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, CodeNotFound, "batch not found")
		} else {
			WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to load batch")
		}
		return nil, false
	}
	return batchJob, true
}
