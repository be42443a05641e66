package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// StatusHandler serves health, version, and queue depth endpoints.
type StatusHandler struct {
	logger arbor.ILogger
	queue  interfaces.TaskQueue
}

func NewStatusHandler(logger arbor.ILogger, queue interfaces.TaskQueue) *StatusHandler {
	return &StatusHandler{logger: logger, queue: queue}
}

// HealthHandler reports liveness and queue depths.
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	queues := map[string]int{}
	for _, queue := range []models.QueueName{models.QueueCrawl, models.QueueExtract, models.QueueAnalyze} {
		depth, err := h.queue.Len(r.Context(), queue)
		if err != nil {
			h.logger.Warn().Err(err).Str("queue", string(queue)).Msg("Failed to read queue depth")
			continue
		}
		queues[string(queue)] = depth
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"queues":  queues,
	})
}

// VersionHandler returns build information.
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
	})
}

// NotFoundHandler handles unmatched routes with the JSON envelope.
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, CodeNotFound, "the requested endpoint does not exist: "+r.URL.Path)
}
