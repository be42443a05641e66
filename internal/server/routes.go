package server

import (
	"net/http"

	"github.com/cirahq/cira/internal/handlers"
)

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Companies
	mux.HandleFunc("/companies", s.handleCompaniesCollection)
	mux.HandleFunc("/companies/", s.handleCompanyRoutes)

	// Batches
	mux.HandleFunc("/batches", s.handleBatchesCollection)
	mux.HandleFunc("/batches/schedule", s.handleBatchSchedule)
	mux.HandleFunc("/batches/", s.handleBatchRoutes)

	// System
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/version", s.app.StatusHandler.VersionHandler)

	mux.HandleFunc("/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleCompaniesCollection routes /companies (list and create).
func (s *Server) handleCompaniesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.CompanyHandler.ListCompaniesHandler(w, r)
	case http.MethodPost:
		s.app.CompanyHandler.CreateCompanyHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, handlers.CodeValidation, "Method not allowed")
	}
}

// handleCompanyRoutes routes /companies/{id} and its sub-resources.
func (s *Server) handleCompanyRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := handlers.SplitResourcePath(r.URL.Path, "/companies/")
	if id == "" {
		s.app.StatusHandler.NotFoundHandler(w, r)
		return
	}

	h := s.app.CompanyHandler
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.GetCompanyHandler(w, r, id)
		case http.MethodDelete:
			h.DeleteCompanyHandler(w, r, id)
		default:
			handlers.WriteError(w, http.StatusMethodNotAllowed, handlers.CodeValidation, "Method not allowed")
		}
	case "pause":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.PauseHandler(w, r, id)
		}
	case "resume":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.ResumeHandler(w, r, id)
		}
	case "cancel":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.CancelHandler(w, r, id)
		}
	case "rescan":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.RescanHandler(w, r, id)
		}
	case "progress":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.ProgressHandler(w, r, id)
		}
	case "entities":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.EntitiesHandler(w, r, id)
		}
	case "pages":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.PagesHandler(w, r, id)
		}
	case "tokens":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.TokensHandler(w, r, id)
		}
	case "versions":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.VersionsHandler(w, r, id)
		}
	case "compare":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.CompareHandler(w, r, id)
		}
	case "export":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			h.ExportHandler(w, r, id)
		}
	default:
		s.app.StatusHandler.NotFoundHandler(w, r)
	}
}

// handleBatchesCollection routes /batches (list and create).
func (s *Server) handleBatchesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.BatchHandler.ListBatchesHandler(w, r)
	case http.MethodPost:
		s.app.BatchHandler.CreateBatchHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, handlers.CodeValidation, "Method not allowed")
	}
}

// handleBatchSchedule routes POST /batches/schedule.
func (s *Server) handleBatchSchedule(w http.ResponseWriter, r *http.Request) {
	if handlers.RequireMethod(w, r, http.MethodPost) {
		s.app.BatchHandler.ScheduleHandler(w, r)
	}
}

// handleBatchRoutes routes /batches/{id} and its control actions.
func (s *Server) handleBatchRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := handlers.SplitResourcePath(r.URL.Path, "/batches/")
	if id == "" {
		s.app.StatusHandler.NotFoundHandler(w, r)
		return
	}

	h := s.app.BatchHandler
	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.GetBatchHandler(w, r, id)
		case http.MethodDelete:
			h.DeleteBatchHandler(w, r, id)
		default:
			handlers.WriteError(w, http.StatusMethodNotAllowed, handlers.CodeValidation, "Method not allowed")
		}
	case "start":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.StartHandler(w, r, id)
		}
	case "pause":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.PauseHandler(w, r, id)
		}
	case "resume":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.ResumeHandler(w, r, id)
		}
	case "cancel":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			h.CancelHandler(w, r, id)
		}
	default:
		s.app.StatusHandler.NotFoundHandler(w, r)
	}
}
