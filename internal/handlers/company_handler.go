package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
	"github.com/cirahq/cira/internal/services/export"
	"github.com/cirahq/cira/internal/services/jobs"
	"github.com/cirahq/cira/internal/services/progress"
)

// CompanyHandler serves the company resource and its sub-resources.
type CompanyHandler struct {
	logger    arbor.ILogger
	companies interfaces.CompanyStorage
	pages     interfaces.PageStorage
	entities  interfaces.EntityStorage
	analyses  interfaces.AnalysisStorage
	tokens    interfaces.TokenUsageStorage
	jobs      *jobs.Service
	progress  *progress.Service
	export    *export.Service
}

func NewCompanyHandler(
	logger arbor.ILogger,
	companies interfaces.CompanyStorage,
	pages interfaces.PageStorage,
	entities interfaces.EntityStorage,
	analyses interfaces.AnalysisStorage,
	tokens interfaces.TokenUsageStorage,
	jobsSvc *jobs.Service,
	progressSvc *progress.Service,
	exportSvc *export.Service,
) *CompanyHandler {
	return &CompanyHandler{
		logger:    logger,
		companies: companies,
		pages:     pages,
		entities:  entities,
		analyses:  analyses,
		tokens:    tokens,
		jobs:      jobsSvc,
		progress:  progressSvc,
		export:    exportSvc,
	}
}

type createCompanyRequest struct {
	Name         string `json:"name"`
	SeedURL      string `json:"seed_url"`
	Industry     string `json:"industry,omitempty"`
	AnalysisMode string `json:"analysis_mode,omitempty"`
	MaxPages     int    `json:"max_pages,omitempty"`
	MaxDepth     int    `json:"max_depth,omitempty"`
	Autostart    *bool  `json:"autostart,omitempty"`
}

// CreateCompanyHandler registers a company and, by default, starts its
// pipeline immediately.
func (h *CompanyHandler) CreateCompanyHandler(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if !DecodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, CodeValidation, "name is required")
		return
	}
	if !validSeedURL(req.SeedURL) {
		WriteError(w, http.StatusBadRequest, CodeValidation, "seed_url must be an absolute http(s) URL")
		return
	}

	config := models.DefaultCompanyConfig()
	if req.AnalysisMode != "" {
		switch models.AnalysisMode(req.AnalysisMode) {
		case models.AnalysisModeQuick, models.AnalysisModeStandard, models.AnalysisModeDeep:
			config.AnalysisMode = models.AnalysisMode(req.AnalysisMode)
		default:
			WriteError(w, http.StatusBadRequest, CodeValidation, "analysis_mode must be quick, standard, or deep")
			return
		}
	}
	if req.MaxPages > 0 {
		config.MaxPages = req.MaxPages
	}
	if req.MaxDepth > 0 {
		config.MaxDepth = req.MaxDepth
	}

	company := &models.Company{
		ID:       common.NewCompanyID(),
		Name:     req.Name,
		SeedURL:  req.SeedURL,
		Industry: req.Industry,
		Status:   models.CompanyStatusPending,
		Phase:    models.PhaseQueued,
		Config:   config,
	}
	if err := h.companies.SaveCompany(r.Context(), company); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save company")
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to save company")
		return
	}

	if req.Autostart == nil || *req.Autostart {
		if err := h.jobs.StartJob(r.Context(), company.ID); err != nil {
			h.logger.Error().Err(err).Str("company_id", company.ID).Msg("Failed to start job")
			WriteError(w, http.StatusInternalServerError, CodeInternal, "company created but job start failed")
			return
		}
		company, _ = h.companies.GetCompany(r.Context(), company.ID)
	}

	WriteJSON(w, http.StatusCreated, company)
}

// ListCompaniesHandler lists companies, optionally filtered by status.
func (h *CompanyHandler) ListCompaniesHandler(w http.ResponseWriter, r *http.Request) {
	var (
		companies []*models.Company
		err       error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		companies, err = h.companies.ListCompaniesByStatus(r.Context(), models.CompanyStatus(status))
	} else {
		companies, err = h.companies.ListCompanies(r.Context())
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list companies")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"companies": companies,
		"count":     len(companies),
	})
}

// GetCompanyHandler returns one company.
func (h *CompanyHandler) GetCompanyHandler(w http.ResponseWriter, r *http.Request, id string) {
	company, ok := h.loadCompany(w, r, id)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, company)
}

// DeleteCompanyHandler removes a company and all dependent records. Active
// jobs must be cancelled first.
func (h *CompanyHandler) DeleteCompanyHandler(w http.ResponseWriter, r *http.Request, id string) {
	company, ok := h.loadCompany(w, r, id)
	if !ok {
		return
	}
	if company.Status == models.CompanyStatusInProgress || company.Status == models.CompanyStatusPaused {
		WriteError(w, http.StatusUnprocessableEntity, CodeInvalidState, "cancel the running job before deleting the company")
		return
	}
	if err := h.companies.DeleteCompany(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to delete company")
		return
	}
	WriteSuccess(w, "company deleted")
}

// PauseHandler pauses the company's running job.
func (h *CompanyHandler) PauseHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.progress.Pause(r.Context(), id); err != nil {
		h.writeControlError(w, err, "pause")
		return
	}
	WriteSuccess(w, "pause requested")
}

// ResumeHandler resumes a paused job.
func (h *CompanyHandler) ResumeHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.progress.Resume(r.Context(), id); err != nil {
		h.writeControlError(w, err, "resume")
		return
	}
	WriteSuccess(w, "job resumed")
}

// CancelHandler cancels the company's job.
func (h *CompanyHandler) CancelHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.progress.Cancel(r.Context(), id); err != nil {
		h.writeControlError(w, err, "cancel")
		return
	}
	WriteSuccess(w, "cancel requested")
}

// RescanHandler restarts the pipeline for a terminal company.
func (h *CompanyHandler) RescanHandler(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.jobs.StartJob(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobAlreadyRunning), errors.Is(err, jobs.ErrJobPaused):
			WriteError(w, http.StatusUnprocessableEntity, CodeInvalidState, err.Error())
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, CodeNotFound, "company not found")
		default:
			WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to start rescan")
		}
		return
	}
	WriteSuccess(w, "rescan started")
}

// ProgressHandler reports live pipeline progress.
func (h *CompanyHandler) ProgressHandler(w http.ResponseWriter, r *http.Request, id string) {
	snapshot, err := h.progress.Progress(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, CodeNotFound, "company not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to load progress")
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// EntitiesHandler lists the company's merged entities, optionally by type.
func (h *CompanyHandler) EntitiesHandler(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.loadCompany(w, r, id); !ok {
		return
	}
	var (
		entities []*models.Entity
		err      error
	)
	if entityType := r.URL.Query().Get("type"); entityType != "" {
		entities, err = h.entities.ListEntitiesByType(r.Context(), id, models.EntityType(entityType))
	} else {
		entities, err = h.entities.ListEntitiesByCompany(r.Context(), id)
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list entities")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}

// PagesHandler lists the company's crawled pages, optionally by page type.
func (h *CompanyHandler) PagesHandler(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.loadCompany(w, r, id); !ok {
		return
	}
	var (
		pages []*models.Page
		err   error
	)
	if pageType := r.URL.Query().Get("type"); pageType != "" {
		pages, err = h.pages.ListPagesByType(r.Context(), id, models.PageType(pageType))
	} else {
		pages, err = h.pages.ListPagesByCompany(r.Context(), id)
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list pages")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pages": pages,
		"count": len(pages),
	})
}

// TokensHandler reports the company's LLM token spend, per call and
// aggregated.
func (h *CompanyHandler) TokensHandler(w http.ResponseWriter, r *http.Request, id string) {
	company, ok := h.loadCompany(w, r, id)
	if !ok {
		return
	}
	calls, err := h.tokens.ListTokenUsageByCompany(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list token usage")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"company_id":     id,
		"input_tokens":   company.InputTokens,
		"output_tokens":  company.OutputTokens,
		"total_tokens":   company.TotalTokens,
		"total_cost_usd": company.TotalCostUSD,
		"calls":          calls,
	})
}

// VersionsHandler lists the retained analysis versions, newest first.
func (h *CompanyHandler) VersionsHandler(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.loadCompany(w, r, id); !ok {
		return
	}
	analyses, err := h.analyses.ListAnalysesByCompany(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to list analyses")
		return
	}

	versions := make([]map[string]interface{}, 0, len(analyses))
	for _, a := range analyses {
		failed := 0
		for _, section := range a.Sections {
			if section.Failed {
				failed++
			}
		}
		versions = append(versions, map[string]interface{}{
			"version":           a.Version,
			"created_at":        a.CreatedAt,
			"sections":          len(a.Sections),
			"failed_sections":   failed,
			"total_tokens":      a.Tokens.TotalTokens,
			"cost_usd":          a.Tokens.CostUSD,
			"executive_summary": a.ExecutiveSummary,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// CompareHandler diffs two analysis versions section by section.
func (h *CompanyHandler) CompareHandler(w http.ResponseWriter, r *http.Request, id string) {
	from, err1 := strconv.Atoi(r.URL.Query().Get("from"))
	to, err2 := strconv.Atoi(r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil || from <= 0 || to <= 0 {
		WriteError(w, http.StatusBadRequest, CodeValidation, "from and to version query parameters are required")
		return
	}

	fromAnalysis, err := h.analyses.GetAnalysis(r.Context(), id, from)
	if err != nil {
		WriteError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("analysis version %d not found", from))
		return
	}
	toAnalysis, err := h.analyses.GetAnalysis(r.Context(), id, to)
	if err != nil {
		WriteError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("analysis version %d not found", to))
		return
	}

	type sectionDiff struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Changed bool   `json:"changed"`
		From    string `json:"from,omitempty"`
		To      string `json:"to,omitempty"`
	}

	var diffs []sectionDiff
	for _, toSection := range toAnalysis.Sections {
		diff := sectionDiff{ID: toSection.ID, Title: toSection.Title}
		fromSection := fromAnalysis.Section(toSection.ID)
		if fromSection == nil || fromSection.Content != toSection.Content {
			diff.Changed = true
			if fromSection != nil {
				diff.From = fromSection.Content
			}
			diff.To = toSection.Content
		}
		diffs = append(diffs, diff)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"company_id": id,
		"from":       from,
		"to":         to,
		"sections":   diffs,
	})
}

// ExportHandler streams the analysis report as a download.
func (h *CompanyHandler) ExportHandler(w http.ResponseWriter, r *http.Request, id string) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatMarkdown
	}
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, CodeValidation, "version must be a positive integer")
			return
		}
		version = parsed
	}

	artifact, err := h.export.Export(r.Context(), id, format, version)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnknownFormat):
			WriteError(w, http.StatusBadRequest, CodeValidation, err.Error())
		case errors.Is(err, interfaces.ErrNotFound):
			WriteError(w, http.StatusNotFound, CodeNotFound, "company or analysis not found")
		default:
			WriteError(w, http.StatusInternalServerError, CodeInternal, "export failed")
		}
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Data)
}

func (h *CompanyHandler) loadCompany(w http.ResponseWriter, r *http.Request, id string) (*models.Company, bool) {
	company, err := h.companies.GetCompany(r.Context(), id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, CodeNotFound, "company not found")
		} else {
			WriteError(w, http.StatusInternalServerError, CodeInternal, "failed to load company")
		}
		return nil, false
	}
	return company, true
}

func (h *CompanyHandler) writeControlError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, "company not found")
	case errors.Is(err, progress.ErrNotPausable), errors.Is(err, progress.ErrNotResumable):
		WriteError(w, http.StatusUnprocessableEntity, CodeInvalidState, err.Error())
	case errors.Is(err, progress.ErrLocked):
		WriteError(w, http.StatusConflict, CodeConflict, "another operation holds the job lock, retry shortly")
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("Job control operation failed")
		WriteError(w, http.StatusInternalServerError, CodeInternal, op+" failed")
	}
}

func validSeedURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
