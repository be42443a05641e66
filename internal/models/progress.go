package models

import "time"

// JobStatusSnapshot is the small JSON document kept in the ephemeral store
// under cira:job:<id>:status. The database remains the source of truth; this
// exists for cheap polling and staleness checks during recovery.
type JobStatusSnapshot struct {
	CompanyID string        `json:"company_id"`
	Status    CompanyStatus `json:"status"`
	Phase     Phase         `json:"phase"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// JobProgress is the polling projection served by the progress endpoint and
// cached under cira:job:<id>:progress.
type JobProgress struct {
	CompanyID string        `json:"company_id"`
	Status    CompanyStatus `json:"status"`
	Phase     Phase         `json:"phase"`

	PagesCrawled      int `json:"pages_crawled"`
	PagesQueued       int `json:"pages_queued"`
	EntitiesExtracted int `json:"entities_extracted"`
	SectionsCompleted int `json:"sections_completed"`

	ElapsedMs     int64    `json:"elapsed_ms"`
	RemainingMs   int64    `json:"remaining_ms"`
	TotalPausedMs int64    `json:"total_paused_ms"`
	Activity      string   `json:"activity,omitempty"`
	Errors        []string `json:"errors,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
