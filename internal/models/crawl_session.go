package models

import "time"

// SessionStatus is the lifecycle of a crawl session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// CrawlSession tracks one crawl run for a company. A company has at most one
// active session at a time; the latest session carries the checkpoint blob.
type CrawlSession struct {
	ID        string `json:"id" badgerhold:"key"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	Status SessionStatus `json:"status"`

	PagesCrawled          int `json:"pages_crawled"`
	PagesQueued           int `json:"pages_queued"`
	MaxDepthReached       int `json:"max_depth_reached"`
	ExternalLinksFollowed int `json:"external_links_followed"`

	// Checkpoint is the serialized CrawlCheckpoint, stored as a JSON blob
	// and replaced atomically on every save.
	Checkpoint []byte `json:"checkpoint,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}
