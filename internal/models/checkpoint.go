package models

import (
	"encoding/json"
	"time"
)

// CheckpointVersion is the current checkpoint schema version. Loads of older
// or malformed blobs fall back to defaults, preserving what parses.
const CheckpointVersion = 1

// CrawlCheckpoint is the durable snapshot of pipeline progress for one
// company, sufficient to resume after pause, timeout, or cold start.
type CrawlCheckpoint struct {
	Version int `json:"version"`

	PagesVisited       []string     `json:"pages_visited"`
	PagesQueued        []QueuedPage `json:"pages_queued"`
	ContentHashes      []string     `json:"content_hashes,omitempty"`
	ExternalLinksFound []string     `json:"external_links_found"`

	CurrentDepth       int       `json:"current_depth"`
	CrawlStartTime     time.Time `json:"crawl_start_time"`
	LastCheckpointTime time.Time `json:"last_checkpoint_time"`

	EntitiesExtractedCount    int      `json:"entities_extracted_count"`
	AnalysisSectionsCompleted []string `json:"analysis_sections_completed"`
}

// QueuedPage is a frontier entry preserved across restarts.
type QueuedPage struct {
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	Priority int    `json:"priority"`
	Retries  int    `json:"retries,omitempty"`
}

// NewCrawlCheckpoint returns an empty checkpoint at the current version.
func NewCrawlCheckpoint() *CrawlCheckpoint {
	return &CrawlCheckpoint{
		Version:                   CheckpointVersion,
		PagesVisited:              []string{},
		PagesQueued:               []QueuedPage{},
		ExternalLinksFound:        []string{},
		AnalysisSectionsCompleted: []string{},
	}
}

// ResumePhase interprets checkpoint progress into the phase a recovered job
// should resume from.
func (c *CrawlCheckpoint) ResumePhase() Phase {
	switch {
	case len(c.AnalysisSectionsCompleted) > 0 || c.EntitiesExtractedCount > 0:
		return PhaseAnalyzing
	case len(c.PagesVisited) > 0:
		return PhaseExtracting
	case len(c.PagesQueued) > 0:
		return PhaseCrawling
	default:
		return PhaseQueued
	}
}

// Marshal serializes the checkpoint to its storage form.
func (c *CrawlCheckpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCrawlCheckpoint parses a checkpoint blob, filling defaults for
// missing fields. Malformed blobs yield a fresh checkpoint rather than an
// error so recovery never blocks on a bad snapshot.
func UnmarshalCrawlCheckpoint(data []byte) *CrawlCheckpoint {
	cp := NewCrawlCheckpoint()
	if len(data) == 0 {
		return cp
	}
	if err := json.Unmarshal(data, cp); err != nil {
		return NewCrawlCheckpoint()
	}
	if cp.Version == 0 {
		cp.Version = CheckpointVersion
	}
	if cp.PagesVisited == nil {
		cp.PagesVisited = []string{}
	}
	if cp.PagesQueued == nil {
		cp.PagesQueued = []QueuedPage{}
	}
	if cp.ExternalLinksFound == nil {
		cp.ExternalLinksFound = []string{}
	}
	if cp.AnalysisSectionsCompleted == nil {
		cp.AnalysisSectionsCompleted = []string{}
	}
	return cp
}
