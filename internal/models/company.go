package models

import (
	"time"
)

// CompanyStatus represents the lifecycle status of a company job
type CompanyStatus string

const (
	CompanyStatusPending    CompanyStatus = "pending"
	CompanyStatusInProgress CompanyStatus = "in_progress"
	CompanyStatusPaused     CompanyStatus = "paused"
	CompanyStatusCompleted  CompanyStatus = "completed"
	CompanyStatusFailed     CompanyStatus = "failed"
)

// Phase represents a step of the per-company pipeline state machine
type Phase string

const (
	PhaseQueued     Phase = "queued"
	PhaseCrawling   Phase = "crawling"
	PhaseExtracting Phase = "extracting"
	PhaseAnalyzing  Phase = "analyzing"
	PhaseGenerating Phase = "generating"
	PhaseCompleted  Phase = "completed"
)

// AnalysisMode controls how much LLM work is done per company
type AnalysisMode string

const (
	AnalysisModeQuick    AnalysisMode = "quick"
	AnalysisModeStandard AnalysisMode = "standard"
	AnalysisModeDeep     AnalysisMode = "deep"
)

// CompanyConfig holds per-company pipeline limits and toggles
type CompanyConfig struct {
	AnalysisMode     AnalysisMode  `json:"analysis_mode"`
	MaxPages         int           `json:"max_pages"`
	MaxDepth         int           `json:"max_depth"`
	CrawlTimeout     time.Duration `json:"crawl_timeout"`
	PipelineTimeout  time.Duration `json:"pipeline_timeout"`
	FollowLinkedIn   bool          `json:"follow_linkedin"`
	FollowTwitter    bool          `json:"follow_twitter"`
	FollowFacebook   bool          `json:"follow_facebook"`
	FollowInstagram  bool          `json:"follow_instagram"`
	FollowYouTube    bool          `json:"follow_youtube"`
	FollowGitHub     bool          `json:"follow_github"`
	ExtractTechStack bool          `json:"extract_tech_stack"`
	UseSitemap       bool          `json:"use_sitemap"`
	ExcludePatterns  []string      `json:"exclude_patterns,omitempty"`
}

// FollowsPlatform reports whether the config allows following links to the
// given social platform.
func (c *CompanyConfig) FollowsPlatform(platform string) bool {
	switch platform {
	case PlatformLinkedIn:
		return c.FollowLinkedIn
	case PlatformTwitter:
		return c.FollowTwitter
	case PlatformFacebook:
		return c.FollowFacebook
	case PlatformInstagram:
		return c.FollowInstagram
	case PlatformYouTube:
		return c.FollowYouTube
	case PlatformGitHub:
		return c.FollowGitHub
	}
	return false
}

// DefaultCompanyConfig returns the config applied when a company is created
// without explicit limits.
func DefaultCompanyConfig() CompanyConfig {
	return CompanyConfig{
		AnalysisMode:    AnalysisModeStandard,
		MaxPages:        100,
		MaxDepth:        3,
		CrawlTimeout:    15 * time.Minute,
		PipelineTimeout: 60 * time.Minute,
		FollowLinkedIn:  true,
		FollowGitHub:    true,
		UseSitemap:      true,
	}
}

// Company is the root aggregate: one research target, its pipeline state,
// and its accumulated token spend. All dependent records (pages, entities,
// sessions, analyses, token usage) carry CompanyID back-references only.
type Company struct {
	ID       string `json:"id" badgerhold:"key"`
	Name     string `json:"name"`
	SeedURL  string `json:"seed_url"`
	Industry string `json:"industry,omitempty"`

	Status CompanyStatus `json:"status" badgerhold:"index"`
	Phase  Phase         `json:"phase"`

	Config CompanyConfig `json:"config"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	PausedAt    *time.Time `json:"paused_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// TotalPausedMs accumulates time spent paused so timeout accounting can
	// subtract it from wall-clock elapsed.
	TotalPausedMs int64 `json:"total_paused_ms"`

	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	// Errors collects non-fatal pipeline errors surfaced by the progress API.
	Errors []string `json:"errors,omitempty"`
}

// IsTerminal reports whether the company has reached a final status.
func (c *Company) IsTerminal() bool {
	return c.Status == CompanyStatusCompleted || c.Status == CompanyStatusFailed
}

// Elapsed returns active pipeline time: wall clock since start minus the
// accumulated paused duration. Zero if the job never started.
func (c *Company) Elapsed(now time.Time) time.Duration {
	if c.StartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*c.StartedAt) - time.Duration(c.TotalPausedMs)*time.Millisecond
	if c.PausedAt != nil {
		elapsed -= now.Sub(*c.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ValidPhaseTransitions is the state machine edge set. COMPLETED has no
// outgoing edges; CRAWLING may short-circuit to COMPLETED when a crawl
// yields nothing to extract.
var ValidPhaseTransitions = map[Phase][]Phase{
	PhaseQueued:     {PhaseCrawling},
	PhaseCrawling:   {PhaseExtracting, PhaseCompleted},
	PhaseExtracting: {PhaseAnalyzing},
	PhaseAnalyzing:  {PhaseGenerating},
	PhaseGenerating: {PhaseCompleted},
	PhaseCompleted:  {},
}

// CanTransition reports whether moving from one phase to another is legal.
func CanTransition(from, to Phase) bool {
	for _, next := range ValidPhaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
