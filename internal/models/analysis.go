package models

import "time"

// MaxAnalysisVersions bounds retained analyses per company; the oldest is
// evicted when a fourth is saved.
const MaxAnalysisVersions = 3

// AnalysisSection is one synthesized section of a company analysis.
type AnalysisSection struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
	Failed     bool     `json:"failed,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// TokenBreakdown summarizes token spend for one analysis run.
type TokenBreakdown struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Analysis is a versioned synthesis result. Section order follows the fixed
// section plan; missing sections are permitted only when marked failed.
type Analysis struct {
	ID        string `json:"id" badgerhold:"key"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	Version          int               `json:"version"`
	ExecutiveSummary string            `json:"executive_summary"`
	Sections         []AnalysisSection `json:"sections"`
	Tokens           TokenBreakdown    `json:"tokens"`

	CreatedAt time.Time `json:"created_at"`
}

// Section returns the section with the given plan id, or nil.
func (a *Analysis) Section(id string) *AnalysisSection {
	for i := range a.Sections {
		if a.Sections[i].ID == id {
			return &a.Sections[i]
		}
	}
	return nil
}
