package models

import "time"

// CallType categorizes an LLM call for token accounting.
type CallType string

const (
	CallTypeExtraction    CallType = "extraction"
	CallTypeAnalysis      CallType = "analysis"
	CallTypeSummarization CallType = "summarization"
)

// TokenUsage is one recorded LLM call.
type TokenUsage struct {
	ID        string `json:"id" badgerhold:"key"`
	CompanyID string `json:"company_id" badgerhold:"index"`

	CallType     CallType `json:"call_type"`
	Section      string   `json:"section,omitempty"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`

	CreatedAt time.Time `json:"created_at"`
}

// TotalTokens returns input + output for this call.
func (t *TokenUsage) TotalTokens() int {
	return t.InputTokens + t.OutputTokens
}

// CompanyTokenUsage is the aggregate view returned by the tokens endpoint.
type CompanyTokenUsage struct {
	CompanyID    string                      `json:"company_id"`
	InputTokens  int                         `json:"input_tokens"`
	OutputTokens int                         `json:"output_tokens"`
	TotalTokens  int                         `json:"total_tokens"`
	CostUSD      float64                     `json:"cost_usd"`
	ByCallType   map[CallType]TokenBreakdown `json:"by_call_type"`
	BySection    map[string]TokenBreakdown   `json:"by_section"`
}
