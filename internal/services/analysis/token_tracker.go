package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cirahq/cira/internal/common"
	"github.com/cirahq/cira/internal/interfaces"
	"github.com/cirahq/cira/internal/models"
)

// TokenTracker records every LLM call and prices the spend at per-million
// token rates.
type TokenTracker struct {
	logger  arbor.ILogger
	storage interfaces.TokenUsageStorage

	inputPricePerMTok  float64
	outputPricePerMTok float64
}

// NewTokenTracker creates a tracker with the configured prices.
func NewTokenTracker(logger arbor.ILogger, storage interfaces.TokenUsageStorage, config *common.LLMConfig) *TokenTracker {
	return &TokenTracker{
		logger:             logger,
		storage:            storage,
		inputPricePerMTok:  config.InputPricePerMTok,
		outputPricePerMTok: config.OutputPricePerMTok,
	}
}

// Record persists one LLM call. Recording failures are logged, not
// returned: losing one accounting row must not fail the pipeline.
func (t *TokenTracker) Record(ctx context.Context, companyID string, callType models.CallType, section string, input, output int) {
	usage := &models.TokenUsage{
		ID:           common.NewTokenUsageID(),
		CompanyID:    companyID,
		CallType:     callType,
		Section:      section,
		InputTokens:  input,
		OutputTokens: output,
		CreatedAt:    time.Now(),
	}
	if err := t.storage.SaveTokenUsage(ctx, usage); err != nil {
		t.logger.Warn().Err(err).Str("company_id", companyID).Msg("Failed to record token usage")
	}
}

// Cost prices a token count pair in USD.
func (t *TokenTracker) Cost(input, output int) float64 {
	return float64(input)/1_000_000*t.inputPricePerMTok +
		float64(output)/1_000_000*t.outputPricePerMTok
}

// CompanyUsage aggregates a company's recorded calls into totals plus
// per-call-type and per-section breakdowns.
func (t *TokenTracker) CompanyUsage(ctx context.Context, companyID string) (*models.CompanyTokenUsage, error) {
	rows, err := t.storage.ListTokenUsageByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load token usage: %w", err)
	}

	usage := &models.CompanyTokenUsage{
		CompanyID:  companyID,
		ByCallType: make(map[models.CallType]models.TokenBreakdown),
		BySection:  make(map[string]models.TokenBreakdown),
	}
	for _, row := range rows {
		usage.InputTokens += row.InputTokens
		usage.OutputTokens += row.OutputTokens

		ct := usage.ByCallType[row.CallType]
		ct.InputTokens += row.InputTokens
		ct.OutputTokens += row.OutputTokens
		ct.TotalTokens = ct.InputTokens + ct.OutputTokens
		ct.CostUSD = t.Cost(ct.InputTokens, ct.OutputTokens)
		usage.ByCallType[row.CallType] = ct

		if row.Section != "" {
			sec := usage.BySection[row.Section]
			sec.InputTokens += row.InputTokens
			sec.OutputTokens += row.OutputTokens
			sec.TotalTokens = sec.InputTokens + sec.OutputTokens
			sec.CostUSD = t.Cost(sec.InputTokens, sec.OutputTokens)
			usage.BySection[row.Section] = sec
		}
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	usage.CostUSD = t.Cost(usage.InputTokens, usage.OutputTokens)
	return usage, nil
}
