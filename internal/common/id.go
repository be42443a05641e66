package common

import (
	"github.com/google/uuid"
)

// NewCompanyID generates a unique company ID with the "cmp_" prefix
func NewCompanyID() string {
	return "cmp_" + uuid.New().String()
}

// NewPageID generates a unique page ID with the "page_" prefix
func NewPageID() string {
	return "page_" + uuid.New().String()
}

// NewEntityID generates a unique entity ID with the "ent_" prefix
func NewEntityID() string {
	return "ent_" + uuid.New().String()
}

// NewSessionID generates a unique crawl session ID with the "sess_" prefix
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewAnalysisID generates a unique analysis ID with the "ana_" prefix
func NewAnalysisID() string {
	return "ana_" + uuid.New().String()
}

// NewTokenUsageID generates a unique token usage ID with the "tok_" prefix
func NewTokenUsageID() string {
	return "tok_" + uuid.New().String()
}

// NewBatchID generates a unique batch job ID with the "batch_" prefix
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// NewWorkerID generates a unique worker ID with the "wrk_" prefix, used for
// distributed lock ownership.
func NewWorkerID() string {
	return "wrk_" + uuid.New().String()
}
