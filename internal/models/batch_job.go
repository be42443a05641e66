package models

import "time"

// BatchStatus is the lifecycle of a batch job.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusPaused    BatchStatus = "paused"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// BatchJob groups companies for fair-scheduled processing under a shared
// concurrency ceiling. CompanyIDs preserve submission order.
type BatchJob struct {
	ID   string `json:"id" badgerhold:"key"`
	Name string `json:"name"`

	CompanyIDs []string    `json:"company_ids"`
	Status     BatchStatus `json:"status" badgerhold:"index"`
	Priority   int         `json:"priority"`

	TotalCompanies int `json:"total_companies"`
	Completed      int `json:"completed"`
	Failed         int `json:"failed"`

	MaxConcurrent int `json:"max_concurrent"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Progress returns completion as a fraction in [0,1].
func (b *BatchJob) Progress() float64 {
	if b.TotalCompanies == 0 {
		return 0
	}
	return float64(b.Completed+b.Failed) / float64(b.TotalCompanies)
}
