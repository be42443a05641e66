package models

import (
	"encoding/json"
	"errors"
)

// ErrNoTask is returned when a queue has no visible tasks.
var ErrNoTask = errors.New("no tasks in queue")

// TaskType identifies the work a queued task represents.
type TaskType string

const (
	TaskCrawlCompany    TaskType = "crawl_company"
	TaskCrawlPage       TaskType = "crawl_page"
	TaskExtractEntities TaskType = "extract_entities"
	TaskAnalyzeContent  TaskType = "analyze_content"
	TaskGenerateSummary TaskType = "generate_summary"
)

// QueueName is a logical task queue. Routing keeps crawl I/O, CPU-bound
// extraction, and LLM calls on separate worker pools.
type QueueName string

const (
	QueueCrawl   QueueName = "crawl"
	QueueExtract QueueName = "extract"
	QueueAnalyze QueueName = "analyze"
)

// QueueForTask routes a task type to its queue.
func QueueForTask(t TaskType) QueueName {
	switch t {
	case TaskCrawlCompany, TaskCrawlPage:
		return QueueCrawl
	case TaskExtractEntities:
		return QueueExtract
	case TaskAnalyzeContent, TaskGenerateSummary:
		return QueueAnalyze
	}
	return QueueCrawl
}

// Task is the structure stored in the broker. Kept minimal: enough to route
// the work; executors reload state from storage.
type Task struct {
	CompanyID string          `json:"company_id"`
	Type      TaskType        `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
