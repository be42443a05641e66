package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobStarted      EventType = "job_started"
	EventPhaseChanged    EventType = "phase_changed"
	EventCrawlProgress   EventType = "crawl_progress"
	EventJobPaused       EventType = "job_paused"
	EventJobResumed      EventType = "job_resumed"
	EventJobCompleted    EventType = "job_completed"
	EventJobFailed       EventType = "job_failed"
	EventJobTimeout      EventType = "job_timeout"
	EventBatchProgress   EventType = "batch_progress"
	EventAnalysisSection EventType = "analysis_section"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler)

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
