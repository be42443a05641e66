package interfaces

import "context"

// NERSpan is one model-produced span with its raw label and offsets.
type NERSpan struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// NERModel is the external named-entity model contract: process one
// document or a batch, producing labeled spans. Label mapping, confidence
// scoring, and context windows are applied by the extraction layer.
type NERModel interface {
	Process(ctx context.Context, text string) ([]NERSpan, error)
	ProcessBatch(ctx context.Context, texts []string) ([][]NERSpan, error)
}
