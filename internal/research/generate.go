package research

import (
	"context"
	"encoding/json"
)

// Task names the internal generation call so the adapter can route it to the
// configured model (planning, analysis, synthesis).
type Task string

const (
	TaskPlanning  Task = "planning"
	TaskAnalysis  Task = "analysis"
	TaskSynthesis Task = "synthesis"
)

// ObjectGenerator is the structured-generation capability the engine
// consumes. Implementations return the raw JSON object produced by the model;
// the engine validates it against the task's schema.
type ObjectGenerator interface {
	GenerateObject(ctx context.Context, task Task, prompt string) (json.RawMessage, error)
}

// SearchExecutor issues single search calls and normalizes provider results.
type SearchExecutor interface {
	SearchWeb(ctx context.Context, query string, depth Depth, maxResults int) ([]SearchResult, error)
	SearchAcademic(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}
