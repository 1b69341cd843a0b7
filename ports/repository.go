package ports

import (
	"context"

	"neurosig/domain/core"
	"neurosig/domain/stats"
)

// ResultRepository persists analysis outputs. The engine never talks to it
// directly; the application layer decides when results are durable.
type ResultRepository interface {
	// SaveTaskAnalysis stores one task's summary and feature results.
	SaveTaskAnalysis(ctx context.Context, sessionID core.SessionID, analysis *stats.TaskAnalysis) error

	// SaveAllTasks stores a full multi-task analysis.
	SaveAllTasks(ctx context.Context, result *stats.AllTasksResult) error

	// LatestTaskAnalysis returns the most recent stored analysis for a task,
	// or nil when none exists.
	LatestTaskAnalysis(ctx context.Context, sessionID core.SessionID, task string) (*stats.TaskAnalysis, error)
}
