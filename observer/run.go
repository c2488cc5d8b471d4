package observer

import (
	"context"
	"time"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Run is the recorded state of one pipeline run.
type Run struct {
	RunID       string     `json:"run_id"`
	Scope       string     `json:"scope"`
	Pipeline    string     `json:"pipeline"`
	Status      string     `json:"status"`
	Processed   int64      `json:"processed"`
	Checkpoints int        `json:"checkpoints"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunStore persists runs.
type RunStore interface {
	// Save inserts or replaces the run with run.RunID.
	Save(ctx context.Context, run Run) error
	// List returns the runs of scope/pipeline, newest first, at most limit (all if limit <= 0).
	List(ctx context.Context, scope, pipeline string, limit int) ([]Run, error)
	// Latest returns the newest run of every scope/pipeline pair.
	Latest(ctx context.Context) ([]Run, error)
}
