package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dcshock/runpipe/pipeline"
)

// RunObserver persists each pipeline run to a RunStore. A run is saved as
// running when it starts, updated at every checkpoint, and marked success when
// its checkpoint is retired or failed when the run fails. Safe for concurrent runs.
type RunObserver struct {
	store RunStore
	now   func() time.Time

	mu   sync.Mutex
	runs map[string]*Run
}

// NewRunObserver returns an observer that writes to store.
func NewRunObserver(store RunStore) *RunObserver {
	return &RunObserver{store: store, now: time.Now, runs: make(map[string]*Run)}
}

// RunStarted implements pipeline.Reporter. Saves the run with status running.
func (o *RunObserver) RunStarted(ctx context.Context, rc *pipeline.RunContext) error {
	run := &Run{
		RunID:     rc.RunID,
		Scope:     rc.Scope,
		Pipeline:  rc.Pipeline,
		Status:    StatusRunning,
		StartedAt: rc.StartedAt.UTC(),
	}
	o.mu.Lock()
	o.runs[rc.RunID] = run
	row := *run
	o.mu.Unlock()
	if err := o.store.Save(ctx, row); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (o *RunObserver) RecordProcessed(ctx context.Context, rc *pipeline.RunContext, count int) error {
	return nil
}

// RunCompleted implements pipeline.Reporter. The run stays running until its
// checkpoint is retired.
func (o *RunObserver) RunCompleted(ctx context.Context, rc *pipeline.RunContext, count int) error {
	o.update(rc, func(r *Run) { r.Processed = int64(count) })
	return nil
}

// RunFailed implements pipeline.Reporter. Updates the run with status failed and the error.
func (o *RunObserver) RunFailed(ctx context.Context, rc *pipeline.RunContext, cause error) error {
	return o.finish(ctx, rc, func(r *Run) {
		r.Status = StatusFailed
		r.Error = cause.Error()
	})
}

// CheckpointSaved implements pipeline.CheckpointObserver.
func (o *RunObserver) CheckpointSaved(ctx context.Context, rc *pipeline.RunContext, snap pipeline.Snapshot) error {
	row, ok := o.update(rc, func(r *Run) {
		r.Processed = snap.Processed
		r.Checkpoints = snap.Sequence
	})
	if !ok {
		return nil
	}
	if err := o.store.Save(ctx, row); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// CheckpointRetired implements pipeline.CheckpointObserver. Marks the run successful.
func (o *RunObserver) CheckpointRetired(ctx context.Context, rc *pipeline.RunContext) error {
	return o.finish(ctx, rc, func(r *Run) { r.Status = StatusSuccess })
}

func (o *RunObserver) update(rc *pipeline.RunContext, fn func(*Run)) (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[rc.RunID]
	if !ok {
		return Run{}, false
	}
	fn(run)
	return *run, true
}

func (o *RunObserver) finish(ctx context.Context, rc *pipeline.RunContext, fn func(*Run)) error {
	o.mu.Lock()
	run, ok := o.runs[rc.RunID]
	if ok {
		delete(o.runs, rc.RunID)
		finished := o.now().UTC()
		run.FinishedAt = &finished
		fn(run)
	}
	o.mu.Unlock()
	if !ok {
		return nil
	}
	if err := o.store.Save(ctx, *run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

var _ pipeline.CheckpointObserver = (*RunObserver)(nil)
