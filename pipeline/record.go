package pipeline

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/dcshock/runpipe/checkpoint"
)

// Record is one unit of data flowing through a pipeline. The engine never
// inspects it.
type Record = any

// CheckpointKey is the key a run's Snapshot is stored under, inside the
// pipeline's namespace.
const CheckpointKey = "progress"

// SnapshotVersion is the schema version written by this package.
const SnapshotVersion = 1

// Snapshot is the checkpoint persisted at every batch boundary.
type Snapshot struct {
	Version  int    `json:"version"`
	Pipeline string `json:"pipeline"`
	RunID    string `json:"run_id"`
	// Sequence is the 1-based index of this snapshot within its run.
	Sequence int `json:"sequence"`
	// Processed is the number of records that reached the end of the chain in
	// the run that wrote the snapshot.
	Processed int64 `json:"processed"`
	// SourceOffset is RunContext.ResumeOffset plus the number of source records
	// whose whole fan-out had completed when the snapshot was taken. A source
	// that skips SourceOffset records on resume reprocesses at most the records
	// in flight at the time of the failure.
	SourceOffset int64          `json:"source_offset"`
	State        map[string]any `json:"state,omitempty"`
	TakenAt      time.Time      `json:"taken_at"`
}

// RunContext is the processing context of one run. It is created by Run and
// passed by reference to every stage invocation. Stages may modify State,
// Annotations and ResumeOffset; the engine only reads them.
type RunContext struct {
	RunID       string
	Pipeline    string
	Scope       string
	StartedAt   time.Time
	Annotations map[string]string
	// Config is the run configuration attached by the dispatcher.
	Config map[string]any
	// State is copied into every snapshot.
	State map[string]any
	// ResumeOffset is set by a source that skipped ahead using the last checkpoint.
	ResumeOffset int64

	store checkpoint.Store
}

// LastCheckpoint loads the snapshot left by a previous run of this pipeline.
// ok is false if there is none.
func (rc *RunContext) LastCheckpoint(ctx context.Context) (snap Snapshot, ok bool, err error) {
	if rc.store == nil {
		return Snapshot{}, false, nil
	}
	if err := rc.store.Get(ctx, CheckpointKey, &snap); err != nil {
		if checkpoint.IsNotFound(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	if snap.Version > SnapshotVersion {
		return Snapshot{}, false, fmt.Errorf("checkpoint version %d is newer than supported version %d", snap.Version, SnapshotVersion)
	}
	return snap, true, nil
}

// ConfigValue returns the run configuration value for key.
func (rc *RunContext) ConfigValue(key string) (any, bool) {
	v, ok := rc.Config[key]
	return v, ok
}

func (rc *RunContext) stateCopy() map[string]any {
	if len(rc.State) == 0 {
		return nil
	}
	return maps.Clone(rc.State)
}
