package observer

import (
	"context"
	"fmt"

	"github.com/dcshock/runpipe/scope"
)

// Resumer dispatches pipelines whose latest recorded run failed.
type Resumer struct {
	store   RunStore
	project *scope.Project
}

// NewResumer returns a resumer reading run history from store.
func NewResumer(store RunStore, project *scope.Project) *Resumer {
	return &Resumer{store: store, project: project}
}

// Due returns the latest run of every pipeline whose latest run failed.
func (r *Resumer) Due(ctx context.Context) ([]Run, error) {
	latest, err := r.store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest runs: %w", err)
	}
	var due []Run
	for _, run := range latest {
		if run.Status == StatusFailed {
			due = append(due, run)
		}
	}
	return due, nil
}

// ResumeFailed runs every due pipeline once with req as the template (its
// Pipeline field is replaced). Runs whose scope is no longer in the project
// are skipped and stay due. All due runs are attempted; the number dispatched
// and the last error are returned.
func (r *Resumer) ResumeFailed(ctx context.Context, req scope.RunRequest) (int, error) {
	due, err := r.Due(ctx)
	if err != nil {
		return 0, err
	}
	var (
		resumed int
		lastErr error
	)
	for _, run := range due {
		s, ok := r.project.Scope(run.Scope)
		if !ok {
			continue
		}
		rr := req
		rr.Pipeline = run.Pipeline
		n, err := s.RunRequest(ctx, rr)
		resumed += n
		if err != nil {
			lastErr = err
		}
	}
	return resumed, lastErr
}
