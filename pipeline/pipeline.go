package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/google/uuid"
)

var (
	// ErrNoStages is returned when a pipeline has no source stage.
	ErrNoStages = errors.New("pipeline has no stages")
	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	// ErrNoStore is returned when a pipeline has no checkpoint store.
	ErrNoStore = errors.New("pipeline has no checkpoint store")
)

// StageError is returned by Run when a stage fails.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs Stages in order (Stages[0] is the source) and checkpoints into
// Store every BatchSize processed records. Store should already be namespaced
// to this pipeline.
type Pipeline struct {
	Name      string
	Stages    []Stage
	BatchSize int
	Store     checkpoint.Store

	// Scope, Annotations and Config are copied into every RunContext.
	Scope       string
	Annotations map[string]string
	Config      map[string]any

	Logger *slog.Logger
	now    func() time.Time
}

// Option configures a Pipeline built with New.
type Option func(*Pipeline)

// WithLogger sets the logger used for run and checkpoint events.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.Logger = l } }

// WithScope sets the scope name reported in the RunContext.
func WithScope(scope string) Option { return func(p *Pipeline) { p.Scope = scope } }

// WithAnnotations sets annotations copied into every RunContext.
func WithAnnotations(a map[string]string) Option { return func(p *Pipeline) { p.Annotations = a } }

// WithConfig sets the run configuration exposed through RunContext.Config.
func WithConfig(c map[string]any) Option { return func(p *Pipeline) { p.Config = c } }

// WithClock overrides the time source used for snapshots.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// New returns a validated Pipeline.
func New(name string, stages []Stage, batchSize int, store checkpoint.Store, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{Name: name, Stages: stages, BatchSize: batchSize, Store: store}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) validate() error {
	if len(p.Stages) == 0 {
		return ErrNoStages
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, p.BatchSize)
	}
	if p.Store == nil {
		return ErrNoStore
	}
	return nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

func (p *Pipeline) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Pipeline) newRunContext() *RunContext {
	annotations := make(map[string]string, len(p.Annotations))
	for k, v := range p.Annotations {
		annotations[k] = v
	}
	return &RunContext{
		RunID:       uuid.New().String(),
		Pipeline:    p.Name,
		Scope:       p.Scope,
		StartedAt:   p.clock(),
		Annotations: annotations,
		Config:      p.Config,
		State:       make(map[string]any),
		store:       p.Store,
	}
}

// run is the state of one Run call.
type run struct {
	p          *Pipeline
	rc         *RunContext
	reporter   Reporter
	log        *slog.Logger
	processed  int
	pending    int
	sequence   int
	sourceDone int64
}

// Run pumps every record from the source through the chain and returns the
// number of records that reached its end. On success the checkpoint is retired
// before Run returns; an error from CheckpointRetired after that is logged, not
// returned. On any error the checkpoint is left as the last batch
// boundary wrote it and the error is returned with the count processed so far.
// A nil reporter is treated as NopReporter.
func (p *Pipeline) Run(ctx context.Context, reporter Reporter) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}
	if reporter == nil {
		reporter = NopReporter{}
	}
	rc := p.newRunContext()
	r := &run{
		p:        p,
		rc:       rc,
		reporter: reporter,
		log:      p.logger().With("scope", p.Scope, "pipeline", p.Name, "run_id", rc.RunID),
	}

	r.log.DebugContext(ctx, "run started", "batch_size", p.BatchSize, "stages", len(p.Stages))
	if err := reporter.RunStarted(ctx, rc); err != nil {
		return 0, r.fail(ctx, fmt.Errorf("report run started: %w", err))
	}
	if err := r.drive(ctx, nil, 0); err != nil {
		return r.processed, r.fail(ctx, err)
	}
	if err := reporter.RunCompleted(ctx, rc, r.processed); err != nil {
		return r.processed, r.fail(ctx, fmt.Errorf("report run completed: %w", err))
	}
	if err := p.Store.Delete(ctx, CheckpointKey); err != nil {
		return r.processed, r.fail(ctx, fmt.Errorf("retire checkpoint: %w", err))
	}
	// The run has succeeded once the checkpoint is deleted.
	if obs, ok := reporter.(CheckpointObserver); ok {
		if err := obs.CheckpointRetired(ctx, rc); err != nil {
			r.log.WarnContext(ctx, "report checkpoint retired failed", "error", err)
		}
	}
	r.log.InfoContext(ctx, "run completed", "processed", r.processed, "checkpoints", r.sequence)
	return r.processed, nil
}

// drive feeds rec into Stages[idx] and every output on to the next stage,
// depth-first. idx == 0 is the source.
func (r *run) drive(ctx context.Context, rec Record, idx int) error {
	if idx == len(r.p.Stages) {
		return r.emit(ctx)
	}
	stage := r.p.Stages[idx]
	var err error
	for out, perr := range stage.Process(ctx, rec, r.rc) {
		if perr != nil {
			err = &StageError{Index: idx, Stage: StageName(stage), Err: perr}
			break
		}
		if idx == 0 {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
				break
			}
		}
		if err = r.drive(ctx, out, idx+1); err != nil {
			break
		}
		if idx == 0 {
			r.sourceDone++
		}
	}
	return err
}

// emit accounts for one record that reached the end of the chain.
func (r *run) emit(ctx context.Context) error {
	r.processed++
	r.pending++
	if err := r.reporter.RecordProcessed(ctx, r.rc, r.processed); err != nil {
		return fmt.Errorf("report record %d: %w", r.processed, err)
	}
	if r.pending >= r.p.BatchSize {
		return r.checkpoint(ctx)
	}
	return nil
}

func (r *run) checkpoint(ctx context.Context) error {
	r.sequence++
	snap := Snapshot{
		Version:      SnapshotVersion,
		Pipeline:     r.p.Name,
		RunID:        r.rc.RunID,
		Sequence:     r.sequence,
		Processed:    int64(r.processed),
		SourceOffset: r.rc.ResumeOffset + r.sourceDone,
		State:        r.rc.stateCopy(),
		TakenAt:      r.p.clock().UTC(),
	}
	if err := r.p.Store.Put(ctx, CheckpointKey, snap); err != nil {
		return fmt.Errorf("save checkpoint %d: %w", r.sequence, err)
	}
	r.pending = 0
	r.log.DebugContext(ctx, "checkpoint saved", "sequence", snap.Sequence, "processed", snap.Processed, "source_offset", snap.SourceOffset)
	if obs, ok := r.reporter.(CheckpointObserver); ok {
		if err := obs.CheckpointSaved(ctx, r.rc, snap); err != nil {
			return fmt.Errorf("report checkpoint saved: %w", err)
		}
	}
	return nil
}

// fail reports cause and returns it. The checkpoint is not touched.
func (r *run) fail(ctx context.Context, cause error) error {
	r.log.WarnContext(ctx, "run failed", "processed", r.processed, "checkpoints", r.sequence, "error", cause)
	if err := r.reporter.RunFailed(context.WithoutCancel(ctx), r.rc, cause); err != nil {
		return errors.Join(cause, fmt.Errorf("report run failed: %w", err))
	}
	return cause
}
