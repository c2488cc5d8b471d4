package observer

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// RunRow is the pipeline_runs table model.
type RunRow struct {
	bun.BaseModel `bun:"table:pipeline_runs,alias:pr"`

	RunID       string     `bun:"run_id,pk"`
	Scope       string     `bun:"scope,notnull"`
	Pipeline    string     `bun:"pipeline,notnull"`
	Status      string     `bun:"status,notnull"`
	Processed   int64      `bun:"processed,notnull"`
	Checkpoints int        `bun:"checkpoints,notnull"`
	Error       string     `bun:"error,nullzero"`
	StartedAt   time.Time  `bun:"started_at,notnull"`
	FinishedAt  *time.Time `bun:"finished_at"`
}

func (r *RunRow) run() Run {
	return Run{
		RunID:       r.RunID,
		Scope:       r.Scope,
		Pipeline:    r.Pipeline,
		Status:      r.Status,
		Processed:   r.Processed,
		Checkpoints: r.Checkpoints,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

// BunRunStore is a RunStore on the pipeline_runs table.
type BunRunStore struct {
	db *bun.DB
}

// NewBunRunStore returns a store that uses db (e.g. pgstore.Backend.DB()).
func NewBunRunStore(db *bun.DB) *BunRunStore {
	return &BunRunStore{db: db}
}

// InitializeDatabase creates the pipeline_runs table and its lookup index.
func (s *BunRunStore) InitializeDatabase(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*RunRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pipeline_runs table: %w", err)
	}
	_, err = s.db.NewCreateIndex().
		Model((*RunRow)(nil)).
		Index("idx_pipeline_runs_scope_pipeline").
		IfNotExists().
		Column("scope", "pipeline", "started_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create pipeline_runs index: %w", err)
	}
	return nil
}

// Save implements RunStore. Inserts or updates the row so the same run can be
// saved at start, at every checkpoint and at the end.
func (s *BunRunStore) Save(ctx context.Context, run Run) error {
	row := &RunRow{
		RunID:       run.RunID,
		Scope:       run.Scope,
		Pipeline:    run.Pipeline,
		Status:      run.Status,
		Processed:   run.Processed,
		Checkpoints: run.Checkpoints,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (run_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("processed = EXCLUDED.processed").
		Set("checkpoints = EXCLUDED.checkpoints").
		Set("error = EXCLUDED.error").
		Set("finished_at = EXCLUDED.finished_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert pipeline run: %w", err)
	}
	return nil
}

// List implements RunStore.
func (s *BunRunStore) List(ctx context.Context, scope, pipeline string, limit int) ([]Run, error) {
	var rows []RunRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("scope = ?", scope).
		Where("pipeline = ?", pipeline).
		Order("started_at DESC", "run_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	return toRuns(rows), nil
}

// Latest implements RunStore.
func (s *BunRunStore) Latest(ctx context.Context) ([]Run, error) {
	var rows []RunRow
	err := s.db.NewSelect().
		Model(&rows).
		DistinctOn("scope, pipeline").
		Order("scope", "pipeline", "started_at DESC", "run_id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest pipeline runs: %w", err)
	}
	return toRuns(rows), nil
}

func toRuns(rows []RunRow) []Run {
	out := make([]Run, len(rows))
	for i := range rows {
		out[i] = rows[i].run()
	}
	return out
}

var _ RunStore = (*BunRunStore)(nil)
