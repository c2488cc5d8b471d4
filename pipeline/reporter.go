package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// Reporter is notified of run lifecycle events. Calls are synchronous and an
// error from any method fails the run like a stage error would. RunFailed is the
// exception: its error is joined to the cause that is already being returned.
type Reporter interface {
	RunStarted(ctx context.Context, rc *RunContext) error
	RecordProcessed(ctx context.Context, rc *RunContext, count int) error
	RunCompleted(ctx context.Context, rc *RunContext, count int) error
	RunFailed(ctx context.Context, rc *RunContext, cause error) error
}

// CheckpointObserver is optionally implemented by a Reporter that wants to
// hear about checkpoint writes and retirement.
type CheckpointObserver interface {
	CheckpointSaved(ctx context.Context, rc *RunContext, snap Snapshot) error
	CheckpointRetired(ctx context.Context, rc *RunContext) error
}

// NopReporter ignores every event.
type NopReporter struct{}

func (NopReporter) RunStarted(context.Context, *RunContext) error                { return nil }
func (NopReporter) RecordProcessed(context.Context, *RunContext, int) error      { return nil }
func (NopReporter) RunCompleted(context.Context, *RunContext, int) error         { return nil }
func (NopReporter) RunFailed(context.Context, *RunContext, error) error          { return nil }
func (NopReporter) CheckpointSaved(context.Context, *RunContext, Snapshot) error { return nil }
func (NopReporter) CheckpointRetired(context.Context, *RunContext) error         { return nil }

// ReporterFuncs is a Reporter built from optional hooks. Nil hooks are skipped.
type ReporterFuncs struct {
	OnStart   func(ctx context.Context, rc *RunContext) error
	OnRecord  func(ctx context.Context, rc *RunContext, count int) error
	OnFinish  func(ctx context.Context, rc *RunContext, count int) error
	OnError   func(ctx context.Context, rc *RunContext, cause error) error
	OnSaved   func(ctx context.Context, rc *RunContext, snap Snapshot) error
	OnRetired func(ctx context.Context, rc *RunContext) error
}

func (f ReporterFuncs) RunStarted(ctx context.Context, rc *RunContext) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx, rc)
}

func (f ReporterFuncs) RecordProcessed(ctx context.Context, rc *RunContext, count int) error {
	if f.OnRecord == nil {
		return nil
	}
	return f.OnRecord(ctx, rc, count)
}

func (f ReporterFuncs) RunCompleted(ctx context.Context, rc *RunContext, count int) error {
	if f.OnFinish == nil {
		return nil
	}
	return f.OnFinish(ctx, rc, count)
}

func (f ReporterFuncs) RunFailed(ctx context.Context, rc *RunContext, cause error) error {
	if f.OnError == nil {
		return nil
	}
	return f.OnError(ctx, rc, cause)
}

func (f ReporterFuncs) CheckpointSaved(ctx context.Context, rc *RunContext, snap Snapshot) error {
	if f.OnSaved == nil {
		return nil
	}
	return f.OnSaved(ctx, rc, snap)
}

func (f ReporterFuncs) CheckpointRetired(ctx context.Context, rc *RunContext) error {
	if f.OnRetired == nil {
		return nil
	}
	return f.OnRetired(ctx, rc)
}

// MultiReporter fans every event out to reporters in order. The first error
// stops the fan-out, except for RunFailed which notifies everyone and joins the
// errors. Nil entries are skipped.
func MultiReporter(reporters ...Reporter) Reporter {
	list := make(multiReporter, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			list = append(list, r)
		}
	}
	return list
}

type multiReporter []Reporter

func (m multiReporter) RunStarted(ctx context.Context, rc *RunContext) error {
	for _, r := range m {
		if err := r.RunStarted(ctx, rc); err != nil {
			return err
		}
	}
	return nil
}

func (m multiReporter) RecordProcessed(ctx context.Context, rc *RunContext, count int) error {
	for _, r := range m {
		if err := r.RecordProcessed(ctx, rc, count); err != nil {
			return err
		}
	}
	return nil
}

func (m multiReporter) RunCompleted(ctx context.Context, rc *RunContext, count int) error {
	for _, r := range m {
		if err := r.RunCompleted(ctx, rc, count); err != nil {
			return err
		}
	}
	return nil
}

func (m multiReporter) RunFailed(ctx context.Context, rc *RunContext, cause error) error {
	var errs []error
	for _, r := range m {
		if err := r.RunFailed(ctx, rc, cause); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiReporter) CheckpointSaved(ctx context.Context, rc *RunContext, snap Snapshot) error {
	for _, r := range m {
		if obs, ok := r.(CheckpointObserver); ok {
			if err := obs.CheckpointSaved(ctx, rc, snap); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m multiReporter) CheckpointRetired(ctx context.Context, rc *RunContext) error {
	for _, r := range m {
		if obs, ok := r.(CheckpointObserver); ok {
			if err := obs.CheckpointRetired(ctx, rc); err != nil {
				return err
			}
		}
	}
	return nil
}

// LogReporter writes run events to a slog.Logger. Processed records are logged
// every Every records (never if Every <= 0).
type LogReporter struct {
	Logger *slog.Logger
	Every  int
}

// NewLogReporter returns a LogReporter. A nil logger uses slog.Default().
func NewLogReporter(logger *slog.Logger, every int) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger, Every: every}
}

func (l *LogReporter) attrs(rc *RunContext) []any {
	return []any{"scope", rc.Scope, "pipeline", rc.Pipeline, "run_id", rc.RunID}
}

func (l *LogReporter) RunStarted(ctx context.Context, rc *RunContext) error {
	l.Logger.InfoContext(ctx, "pipeline run started", l.attrs(rc)...)
	return nil
}

func (l *LogReporter) RecordProcessed(ctx context.Context, rc *RunContext, count int) error {
	if l.Every > 0 && count%l.Every == 0 {
		l.Logger.InfoContext(ctx, "pipeline progress", append(l.attrs(rc), "processed", count)...)
	}
	return nil
}

func (l *LogReporter) RunCompleted(ctx context.Context, rc *RunContext, count int) error {
	l.Logger.InfoContext(ctx, "pipeline run completed", append(l.attrs(rc), "processed", count)...)
	return nil
}

func (l *LogReporter) RunFailed(ctx context.Context, rc *RunContext, cause error) error {
	l.Logger.ErrorContext(ctx, "pipeline run failed", append(l.attrs(rc), "error", cause)...)
	return nil
}

func (l *LogReporter) CheckpointSaved(ctx context.Context, rc *RunContext, snap Snapshot) error {
	l.Logger.DebugContext(ctx, "checkpoint saved", append(l.attrs(rc), "sequence", snap.Sequence, "processed", snap.Processed)...)
	return nil
}

func (l *LogReporter) CheckpointRetired(ctx context.Context, rc *RunContext) error {
	l.Logger.DebugContext(ctx, "checkpoint retired", l.attrs(rc)...)
	return nil
}

var (
	_ CheckpointObserver = NopReporter{}
	_ CheckpointObserver = ReporterFuncs{}
	_ CheckpointObserver = multiReporter(nil)
	_ CheckpointObserver = (*LogReporter)(nil)
)
