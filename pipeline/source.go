package pipeline

import (
	"context"
	"fmt"
	"iter"
)

// Source adapts a function that produces the whole stream to a source Stage.
func Source(name string, produce func(ctx context.Context, rc *RunContext) iter.Seq2[Record, error]) Stage {
	return Named(name, StageFunc(func(ctx context.Context, _ Record, rc *RunContext) iter.Seq2[Record, error] {
		return produce(ctx, rc)
	}))
}

// FromSeq returns a source stage over seq.
func FromSeq[T any](seq iter.Seq[T]) Stage {
	return StageFunc(func(ctx context.Context, _ Record, _ *RunContext) iter.Seq2[Record, error] {
		return func(yield func(Record, error) bool) {
			for v := range seq {
				if !yield(v, nil) {
					return
				}
			}
		}
	})
}

// Values returns a source stage that yields vals in order.
func Values(vals ...Record) Stage {
	return StageFunc(func(ctx context.Context, _ Record, _ *RunContext) iter.Seq2[Record, error] {
		return Emit(vals...)
	})
}

// RangeSource yields the integers in [Start, End).
type RangeSource struct {
	Start, End int
	resume     bool
}

// Range returns a source of the integers in [start, end).
func Range(start, end int) *RangeSource {
	return &RangeSource{Start: start, End: end}
}

// Resumable makes the source skip the SourceOffset recorded in the last checkpoint.
func (s *RangeSource) Resumable() *RangeSource {
	s.resume = true
	return s
}

// Name implements Namer.
func (s *RangeSource) Name() string { return "range" }

// Process implements Stage.
func (s *RangeSource) Process(ctx context.Context, _ Record, rc *RunContext) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		start := s.Start
		if s.resume && rc != nil {
			snap, ok, err := rc.LastCheckpoint(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("range: load checkpoint: %w", err))
				return
			}
			if ok {
				start += int(snap.SourceOffset)
				rc.ResumeOffset = snap.SourceOffset
			}
		}
		for i := start; i < s.End; i++ {
			if !yield(i, nil) {
				return
			}
		}
	}
}
