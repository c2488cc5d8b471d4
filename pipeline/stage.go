package pipeline

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Stage is a single step in a pipeline. Process produces the stage's output for
// one input record as a lazy sequence. A source stage is called once with a nil
// record. A stage signals failure by yielding a non-nil error; the pipeline stops
// consuming the sequence at the first error.
//
// A Stage instance may keep private state, so it must not be driven by two runs
// at the same time.
type Stage interface {
	Process(ctx context.Context, rec Record, rc *RunContext) iter.Seq2[Record, error]
}

// Namer is implemented by stages that have a name for logs and errors.
type Namer interface {
	Name() string
}

// StageFunc adapts a function to Stage.
type StageFunc func(ctx context.Context, rec Record, rc *RunContext) iter.Seq2[Record, error]

// Process implements Stage.
func (f StageFunc) Process(ctx context.Context, rec Record, rc *RunContext) iter.Seq2[Record, error] {
	return f(ctx, rec, rc)
}

// StageName returns the stage's name, or its Go type if it has none.
func StageName(s Stage) string {
	if n, ok := s.(Namer); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

type namedStage struct {
	Stage
	name string
}

func (s namedStage) Name() string { return s.name }

// Named attaches name to stage.
func Named(name string, stage Stage) Stage {
	return namedStage{Stage: stage, name: name}
}

// Fail returns a sequence that yields only err.
func Fail(err error) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		yield(nil, err)
	}
}

// Emit returns a sequence of the given records.
func Emit(recs ...Record) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, r := range recs {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// ConvertFunc converts value of type A to type B.
type ConvertFunc[A, B any] func(ctx context.Context, a A) (B, error)

// Map returns a stage that converts each input record of type T into one record of type U.
func Map[T, U any](convert ConvertFunc[T, U]) Stage {
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		t, ok := rec.(T)
		if !ok {
			var zero T
			return Fail(fmt.Errorf("map: expected %T, got %T", zero, rec))
		}
		u, err := convert(ctx, t)
		if err != nil {
			return Fail(err)
		}
		return Emit(u)
	})
}

// Transform returns a stage that converts the previous stage's output (type A) to
// type B. It is Map under the name used when the conversion joins two stages
// with different record types.
func Transform[A, B any](convert ConvertFunc[A, B]) Stage {
	return Map(convert)
}

// Filter returns a stage that passes through records of type T for which keep
// returns true and drops the rest.
func Filter[T any](keep func(T) bool) Stage {
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		t, ok := rec.(T)
		if !ok {
			var zero T
			return Fail(fmt.Errorf("filter: expected %T, got %T", zero, rec))
		}
		if !keep(t) {
			return Emit()
		}
		return Emit(rec)
	})
}

// FlatMap returns a stage that expands each record of type T into any number of
// records of type U, in order.
func FlatMap[T, U any](expand func(ctx context.Context, t T) ([]U, error)) Stage {
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		t, ok := rec.(T)
		if !ok {
			var zero T
			return Fail(fmt.Errorf("flatmap: expected %T, got %T", zero, rec))
		}
		return func(yield func(Record, error) bool) {
			us, err := expand(ctx, t)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, u := range us {
				if !yield(u, nil) {
					return
				}
			}
		}
	})
}

// Identity returns a stage that passes every record through unchanged.
func Identity() Stage {
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		return Emit(rec)
	})
}

// Tap returns a stage that calls fn(ctx, rec) then passes rec through unchanged.
// Use for logging, metrics, or side effects without changing the value.
func Tap(fn func(context.Context, Record)) Stage {
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		fn(ctx, rec)
		return Emit(rec)
	})
}

// Validate returns a stage that passes the record through only if predicate is
// true and fails the run with errMsg otherwise. Records must be of type T.
func Validate[T any](predicate func(T) bool, errMsg string) Stage {
	if errMsg == "" {
		errMsg = "validation failed"
	}
	return StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		v, ok := rec.(T)
		if !ok {
			var zero T
			return Fail(fmt.Errorf("validate: expected %T, got %T", zero, rec))
		}
		if !predicate(v) {
			return Fail(fmt.Errorf("%s", errMsg))
		}
		return Emit(rec)
	})
}

// WithTimeout runs inner with a context deadline of now+timeout per input record.
// The deadline covers the whole production for that record, including the time
// the rest of the chain spends on each yielded output.
func WithTimeout(inner Stage, timeout time.Duration) Stage {
	return namedStage{name: StageName(inner), Stage: StageFunc(func(ctx context.Context, rec Record, rc *RunContext) iter.Seq2[Record, error] {
		return func(yield func(Record, error) bool) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			for out, err := range inner.Process(ctx, rec, rc) {
				if !yield(out, err) || err != nil {
					return
				}
			}
		}
	})}
}
