package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

// collect drains stage.Process for one input and stops at the first error.
func collect(ctx context.Context, stage Stage, in Record) ([]Record, error) {
	var out []Record
	for rec, err := range stage.Process(ctx, in, &RunContext{State: map[string]any{}}) {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func TestIdentity(t *testing.T) {
	ctx := context.Background()
	stage := Identity()

	for _, in := range []Record{nil, 42, "hello"} {
		out, err := collect(ctx, stage, in)
		if err != nil {
			t.Errorf("Identity(%v): err = %v", in, err)
		}
		if len(out) != 1 || out[0] != in {
			t.Errorf("Identity(%v): got %v", in, out)
		}
	}
	slice := []int{1, 2, 3}
	out, err := collect(ctx, stage, slice)
	if err != nil {
		t.Errorf("Identity(slice): err = %v", err)
	}
	if len(out) != 1 || !reflect.DeepEqual(out[0], slice) {
		t.Errorf("Identity(slice): got %v", out)
	}
}

func TestTap(t *testing.T) {
	ctx := context.Background()
	var seenCtx context.Context
	var seenInput Record
	stage := Tap(func(c context.Context, v Record) {
		seenCtx = c
		seenInput = v
	})

	out, err := collect(ctx, stage, "tapped")
	if err != nil {
		t.Fatalf("Tap: err = %v", err)
	}
	if seenCtx != ctx || seenInput != "tapped" {
		t.Errorf("Tap: fn called with ctx=%v input=%v", seenCtx, seenInput)
	}
	if len(out) != 1 || out[0] != "tapped" {
		t.Errorf("Tap: got %v", out)
	}
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	double := Map(func(ctx context.Context, n int) (int, error) { return n * 2, nil })

	out, err := collect(ctx, double, 21)
	if err != nil || len(out) != 1 || out[0] != 42 {
		t.Errorf("Map(21): got %v, %v", out, err)
	}
	if _, err := collect(ctx, double, "21"); err == nil || !strings.Contains(err.Error(), "expected int, got string") {
		t.Errorf("Map type mismatch: got %v", err)
	}

	errBad := errors.New("bad")
	failing := Transform(func(ctx context.Context, s string) (int, error) { return 0, errBad })
	if _, err := collect(ctx, failing, "x"); !errors.Is(err, errBad) {
		t.Errorf("Transform error: got %v", err)
	}
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	even := Filter(func(n int) bool { return n%2 == 0 })
	if out, _ := collect(ctx, even, 4); len(out) != 1 {
		t.Errorf("Filter(4): got %v", out)
	}
	if out, _ := collect(ctx, even, 3); len(out) != 0 {
		t.Errorf("Filter(3): got %v", out)
	}
	if _, err := collect(ctx, even, "4"); err == nil {
		t.Error("Filter type mismatch: want error")
	}
}

func TestFlatMap(t *testing.T) {
	ctx := context.Background()
	split := FlatMap(func(ctx context.Context, s string) ([]string, error) { return strings.Split(s, ","), nil })
	out, err := collect(ctx, split, "a,b,c")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, []Record{"a", "b", "c"}) {
		t.Errorf("FlatMap: got %v", out)
	}

	errBad := errors.New("cannot expand")
	broken := FlatMap(func(ctx context.Context, s string) ([]string, error) { return nil, errBad })
	if _, err := collect(ctx, broken, "x"); !errors.Is(err, errBad) {
		t.Errorf("FlatMap error: got %v", err)
	}
}

func TestFlatMap_StopsWhenConsumerStops(t *testing.T) {
	split := FlatMap(func(ctx context.Context, n int) ([]int, error) { return []int{1, 2, 3, 4}, nil })
	var got []Record
	for rec := range split.Process(context.Background(), 0, nil) {
		got = append(got, rec)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	positive := Validate(func(n int) bool { return n > 0 }, "must be positive")

	if out, err := collect(ctx, positive, 5); err != nil || len(out) != 1 || out[0] != 5 {
		t.Errorf("Validate(5): got %v, %v", out, err)
	}
	if _, err := collect(ctx, positive, -1); err == nil || err.Error() != "must be positive" {
		t.Errorf("Validate(-1): got %v", err)
	}
	if _, err := collect(ctx, positive, "5"); err == nil {
		t.Error("Validate type mismatch: want error")
	}
	defaulted := Validate(func(n int) bool { return false }, "")
	if _, err := collect(ctx, defaulted, 1); err == nil || err.Error() != "validation failed" {
		t.Errorf("Validate default message: got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	slow := StageFunc(func(ctx context.Context, rec Record, _ *RunContext) iter.Seq2[Record, error] {
		return func(yield func(Record, error) bool) {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
			case <-time.After(time.Second):
				yield(rec, nil)
			}
		}
	})
	if _, err := collect(ctx, WithTimeout(slow, 5*time.Millisecond), 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WithTimeout: got %v", err)
	}

	fast := WithTimeout(Identity(), time.Second)
	if out, err := collect(ctx, fast, 7); err != nil || len(out) != 1 {
		t.Errorf("WithTimeout fast: got %v, %v", out, err)
	}
}

func TestStageName(t *testing.T) {
	if got := StageName(Named("parse", Identity())); got != "parse" {
		t.Errorf("Named: got %q", got)
	}
	if got := StageName(Range(0, 1)); got != "range" {
		t.Errorf("Range: got %q", got)
	}
	if got := StageName(WithTimeout(Named("fetch", Identity()), time.Second)); got != "fetch" {
		t.Errorf("WithTimeout keeps inner name: got %q", got)
	}
	if got := StageName(Identity()); got != "pipeline.StageFunc" {
		t.Errorf("unnamed: got %q", got)
	}
}

func TestSources(t *testing.T) {
	ctx := context.Background()

	out, err := collect(ctx, Values("a", 1, true), nil)
	if err != nil || !reflect.DeepEqual(out, []Record{"a", 1, true}) {
		t.Errorf("Values: got %v, %v", out, err)
	}

	out, err = collect(ctx, FromSeq(slices.Values([]string{"x", "y"})), nil)
	if err != nil || !reflect.DeepEqual(out, []Record{"x", "y"}) {
		t.Errorf("FromSeq: got %v, %v", out, err)
	}

	out, err = collect(ctx, Range(3, 6), nil)
	if err != nil || !reflect.DeepEqual(out, []Record{3, 4, 5}) {
		t.Errorf("Range: got %v, %v", out, err)
	}

	named := Source("letters", func(ctx context.Context, rc *RunContext) iter.Seq2[Record, error] { return Emit("p", "q") })
	if StageName(named) != "letters" {
		t.Errorf("Source name: got %q", StageName(named))
	}
	out, _ = collect(ctx, named, nil)
	if fmt.Sprint(out) != "[p q]" {
		t.Errorf("Source: got %v", out)
	}
}

func TestRange_ResumeWithoutCheckpoint(t *testing.T) {
	rc := &RunContext{store: newRecordingStore()}
	var got []Record
	for rec, err := range Range(0, 3).Resumable().Process(context.Background(), nil, rc) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rec)
	}
	if len(got) != 3 || rc.ResumeOffset != 0 {
		t.Errorf("got %v, resume offset %d", got, rc.ResumeOffset)
	}
}

func TestLastCheckpoint_RejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	if err := store.Put(ctx, CheckpointKey, Snapshot{Version: SnapshotVersion + 1}); err != nil {
		t.Fatal(err)
	}
	rc := &RunContext{store: store}
	if _, _, err := rc.LastCheckpoint(ctx); err == nil {
		t.Error("want error for a snapshot from a newer version")
	}
	if _, err := collect(ctx, Range(0, 3).Resumable(), nil); err != nil {
		t.Errorf("nil-store run context should not fail: %v", err)
	}
}
