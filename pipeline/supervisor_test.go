package pipeline

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestIsRetryable(t *testing.T) {
	if IsRetryable(errFlaky) {
		t.Error("plain error should not be retryable")
	}
	wrapped := &StageError{Index: 1, Stage: "x", Err: RetryableErr(errFlaky)}
	if !IsRetryable(wrapped) {
		t.Error("retryable error wrapped in StageError should be retryable")
	}
	if !errors.Is(wrapped, errFlaky) {
		t.Error("Retryable should unwrap")
	}
}

func TestSupervise_ResumesAfterRetryableFailure(t *testing.T) {
	store := newRecordingStore()
	attempts := 0
	build := func() (*Pipeline, error) {
		attempts++
		limit := 1000
		if attempts == 1 {
			limit = 12
		}
		fail := StageFunc(func(ctx context.Context, rec Record, rc *RunContext) iter.Seq2[Record, error] {
			if rec.(int) >= limit {
				return Fail(RetryableErr(errFlaky))
			}
			return Emit(rec)
		})
		return New("supervised", []Stage{Range(0, 30).Resumable(), fail}, 5, store)
	}
	policy := RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond, ShouldRetry: IsRetryable}

	processed, err := Supervise(context.Background(), build, nil, policy, nil)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("attempts: got %d, want 2", attempts)
	}
	// The first attempt checkpointed at 10 records with record 9 in flight.
	if processed != 21 {
		t.Errorf("processed on the last attempt: got %d, want 21", processed)
	}
	if store.count("delete") != 1 {
		t.Errorf("delete calls: got %d", store.count("delete"))
	}
}

func TestSupervise_DoesNotReplayAfterRetiredNotificationError(t *testing.T) {
	store := newRecordingStore()
	attempts, records, failures := 0, 0, 0
	build := func() (*Pipeline, error) {
		attempts++
		return New("drained", []Stage{Range(0, 25).Resumable()}, 10, store)
	}
	reporter := ReporterFuncs{
		OnRecord: func(ctx context.Context, rc *RunContext, n int) error { records++; return nil },
		OnError:  func(ctx context.Context, rc *RunContext, cause error) error { failures++; return nil },
		OnRetired: func(ctx context.Context, rc *RunContext) error {
			if attempts == 1 {
				return RetryableErr(errFlaky)
			}
			return nil
		},
	}
	policy := RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond}

	processed, err := Supervise(context.Background(), build, reporter, policy, nil)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
	if processed != 25 || records != 25 {
		t.Errorf("processed %d, records through chain %d, want 25", processed, records)
	}
	if failures != 0 {
		t.Errorf("RunFailed calls: got %d, want 0", failures)
	}
	if n := store.count("delete"); n != 1 {
		t.Errorf("delete calls: got %d, want 1", n)
	}
}

func TestSupervise_StopsOnPermanentError(t *testing.T) {
	attempts := 0
	build := func() (*Pipeline, error) {
		attempts++
		return New("permanent", []Stage{Range(0, 3), &explodesAfter{limit: 1}}, 1, newRecordingStore())
	}
	_, err := Supervise(context.Background(), build, nil, RetryPolicy{MaxAttempts: 5, Initial: time.Millisecond, ShouldRetry: IsRetryable}, nil)
	if !errors.Is(err, errExploded) {
		t.Fatalf("got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts: got %d, want 1", attempts)
	}
}

func TestSupervise_GivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	build := func() (*Pipeline, error) {
		attempts++
		return New("always", []Stage{Range(0, 3), &explodesAfter{limit: 0}}, 1, newRecordingStore())
	}
	_, err := Supervise(context.Background(), build, nil, RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond}, nil)
	if !errors.Is(err, errExploded) {
		t.Fatalf("got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts: got %d, want 3", attempts)
	}
}

func TestSupervise_BuildError(t *testing.T) {
	errBuild := errors.New("no such stage")
	attempts := 0
	build := func() (*Pipeline, error) { attempts++; return nil, errBuild }
	_, err := Supervise(context.Background(), build, nil, RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond}, nil)
	if !errors.Is(err, errBuild) || attempts != 1 {
		t.Errorf("err=%v attempts=%d", err, attempts)
	}
}

func TestSupervise_CanceledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	build := func() (*Pipeline, error) {
		attempts++
		return New("canceled", []Stage{Range(0, 3)}, 1, newRecordingStore())
	}
	_, err := Supervise(ctx, build, nil, RetryPolicy{MaxAttempts: 3, Initial: time.Millisecond}, nil)
	if !errors.Is(err, context.Canceled) || attempts != 1 {
		t.Errorf("err=%v attempts=%d", err, attempts)
	}
}
