package httpstages

import (
	"context"
	"fmt"
	"iter"
	"reflect"

	"github.com/dcshock/runpipe/pipeline"
)

// Expect returns a stage that runs the predicate on the input. If the predicate returns an error,
// the stage yields that error and the pipeline fails. Otherwise the input is passed through unchanged.
// Use after ParseJSON to verify the decoded result (e.g. check status field, required keys).
func Expect(predicate func(interface{}) error) pipeline.Stage {
	if predicate == nil {
		panic("httpstages.Expect: predicate must not be nil")
	}
	return pipeline.Named("expect", pipeline.StageFunc(func(ctx context.Context, input pipeline.Record, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		if err := predicate(input); err != nil {
			return pipeline.Fail(fmt.Errorf("expect: %w", err))
		}
		return pipeline.Emit(input)
	}))
}

// ExpectEqual returns a stage that checks the input equals expected using reflect.DeepEqual.
// Works for primitives, slices, and maps (e.g. parsed JSON).
func ExpectEqual(expected interface{}) pipeline.Stage {
	return Expect(func(v interface{}) error {
		if !reflect.DeepEqual(v, expected) {
			return fmt.Errorf("got %v, want %v", v, expected)
		}
		return nil
	})
}
