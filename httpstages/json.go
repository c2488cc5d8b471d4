package httpstages

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/dcshock/runpipe/pipeline"
)

func rawJSON(input pipeline.Record) ([]byte, error) {
	switch v := input.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("input must be []byte or string, got %T", input)
	}
}

// ParseJSON returns a stage that unmarshals the input from JSON into a value.
// Input must be []byte or string (response body). Output is the decoded value (e.g. map[string]interface{} for objects).
func ParseJSON() pipeline.Stage {
	return pipeline.Named("json.parse", pipeline.StageFunc(func(ctx context.Context, input pipeline.Record, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		raw, err := rawJSON(input)
		if err != nil {
			return pipeline.Fail(fmt.Errorf("parsejson: %w", err))
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return pipeline.Fail(fmt.Errorf("parsejson: %w", err))
		}
		return pipeline.Emit(out)
	}))
}

// ParseJSONTo returns a stage that unmarshals the input from JSON into a value of type T.
// Input must be []byte or string. Output is *T.
func ParseJSONTo[T any]() pipeline.Stage {
	return pipeline.StageFunc(func(ctx context.Context, input pipeline.Record, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		raw, err := rawJSON(input)
		if err != nil {
			return pipeline.Fail(fmt.Errorf("parsejsonto: %w", err))
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return pipeline.Fail(fmt.Errorf("parsejsonto: %w", err))
		}
		return pipeline.Emit(&out)
	})
}

// ParseJSONArray returns a stage that decodes a JSON array and yields each
// element as its own record, in order. Elements are decoded lazily, so a
// consumer that stops early never decodes the rest.
func ParseJSONArray() pipeline.Stage {
	return pipeline.Named("json.array", pipeline.StageFunc(func(ctx context.Context, input pipeline.Record, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		raw, err := rawJSON(input)
		if err != nil {
			return pipeline.Fail(fmt.Errorf("parsejsonarray: %w", err))
		}
		return func(yield func(pipeline.Record, error) bool) {
			var elems []json.RawMessage
			if err := json.Unmarshal(raw, &elems); err != nil {
				yield(nil, fmt.Errorf("parsejsonarray: %w", err))
				return
			}
			for i, elem := range elems {
				var v interface{}
				if err := json.Unmarshal(elem, &v); err != nil {
					yield(nil, fmt.Errorf("parsejsonarray: element %d: %w", i, err))
					return
				}
				if !yield(v, nil) {
					return
				}
			}
		}
	}))
}
