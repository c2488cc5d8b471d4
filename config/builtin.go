package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dcshock/runpipe/httpstages"
	"github.com/dcshock/runpipe/pipeline"
)

// DefaultRegistry returns a registry with the built-in stages registered.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry()
	RegisterBuiltins(r, logger)
	return r
}

// RegisterBuiltins registers the stages that ship with runpipe:
//
//	range        args: start (0), end (required), resumable (false)
//	values       args: values (list)
//	identity
//	log          args: message ("record"); logs every record at info level
//	http.get     args: url (required), timeout ("30s")
//	http.fetch   args: timeout ("30s")
//	json.parse
//	json.array
//	expect.field args: field (required), equals (required)
func RegisterBuiltins(r *Registry, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	r.Register("range", func(args Args) (pipeline.Stage, error) {
		start, err := args.Int("start", 0)
		if err != nil {
			return nil, err
		}
		end, err := args.Int("end", -1)
		if err != nil {
			return nil, err
		}
		if end < start {
			return nil, fmt.Errorf("arg \"end\" is required and must be >= start")
		}
		resumable, err := args.Bool("resumable", false)
		if err != nil {
			return nil, err
		}
		src := pipeline.Range(start, end)
		if resumable {
			src = src.Resumable()
		}
		return src, nil
	})

	r.Register("values", func(args Args) (pipeline.Stage, error) {
		vals, err := args.List("values")
		if err != nil {
			return nil, err
		}
		return pipeline.Values(vals...), nil
	})

	r.RegisterStage("identity", pipeline.Identity)

	r.Register("log", func(args Args) (pipeline.Stage, error) {
		msg, err := args.String("message", "record")
		if err != nil {
			return nil, err
		}
		return pipeline.Tap(func(ctx context.Context, rec pipeline.Record) {
			logger.InfoContext(ctx, msg, "record", rec)
		}), nil
	})

	r.Register("http.get", func(args Args) (pipeline.Stage, error) {
		url, err := args.RequiredString("url")
		if err != nil {
			return nil, err
		}
		client, err := httpClient(args)
		if err != nil {
			return nil, err
		}
		return httpstages.Get(client, url), nil
	})

	r.Register("http.fetch", func(args Args) (pipeline.Stage, error) {
		client, err := httpClient(args)
		if err != nil {
			return nil, err
		}
		return httpstages.Fetch(client), nil
	})

	r.RegisterStage("json.parse", httpstages.ParseJSON)
	r.RegisterStage("json.array", httpstages.ParseJSONArray)

	r.Register("expect.field", func(args Args) (pipeline.Stage, error) {
		field, err := args.RequiredString("field")
		if err != nil {
			return nil, err
		}
		want, ok := args["equals"]
		if !ok {
			return nil, fmt.Errorf("arg \"equals\" is required")
		}
		return httpstages.Expect(func(v interface{}) error {
			m, ok := v.(map[string]interface{})
			if !ok {
				return fmt.Errorf("expected object, got %T", v)
			}
			if got := m[field]; fmt.Sprint(got) != fmt.Sprint(want) {
				return fmt.Errorf("field %q: got %v, want %v", field, got, want)
			}
			return nil
		}), nil
	})
}

func httpClient(args Args) (*http.Client, error) {
	timeout, err := args.Duration("timeout", 30*time.Second)
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: timeout}, nil
}
