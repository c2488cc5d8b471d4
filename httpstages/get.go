package httpstages

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/dcshock/runpipe/pipeline"
)

// Get returns a source stage that performs an HTTP GET to the fixed url and yields the
// response body as []byte. The run context is used for the request (timeout and cancellation).
// If client is nil, http.DefaultClient is used.
func Get(client *http.Client, url string) pipeline.Stage {
	if client == nil {
		client = http.DefaultClient
	}
	return pipeline.Source("http.get", func(ctx context.Context, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		return func(yield func(pipeline.Record, error) bool) {
			body, err := get(ctx, client, url)
			if err != nil {
				yield(nil, fmt.Errorf("http get %w", err))
				return
			}
			yield(body, nil)
		}
	})
}

// Fetch returns a stage that performs an HTTP GET to the URL from the previous stage's output.
// Input must be a string URL. Yields the response body as []byte.
// If client is nil, http.DefaultClient is used.
func Fetch(client *http.Client) pipeline.Stage {
	if client == nil {
		client = http.DefaultClient
	}
	return pipeline.Named("http.fetch", pipeline.StageFunc(func(ctx context.Context, input pipeline.Record, _ *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
		url, ok := input.(string)
		if !ok {
			return pipeline.Fail(fmt.Errorf("http fetch: input must be URL string, got %T", input))
		}
		body, err := get(ctx, client, url)
		if err != nil {
			return pipeline.Fail(fmt.Errorf("http fetch %w", err))
		}
		return pipeline.Emit(body)
	}))
}

func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%q: new request: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%q: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%q: read body: %w", url, err)
	}
	return body, nil
}
