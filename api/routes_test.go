package api_test

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dcshock/runpipe/api"
	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/observer"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router http.Handler
	store  checkpoint.Store
	etl    *scope.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	etl := scope.New("etl", scope.WithAnnotations(map[string]string{"team": "data"}))
	require.NoError(t, etl.Add(scope.Definition{
		Name:      "numbers",
		BatchSize: 5,
		Stages: func() ([]pipeline.Stage, error) {
			return []pipeline.Stage{pipeline.Range(0, 12)}, nil
		},
	}))
	require.NoError(t, etl.Add(scope.Definition{
		Name:      "broken",
		BatchSize: 5,
		Retry:     pipeline.RetryPolicy{MaxAttempts: 1},
		Stages: func() ([]pipeline.Stage, error) {
			return []pipeline.Stage{
				pipeline.Range(0, 12),
				pipeline.Validate(func(n int) bool { return n < 7 }, "seven is too many"),
			}, nil
		},
	}))
	project, err := scope.NewProject(etl, scope.New("empty"))
	require.NoError(t, err)

	store := checkpoint.NewMemory()
	h := api.NewPipelineHandler(project, store, nil, nil)
	return &fixture{router: api.SetupRoutes(h, nil), store: store, etl: etl}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestListScopes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/scopes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []api.ScopeSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "empty", got[0].Name)
	assert.Equal(t, "etl", got[1].Name)
	assert.Equal(t, []string{"broken", "numbers"}, got[1].Pipelines)
	assert.Equal(t, "data", got[1].Annotations["team"])
}

func TestListPipelines(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []api.PipelineSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "numbers", got[1].Name)
	assert.Equal(t, 5, got[1].BatchSize)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/nope/pipelines", "").Code)
}

func TestRunPipeline(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/numbers/run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.RunPipelineResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, api.RunPipelineResponse{Scope: "etl", Pipeline: "numbers", Executed: 1}, got)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/numbers/checkpoint", "").Code)
}

func TestRunPipeline_WithConfig(t *testing.T) {
	f := newFixture(t)
	var region any
	require.NoError(t, f.etl.Add(scope.Definition{
		Name:      "configured",
		BatchSize: 1,
		Stages: func() ([]pipeline.Stage, error) {
			return []pipeline.Stage{pipeline.Source("cfg", func(ctx context.Context, rc *pipeline.RunContext) iter.Seq2[pipeline.Record, error] {
				region, _ = rc.ConfigValue("region")
				return pipeline.Emit(1)
			})}, nil
		},
	}))
	rec := f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/configured/run", `{"config":{"region":"eu"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "eu", region)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/configured/run", `{`).Code)
}

func TestRunPipeline_Missing(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/nope/run", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var got api.RunPipelineResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 0, got.Executed)
}

func TestRunPipeline_FailureKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/broken/run", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var got api.RunPipelineResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 1, got.Executed)
	assert.Contains(t, got.Error, "seven is too many")

	rec = f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/broken/checkpoint", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap pipeline.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, int64(5), snap.Processed)
	assert.Equal(t, "broken", snap.Pipeline)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/v1/scopes/etl/pipelines/broken/checkpoint", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/broken/checkpoint", "").Code)
}

func TestCheckpoint_UnknownPipeline(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/nope/checkpoint", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/v1/scopes/etl/pipelines/nope/checkpoint", "").Code)
}

func TestListRuns(t *testing.T) {
	etl := scope.New("etl")
	require.NoError(t, etl.Add(scope.Definition{
		Name:      "numbers",
		BatchSize: 5,
		Stages: func() ([]pipeline.Stage, error) {
			return []pipeline.Stage{pipeline.Range(0, 12)}, nil
		},
	}))
	project, err := scope.NewProject(etl)
	require.NoError(t, err)
	runs := observer.NewMemoryRunStore()
	h := api.NewPipelineHandler(project, checkpoint.NewMemory(), observer.NewRunObserver(runs), nil).WithRunHistory(runs)
	f := &fixture{router: api.SetupRoutes(h, nil), etl: etl}

	for range 3 {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/scopes/etl/pipelines/numbers/run", "").Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/numbers/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []observer.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, observer.StatusSuccess, got[0].Status)
	assert.EqualValues(t, 12, got[0].Processed)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/numbers/runs?limit=x", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/nope/runs", "").Code)
}

func TestListRuns_Disabled(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/scopes/etl/pipelines/numbers/runs", "").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := api.RecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
