package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dcshock/runpipe/checkpoint"
	"github.com/dcshock/runpipe/pipeline"
	"github.com/dcshock/runpipe/scope"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_SuccessfulRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	p, err := pipeline.New("numbers", []pipeline.Stage{pipeline.Range(0, 25)}, 10, checkpoint.NewMemory())
	require.NoError(t, err)
	_, err = p.Run(context.Background(), c.ForPipeline("etl", "numbers"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsStarted.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 25.0, testutil.ToFloat64(c.records.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.checkpoints.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.retired.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "numbers", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inProgress.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.lastCheckpoint.WithLabelValues("etl", "numbers")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestReporter_FailedRun(t *testing.T) {
	c := New(prometheus.NewRegistry())

	p, err := pipeline.New("flaky", []pipeline.Stage{
		pipeline.Range(0, 100),
		pipeline.Validate(func(n int) bool { return n < 15 }, "too big"),
	}, 10, checkpoint.NewMemory())
	require.NoError(t, err)
	_, err = p.Run(context.Background(), c.ForPipeline("etl", "flaky"))
	require.Error(t, err)

	assert.Equal(t, 15.0, testutil.ToFloat64(c.records.WithLabelValues("etl", "flaky")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "flaky", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "flaky", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.lastCheckpoint.WithLabelValues("etl", "flaky")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inProgress.WithLabelValues("etl", "flaky")))
}

type failingDelete struct{ checkpoint.Store }

func (failingDelete) Delete(context.Context, string) error { return errors.New("delete failed") }

func TestReporter_RetireFailureCountsOnce(t *testing.T) {
	c := New(prometheus.NewRegistry())
	p, err := pipeline.New("retire", []pipeline.Stage{pipeline.Range(0, 3)}, 10, failingDelete{checkpoint.NewMemory()})
	require.NoError(t, err)
	_, err = p.Run(context.Background(), c.ForPipeline("etl", "retire"))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "retire", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "retire", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inProgress.WithLabelValues("etl", "retire")))
}

func TestReporter_IgnoresRunsItNeverSawStart(t *testing.T) {
	c := New(prometheus.NewRegistry())
	gate := pipeline.ReporterFuncs{OnStart: func(ctx context.Context, rc *pipeline.RunContext) error {
		return errors.New("gate closed")
	}}

	p, err := pipeline.New("gated", []pipeline.Stage{pipeline.Range(0, 5)}, 10, checkpoint.NewMemory())
	require.NoError(t, err)
	_, err = p.Run(context.Background(), pipeline.MultiReporter(gate, c.ForPipeline("etl", "gated")))
	require.ErrorContains(t, err, "gate closed")

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inProgress.WithLabelValues("etl", "gated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsFinished.WithLabelValues("etl", "gated", "failure")))
}

func TestCollector_AsScopeReporterFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	s := scope.New("ingest", scope.WithReporters(c.ForPipeline))
	require.NoError(t, s.Add(scope.Definition{
		Name:      "letters",
		BatchSize: 2,
		Stages: func() ([]pipeline.Stage, error) {
			return []pipeline.Stage{pipeline.Values("a", "b", "c")}, nil
		},
	}))
	_, err := s.RunRequest(context.Background(), scope.RunRequest{Pipeline: "letters", Store: checkpoint.NewMemory()})
	require.NoError(t, err)

	expected := `
# HELP runpipe_pipeline_records_processed_total Total records that reached the end of the stage chain
# TYPE runpipe_pipeline_records_processed_total counter
runpipe_pipeline_records_processed_total{pipeline="letters",scope="ingest"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "runpipe_pipeline_records_processed_total"))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
