// Package metrics exports pipeline run events as Prometheus metrics.
//
// A Collector owns the metric vectors and is registered once; ForPipeline
// returns a pipeline.Reporter bound to one scope/pipeline label pair, which
// is how a scope's reporter factory gives each run its labels.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/dcshock/runpipe/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "runpipe"
	subsystem = "pipeline"
)

// Collector holds the pipeline metric vectors.
type Collector struct {
	runsStarted    *prometheus.CounterVec
	runsFinished   *prometheus.CounterVec
	records        *prometheus.CounterVec
	checkpoints    *prometheus.CounterVec
	retired        *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	inProgress     *prometheus.GaugeVec
	lastCheckpoint *prometheus.GaugeVec
}

// New creates the collector's metrics and registers them with reg.
// Use prometheus.NewRegistry() in tests to keep them isolated.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	labels := []string{"scope", "pipeline"}
	return &Collector{
		runsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_started_total",
			Help:      "Total pipeline runs started",
		}, labels),
		runsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Total pipeline runs finished by status (success, failure)",
		}, append(labels, "status")),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "records_processed_total",
			Help:      "Total records that reached the end of the stage chain",
		}, labels),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoints_saved_total",
			Help:      "Total checkpoints written at batch boundaries",
		}, labels),
		retired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkpoints_retired_total",
			Help:      "Total checkpoints deleted after a fully drained run",
		}, labels),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds by status",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, append(labels, "status")),
		inProgress: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_in_progress",
			Help:      "Pipeline runs currently in progress",
		}, labels),
		lastCheckpoint: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_checkpoint_processed",
			Help:      "Processed count recorded in the most recent checkpoint",
		}, labels),
	}
}

// ForPipeline returns a Reporter that records events under the given labels.
func (c *Collector) ForPipeline(scope, name string) pipeline.Reporter {
	return &Reporter{c: c, scope: scope, pipeline: name, now: time.Now}
}

// Reporter is a pipeline.Reporter and pipeline.CheckpointObserver for one
// scope/pipeline pair.
type Reporter struct {
	c               *Collector
	scope, pipeline string
	now             func() time.Time

	// started holds the IDs of runs whose RunStarted reached this reporter.
	started sync.Map
}

func (r *Reporter) RunStarted(ctx context.Context, rc *pipeline.RunContext) error {
	r.started.Store(rc.RunID, struct{}{})
	r.c.runsStarted.WithLabelValues(r.scope, r.pipeline).Inc()
	r.c.inProgress.WithLabelValues(r.scope, r.pipeline).Inc()
	return nil
}

func (r *Reporter) RecordProcessed(ctx context.Context, rc *pipeline.RunContext, count int) error {
	r.c.records.WithLabelValues(r.scope, r.pipeline).Inc()
	return nil
}

// RunCompleted records nothing: the run is not successful until its checkpoint
// has been retired.
func (r *Reporter) RunCompleted(ctx context.Context, rc *pipeline.RunContext, count int) error {
	return nil
}

func (r *Reporter) RunFailed(ctx context.Context, rc *pipeline.RunContext, cause error) error {
	r.finish(rc, "failure")
	return nil
}

func (r *Reporter) CheckpointSaved(ctx context.Context, rc *pipeline.RunContext, snap pipeline.Snapshot) error {
	r.c.checkpoints.WithLabelValues(r.scope, r.pipeline).Inc()
	r.c.lastCheckpoint.WithLabelValues(r.scope, r.pipeline).Set(float64(snap.Processed))
	return nil
}

func (r *Reporter) CheckpointRetired(ctx context.Context, rc *pipeline.RunContext) error {
	r.c.retired.WithLabelValues(r.scope, r.pipeline).Inc()
	r.c.lastCheckpoint.WithLabelValues(r.scope, r.pipeline).Set(0)
	r.finish(rc, "success")
	return nil
}

// finish closes a run this reporter saw start. Runs it never saw (an earlier
// reporter failed RunStarted) are ignored so the in-progress gauge stays balanced.
func (r *Reporter) finish(rc *pipeline.RunContext, status string) {
	if _, ok := r.started.LoadAndDelete(rc.RunID); !ok {
		return
	}
	r.c.runsFinished.WithLabelValues(r.scope, r.pipeline, status).Inc()
	r.c.runDuration.WithLabelValues(r.scope, r.pipeline, status).Observe(r.now().Sub(rc.StartedAt).Seconds())
	r.c.inProgress.WithLabelValues(r.scope, r.pipeline).Dec()
}

var _ pipeline.CheckpointObserver = (*Reporter)(nil)
