// Package observer records pipeline runs so they can be monitored and resumed.
//
//   - RunObserver: a pipeline.Reporter that saves one Run row per run and
//     updates it at every checkpoint and when the run finishes.
//   - RunStore: where rows go. MemoryRunStore keeps them in process;
//     BunRunStore persists them to Postgres (pipeline_runs) through bun.
//   - Resumer: finds pipelines whose latest run failed and dispatches them
//     again through a scope.Project. Their checkpoints were left in place by
//     the failed run, so resumable sources pick up where it stopped. Call
//     ResumeFailed periodically (e.g. from a cron job).
package observer
