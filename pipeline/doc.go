// Package pipeline runs a named, ordered chain of stages over a stream of records
// and checkpoints progress so a failed run can be resumed.
//
// The first stage is the source: it is invoked once and produces the stream.
// Every later stage is a transform: it is invoked once per input record and
// yields zero (filter), one (map) or many (flat-map) records. Production is lazy
// (iter.Seq2), and each source record is driven depth-first through the whole
// chain before the next one is pulled, so output order is the left-to-right
// composition of every stage's per-record output.
//
//	p, err := pipeline.New("numbers",
//	    []pipeline.Stage{
//	        pipeline.Range(0, 1_000_000).Resumable(),
//	        pipeline.Filter(func(n int) bool { return n%2 == 0 }),
//	        pipeline.Map(func(ctx context.Context, n int) (string, error) { return strconv.Itoa(n), nil }),
//	    },
//	    1000, store.Namespaced("numbers"))
//	processed, err := p.Run(ctx, pipeline.NewLogReporter(logger, 10_000))
//
// # Checkpoints
//
// Every BatchSize records that reach the end of the chain, Run writes a Snapshot
// under CheckpointKey in the pipeline's checkpoint.Store. The write is synchronous:
// Run does not pull another record until Put has returned. The batch size is a
// cadence, not a transaction; a snapshot records how much of the stream has been
// observed, not that anything downstream committed it.
//
// The checkpoint is deleted only after the source is exhausted without error.
// Any failure (a stage error, a Reporter error, a store error or a canceled
// context) leaves the most recent snapshot in place. Run never consumes the
// checkpoint itself; a source that wants to resume reads it through
// RunContext.LastCheckpoint (RangeSource.Resumable does this) and skips ahead,
// which gives at-least-once processing at batch granularity.
//
// # Reporting
//
// A Reporter is told when the run starts, after every processed record, and when
// the run completes or fails. It is called inline, so a slow reporter slows the
// run, and an error from it fails the run exactly like a stage error. Reporters
// that also implement CheckpointObserver hear about saved and retired snapshots.
//
// # Retrying
//
// Run never retries. Supervise rebuilds the pipeline and runs it again with
// exponential backoff when the failure is retryable, relying on the checkpoint
// left by the failed attempt.
package pipeline
