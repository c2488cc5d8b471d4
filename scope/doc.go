// Package scope dispatches run requests to named pipeline definitions.
//
// A Scope is a named collection of Definitions. RunRequest resolves a
// definition by name, builds a fresh pipeline.Pipeline from it (new stage
// instances, the store namespaced to scope then pipeline, the scope's config
// and annotations attached) and runs it. A request for a pipeline the scope
// does not contain is a no-op that returns 0; a request that ran returns 1.
//
// Runs of the same pipeline within a scope are serialized so a definition's
// checkpoint namespace only ever has one writer. Different pipelines run
// concurrently (see RunAll).
//
// A Project groups scopes and fans a request out to all of them.
package scope
