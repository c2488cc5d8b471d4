// Package checkpoint provides the namespaced key/value store that pipelines use
// to persist and retire run-progress snapshots.
//
// A Store has four operations: Namespaced, Put, Get and Delete. Namespaced
// returns a view whose keys cannot collide with any other namespace, so a single
// underlying store can be shared by every pipeline of a process:
//
//	root := checkpoint.New(backend)
//	store := root.Namespaced("ingest").Namespaced("orders")
//	err := store.Put(ctx, "progress", snapshot)
//
// Stores built with New serialize values with a Codec (msgpack by default) and
// keep the resulting bytes in a Backend. Backends in this module:
//
//   - NewMemory: process-local map, for tests and one-shot CLI runs.
//   - badgerstore: embedded BadgerDB with synchronous writes.
//   - pgstore: a PostgreSQL table accessed through bun.
//   - gcsstore: objects in a Google Cloud Storage bucket.
//
// Get returns ErrNotFound for a missing key. Delete of a missing key is not an
// error. All stores in this module are safe for concurrent use.
package checkpoint
