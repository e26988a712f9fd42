// Package store provides the key-value persistence backends quill keeps its
// state in.
//
// Every backend exposes the same tiny contract: get, set and delete an opaque
// value by key. quill stores the whole post collection as one value under one
// key, and the logged-in user under another, so nothing above this package
// depends on which backend is in use.
//
// # Backends
//
//   - Memory: process-local map, used by tests and the scenario harness
//   - SQLite: single kv table in a WAL-mode database (the default)
//   - File: one file per key in a directory, with change notifications
//   - Postgres: quill_kv table reached through a pgx pool
//   - NATS: JetStream key-value bucket
//
// # Concurrency
//
// Backends are safe for concurrent use, but Set replaces the whole value.
// Callers that read, modify and write a value back get no isolation from
// writers in other processes.
package store
