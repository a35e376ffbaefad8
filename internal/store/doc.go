// Package store persists the session event ledger using SQLite.
//
// The ledger is an append-only table of lifecycle events (spawned,
// exited, closed, shutdown) keyed by agent session key. It answers
// questions about sessions that no longer exist, which the in-memory
// registries cannot.
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests with real SQLite.
package store
