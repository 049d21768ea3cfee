// Package store provides the Local Store: named collections of JSON records
// addressed by id.
//
// Two implementations satisfy the Store interface:
//   - SQLite: durable storage in a single SQLite file (mattn/go-sqlite3)
//   - Memory: a volatile map for tests and as the fallback when the durable
//     backend is unavailable
//
// Callers cannot tell the two apart; they only see operations succeed or
// fail. Missing keys are never errors: Get reports absence, Delete of an
// absent id is a no-op and GetAll of an unknown collection is empty.
//
// # Ordering
//
// GetAll returns records in insertion order. Each record carries a
// store-wide seq assigned on first insert; overwriting a record with Set
// keeps its original position. Ties are impossible because seq is unique.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: SQLite has one writer; serializing on one
//     connection keeps seq assignment race free
package store
