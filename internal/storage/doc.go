// Package storage is the optional activity journal.
//
// The router's scheduling state is deliberately in-memory only; what gets
// persisted here is an append-only record of dispatched activities so
// operators can ask "what did the scheduler do" across restarts, and the
// daily report has something to aggregate.
//
// Drivers:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (build with -tags sqlite)
//   - "" / "none": disabled
package storage
