// Package workers defines the narrow interfaces the decision loop
// dispatches to. The scheduler decides WHAT to do next; a worker does it.
//
// Implementations live outside this module (browser automation, API
// clients). NoopSet gives a runnable default so the daemon works
// standalone: each noop worker logs the dispatch and sleeps briefly.
package workers
