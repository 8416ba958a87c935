// Package rota is the multi-channel activity decision engine.
//
// On every poll it tells the host exactly one thing to do next across a
// fixed roster of managed channels: engage inbound comments, schedule
// short-form content, index video transcripts, or, whenever any managed
// channel goes live, moderate the live chat, which preempts everything
// else and is itself never preempted.
//
// The router owns only scheduling state (per-channel phase + round-robin
// pointer). How an activity actually executes belongs to the host and its
// workers; the router consumes a LiveChecker and a Toggles source through
// narrow injected interfaces and performs no I/O of its own.
//
// Single-writer by contract: one host loop calls NextActivity, dispatches,
// then reports back via the Signal*Complete methods. All calls are
// serialized behind one mutex so an embedded concurrent host cannot observe
// pre-mutation phase state.
package rota
