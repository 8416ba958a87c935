// Package livecheck answers "is any managed channel live right now".
//
// The router consults the checker on every decision, so the checker must be
// fast and side-effect-free. Poller wraps a slow upstream query (platform
// API, scraping bridge, whatever the host wires in) and serves the cached
// verdict, refreshing it in the background on a fixed cadence.
package livecheck
