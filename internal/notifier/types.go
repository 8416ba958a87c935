package notifier

import "time"

// Config tunes the delivery pipeline. Zero values take the defaults applied
// in Apply.
type Config struct {
	Enabled bool

	// Pool and queue sizing; effective on the next Start.
	Workers   int
	QueueSize int

	// Outbound throttle, messages per second.
	RatePerSec int

	// Retry policy for transient send failures.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// Identical messages inside the window are absorbed.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// HistoryItem is one delivered message kept for the operator status view.
type HistoryItem struct {
	At   time.Time
	Text string
}
