package rota

import (
	"context"
	"errors"
)

// Channel is one managed roster entry. Configured once, immutable for the
// process lifetime.
type Channel struct {
	// ID is the opaque channel identity used in signals and the journal.
	ID string `json:"id"`
	// Name is the human-facing display name.
	Name string `json:"name"`
	// Surface is the opaque browser/profile affinity label attached to
	// decisions for this channel. The router passes it through untouched.
	Surface string `json:"surface"`
}

// Phase is one of the ordered per-channel background-work stages.
type Phase string

const (
	PhaseComments Phase = "comments"
	PhaseShorts   Phase = "shorts"
	PhaseIndexing Phase = "indexing"
	PhaseComplete Phase = "complete"
)

var phaseOrder = []Phase{PhaseComments, PhaseShorts, PhaseIndexing, PhaseComplete}

// rank returns the position of p in the phase ladder, or -1 for unknown.
func (p Phase) rank() int {
	for i, q := range phaseOrder {
		if p == q {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p.rank() >= 0 }

// next returns the successor phase. PhaseComplete is terminal.
func (p Phase) next() Phase {
	r := p.rank()
	if r < 0 || r >= len(phaseOrder)-1 {
		return PhaseComplete
	}
	return phaseOrder[r+1]
}

// Activity is the single unit of work the host must perform next.
type Activity string

const (
	ActivityComments Activity = "comment_engagement"
	ActivityShorts   Activity = "shorts_scheduling"
	ActivityIndexing Activity = "video_indexing"
	// ActivityChannelComplete is the table value for a channel with no
	// background work left. The router interprets it internally as "advance
	// the round-robin pointer"; NextActivity never returns it to the host.
	ActivityChannelComplete Activity = "channel_complete"
	ActivityLiveChat        Activity = "live_chat"
	ActivityIdle            Activity = "idle"
)

// Decision is the immutable value object returned to the host. It is
// recomputed on every call and never persisted.
type Decision struct {
	Activity    Activity          `json:"activity"`
	ChannelID   string            `json:"channel_id,omitempty"`
	ChannelName string            `json:"channel_name,omitempty"`
	Surface     string            `json:"surface,omitempty"`
	Reason      string            `json:"reason"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// Toggles exposes the two feature flags. Implementations must resolve them
// live from host configuration: the router re-reads them on every decision
// and never caches the result.
type Toggles interface {
	ShortsEnabled() bool
	IndexingEnabled() bool
}

// StaticToggles is a fixed Toggles value (tests, headless defaults).
type StaticToggles struct {
	Shorts   bool
	Indexing bool
}

func (t StaticToggles) ShortsEnabled() bool   { return t.Shorts }
func (t StaticToggles) IndexingEnabled() bool { return t.Indexing }

// LiveChecker answers "is any managed channel live right now". It sits on
// the hot path of every decision, so implementations must be fast and
// side-effect-free (pre-polled/cached upstream; see livecheck.Poller).
type LiveChecker interface {
	IsAnyChannelLive(ctx context.Context) (bool, error)
}

// LiveCheckerFunc adapts a function to the LiveChecker interface.
type LiveCheckerFunc func(ctx context.Context) (bool, error)

func (f LiveCheckerFunc) IsAnyChannelLive(ctx context.Context) (bool, error) { return f(ctx) }

var (
	// ErrUnknownChannel reports a signal for a channel id absent from the
	// roster: the host and router have desynchronized rosters.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrOutOfOrderSignal reports a completion signal that does not match
	// the channel's current phase: host/worker desynchronization. Never
	// silently reordered.
	ErrOutOfOrderSignal = errors.New("out-of-order signal")
)

// Bus event types published by the router.
const (
	EventLiveStart      = "rota.live.start"
	EventLiveStop       = "rota.live.stop"
	EventCycleComplete  = "rota.cycle.complete"
	EventSignalRejected = "rota.signal.rejected"
)

// CycleEvent is the payload of EventCycleComplete.
type CycleEvent struct {
	Cycle uint64 `json:"cycle"`
}

// SignalRejection is the payload of EventSignalRejected.
type SignalRejection struct {
	ChannelID string `json:"channel_id"`
	Signal    string `json:"signal"`
	Error     string `json:"error"`
}
