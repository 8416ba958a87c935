package rota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rotabot/internal/eventbus"
	logx "rotabot/pkg/logx"
)

// DefaultLiveSurface is the execution surface attached to live-chat
// decisions when the host does not configure one.
const DefaultLiveSurface = "edge"

// Config assembles a Router. Roster, toggle source and live checker are
// injected by the host; the router never reads environment or files itself.
type Config struct {
	Roster  []Channel
	Toggles Toggles
	Live    LiveChecker

	// LiveSurface is the dedicated execution surface for live-chat work.
	// Defaults to DefaultLiveSurface.
	LiveSurface string

	// CycleCooldown, when > 0, makes the router return idle decisions for
	// this long after a full-cycle reset before starting the next cycle.
	CycleCooldown time.Duration

	Log logx.Logger
	Bus eventbus.Bus

	// Now overrides the clock (tests).
	Now func() time.Time
}

type channelState struct {
	ch    Channel
	phase Phase

	// comments is the cumulative processed-comment count reported via
	// SignalCommentsComplete. It survives cycle resets.
	comments int64
}

// Router holds the round-robin pointer plus all channel states.
type Router struct {
	mu sync.Mutex

	states []*channelState
	cur    int

	toggles Toggles
	live    LiveChecker

	liveSurface string
	cooldown    time.Duration

	paused        bool
	cycle         uint64
	cooldownUntil time.Time
	liveActive    bool

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time
}

// New validates the roster and builds a router with every channel in the
// comments phase and the pointer at roster index 0. An empty roster or a
// duplicate channel id is a fatal configuration error.
func New(cfg Config) (*Router, error) {
	if len(cfg.Roster) == 0 {
		return nil, fmt.Errorf("rota: channel roster is empty")
	}
	seen := make(map[string]struct{}, len(cfg.Roster))
	states := make([]*channelState, 0, len(cfg.Roster))
	for i, ch := range cfg.Roster {
		if ch.ID == "" {
			return nil, fmt.Errorf("rota: roster entry %d has no id", i)
		}
		if _, dup := seen[ch.ID]; dup {
			return nil, fmt.Errorf("rota: duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = struct{}{}
		states = append(states, &channelState{ch: ch, phase: PhaseComments})
	}

	r := &Router{
		states:      states,
		toggles:     cfg.Toggles,
		live:        cfg.Live,
		liveSurface: cfg.LiveSurface,
		cooldown:    cfg.CycleCooldown,
		log:         cfg.Log,
		bus:         cfg.Bus,
		now:         cfg.Now,
	}
	if r.toggles == nil {
		r.toggles = StaticToggles{Shorts: true, Indexing: true}
	}
	if r.live == nil {
		r.live = LiveCheckerFunc(func(context.Context) (bool, error) { return false, nil })
	}
	if r.liveSurface == "" {
		r.liveSurface = DefaultLiveSurface
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// NextActivity produces the next decision. The live checker is consulted
// first on every call; an active stream preempts all background scheduling
// and carries no roster-advancement side effect. Otherwise the decision is
// a read of the current channel's phase through the activity table, with
// the round-robin pointer silently skipped past channels that have no
// background work left.
//
// No phase is ever advanced here; calling NextActivity twice with no
// intervening signal returns an identical decision both times.
func (r *Router) NextActivity(ctx context.Context) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	var meta map[string]string

	live, err := r.live.IsAnyChannelLive(ctx)
	if err != nil {
		// Fail safe: treat as not live so background scheduling keeps
		// running, but keep the failure observable on the decision.
		live = false
		meta = map[string]string{"live_check_error": err.Error()}
		r.log.Warn("live check failed; assuming not live", logx.Err(err))
	}

	if live {
		if !r.liveActive {
			r.liveActive = true
			r.publish(EventLiveStart, nil)
			r.log.Info("live stream detected; preempting background scheduling")
		}
		return r.liveDecision(meta)
	}
	if r.liveActive {
		r.liveActive = false
		r.publish(EventLiveStop, nil)
		r.log.Info("live stream ended; resuming background scheduling")
	}

	if r.paused {
		return Decision{Activity: ActivityIdle, Reason: "scheduling paused", Meta: meta}
	}

	if !r.cooldownUntil.IsZero() {
		if now := r.now(); now.Before(r.cooldownUntil) {
			m := cloneMeta(meta)
			m["resume_at"] = r.cooldownUntil.UTC().Format(time.RFC3339)
			return Decision{Activity: ActivityIdle, Reason: "cycle cooldown", Meta: m}
		}
		r.cooldownUntil = time.Time{}
	}

	ts := r.toggleState()
	for range r.states {
		st := r.states[r.cur]
		act := activityFor(st.phase, ts)
		if act != ActivityChannelComplete {
			return r.decisionFor(st, act, meta)
		}
		// The newly current channel keeps whatever phase it was in.
		r.cur = (r.cur + 1) % len(r.states)
	}

	// Every roster entry has completed the cycle: snap all channels back to
	// comments and restart from channel 0.
	r.cycle++
	for _, st := range r.states {
		st.phase = PhaseComments
	}
	r.cur = 0
	r.publish(EventCycleComplete, CycleEvent{Cycle: r.cycle})
	r.log.Info("roster cycle complete; all channels reset", logx.Uint64("cycle", r.cycle))

	if r.cooldown > 0 {
		r.cooldownUntil = r.now().Add(r.cooldown)
		m := cloneMeta(meta)
		m["resume_at"] = r.cooldownUntil.UTC().Format(time.RFC3339)
		return Decision{Activity: ActivityIdle, Reason: "cycle cooldown", Meta: m}
	}
	return r.decisionFor(r.states[0], ActivityComments, meta)
}

// InterruptFor decides whether work already in flight must yield to a
// freshly detected live stream. Live chat is maximal priority and is never
// itself preemptable. The host is expected to poll this between discrete
// steps of long-running background work.
func (r *Router) InterruptFor(ctx context.Context, current Activity) (Decision, bool) {
	if current == ActivityLiveChat {
		return Decision{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	live, err := r.live.IsAnyChannelLive(ctx)
	if err != nil {
		// Fail safe: in-flight background work keeps running.
		r.log.Warn("live check failed during interrupt poll", logx.Err(err))
		return Decision{}, false
	}
	if !live {
		return Decision{}, false
	}
	return r.liveDecision(nil), true
}

// SignalCommentsComplete reports finished comment engagement for a channel.
// processed is the number of comments handled and may be zero.
func (r *Router) SignalCommentsComplete(channelID string, processed int) error {
	return r.signal(channelID, PhaseComments, processed)
}

// SignalShortsComplete reports finished short-form scheduling for a channel.
func (r *Router) SignalShortsComplete(channelID string) error {
	return r.signal(channelID, PhaseShorts, 0)
}

// SignalIndexingComplete reports finished video indexing for a channel.
func (r *Router) SignalIndexingComplete(channelID string) error {
	return r.signal(channelID, PhaseIndexing, 0)
}

// Pause makes the router return idle decisions until Resume. Live-chat
// preemption stays active while paused.
func (r *Router) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		r.paused = true
		r.log.Info("background scheduling paused")
	}
}

// Resume re-enables background scheduling after Pause.
func (r *Router) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused {
		r.paused = false
		r.log.Info("background scheduling resumed")
	}
}

// Roster returns a copy of the configured channel roster.
func (r *Router) Roster() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Channel, len(r.states))
	for i, st := range r.states {
		out[i] = st.ch
	}
	return out
}

// ---- internals ----

func (r *Router) signal(channelID string, done Phase, processed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := signalName(done)

	st := r.lookup(channelID)
	if st == nil {
		err := fmt.Errorf("%w: %q", ErrUnknownChannel, channelID)
		r.reject(channelID, name, err)
		return err
	}

	if st.phase.rank() > done.rank() {
		err := fmt.Errorf("%w: %s for channel %q already past %s (phase %s)",
			ErrOutOfOrderSignal, name, channelID, done, st.phase)
		r.reject(channelID, name, err)
		return err
	}

	// Phases between the stored phase and the signaled one must all be
	// toggled off (the decision-time skip path); anything else means the
	// host finished work the router never handed out.
	ts := r.toggleState()
	for p := st.phase; p != done; p = p.next() {
		if phaseEnabled(p, ts) {
			err := fmt.Errorf("%w: %s for channel %q still in %s phase",
				ErrOutOfOrderSignal, name, channelID, p)
			r.reject(channelID, name, err)
			return err
		}
	}

	st.phase = done.next()
	if done == PhaseComments && processed > 0 {
		st.comments += int64(processed)
	}
	r.log.Debug("phase advanced",
		logx.String("channel", channelID),
		logx.String("signal", name),
		logx.String("phase", string(st.phase)),
		logx.Int("comments_processed", processed))
	return nil
}

func (r *Router) lookup(channelID string) *channelState {
	for _, st := range r.states {
		if st.ch.ID == channelID {
			return st
		}
	}
	return nil
}

func (r *Router) toggleState() toggleState {
	// Resolved live on every call, never cached: a runtime toggle flip
	// changes future decisions without rewriting stored phase.
	return toggleState{
		shorts:   r.toggles.ShortsEnabled(),
		indexing: r.toggles.IndexingEnabled(),
	}
}

func (r *Router) decisionFor(st *channelState, act Activity, meta map[string]string) Decision {
	var reason string
	switch act {
	case ActivityComments:
		reason = "comment engagement pending"
	case ActivityShorts:
		reason = "shorts scheduling pending"
	case ActivityIndexing:
		if st.phase == PhaseShorts {
			reason = "shorts disabled; video indexing pending"
		} else {
			reason = "video indexing pending"
		}
	}
	m := cloneMeta(meta)
	m["phase"] = string(st.phase)
	return Decision{
		Activity:    act,
		ChannelID:   st.ch.ID,
		ChannelName: st.ch.Name,
		Surface:     st.ch.Surface,
		Reason:      reason,
		Meta:        m,
	}
}

func (r *Router) liveDecision(meta map[string]string) Decision {
	// No channel attribution: live chat is orthogonal to per-channel phase
	// progression and never mutates channel state.
	return Decision{
		Activity: ActivityLiveChat,
		Surface:  r.liveSurface,
		Reason:   "active live stream detected",
		Meta:     meta,
	}
}

func (r *Router) reject(channelID, signal string, err error) {
	r.log.Error("signal rejected",
		logx.String("channel", channelID),
		logx.String("signal", signal),
		logx.Err(err))
	r.publish(EventSignalRejected, SignalRejection{
		ChannelID: channelID,
		Signal:    signal,
		Error:     err.Error(),
	})
}

func (r *Router) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func signalName(done Phase) string {
	switch done {
	case PhaseComments:
		return "comments_complete"
	case PhaseShorts:
		return "shorts_complete"
	case PhaseIndexing:
		return "indexing_complete"
	default:
		return string(done)
	}
}

func cloneMeta(meta map[string]string) map[string]string {
	m := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		m[k] = v
	}
	return m
}
