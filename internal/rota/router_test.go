package rota

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"rotabot/internal/eventbus"
)

type stubToggles struct {
	shorts   bool
	indexing bool
}

func (s *stubToggles) ShortsEnabled() bool   { return s.shorts }
func (s *stubToggles) IndexingEnabled() bool { return s.indexing }

type stubLive struct {
	live bool
	err  error
}

func (s *stubLive) IsAnyChannelLive(context.Context) (bool, error) { return s.live, s.err }

func testRoster() []Channel {
	return []Channel{
		{ID: "UC-m2j", Name: "Move2Japan", Surface: "chrome-m2j"},
		{ID: "UC-udd", Name: "UnDaoDu", Surface: "chrome-udd"},
		{ID: "UC-fup", Name: "FoundUps", Surface: "firefox-fup"},
		{ID: "UC-rant", Name: "RavingANTIFA", Surface: "firefox-rant"},
	}
}

func newTestRouter(t *testing.T, tg *stubToggles, lv *stubLive) *Router {
	t.Helper()
	r, err := New(Config{Roster: testRoster(), Toggles: tg, Live: lv})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNewValidatesRoster(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty roster")
	}
	if _, err := New(Config{Roster: []Channel{{Name: "no-id"}}}); err == nil {
		t.Fatal("expected error for roster entry without id")
	}
	dup := []Channel{{ID: "a", Name: "A"}, {ID: "a", Name: "A again"}}
	if _, err := New(Config{Roster: dup}); err == nil {
		t.Fatal("expected error for duplicate channel id")
	}
}

func TestFirstDecisionIsCommentsForChannelZero(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, &stubLive{})
	d := r.NextActivity(context.Background())
	if d.Activity != ActivityComments {
		t.Fatalf("activity = %s, want %s", d.Activity, ActivityComments)
	}
	if d.ChannelName != "Move2Japan" || d.ChannelID != "UC-m2j" {
		t.Fatalf("unexpected channel: %q (%q)", d.ChannelName, d.ChannelID)
	}
	if d.Surface != "chrome-m2j" {
		t.Fatalf("surface = %q, want channel surface", d.Surface)
	}
}

func TestCommentsCompleteMovesToShorts(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, &stubLive{})
	ctx := context.Background()

	r.NextActivity(ctx)
	if err := r.SignalCommentsComplete("UC-m2j", 12); err != nil {
		t.Fatalf("SignalCommentsComplete: %v", err)
	}
	d := r.NextActivity(ctx)
	if d.Activity != ActivityShorts || d.ChannelID != "UC-m2j" {
		t.Fatalf("got %s for %s, want %s for UC-m2j", d.Activity, d.ChannelID, ActivityShorts)
	}

	snap := r.Status()
	if snap.Channels[0].CommentsProcessed != 12 {
		t.Fatalf("comments processed = %d, want 12", snap.Channels[0].CommentsProcessed)
	}
}

func TestShortsDisabledNeverEmitsShorts(t *testing.T) {
	t.Parallel()

	tg := &stubToggles{shorts: false, indexing: true}
	r := newTestRouter(t, tg, &stubLive{})
	ctx := context.Background()

	if err := r.SignalCommentsComplete("UC-m2j", 0); err != nil {
		t.Fatalf("SignalCommentsComplete: %v", err)
	}
	d := r.NextActivity(ctx)
	if d.Activity != ActivityIndexing || d.ChannelID != "UC-m2j" {
		t.Fatalf("got %s for %s, want %s (shorts skipped)", d.Activity, d.ChannelID, ActivityIndexing)
	}
	if d.Meta["phase"] != string(PhaseShorts) {
		t.Fatalf("stored phase = %q, want %q (toggle must not rewrite phase)", d.Meta["phase"], PhaseShorts)
	}
}

func TestToggleFlipChangesFutureDecisions(t *testing.T) {
	t.Parallel()

	tg := &stubToggles{shorts: true, indexing: true}
	r := newTestRouter(t, tg, &stubLive{})
	ctx := context.Background()

	if err := r.SignalCommentsComplete("UC-m2j", 0); err != nil {
		t.Fatalf("SignalCommentsComplete: %v", err)
	}
	if d := r.NextActivity(ctx); d.Activity != ActivityShorts {
		t.Fatalf("activity = %s, want %s", d.Activity, ActivityShorts)
	}

	// Runtime flip is re-evaluated on the very next call.
	tg.shorts = false
	if d := r.NextActivity(ctx); d.Activity != ActivityIndexing {
		t.Fatalf("after disabling shorts, activity = %s, want %s", d.Activity, ActivityIndexing)
	}
	tg.shorts = true
	if d := r.NextActivity(ctx); d.Activity != ActivityShorts {
		t.Fatalf("after re-enabling shorts, activity = %s, want %s", d.Activity, ActivityShorts)
	}
}

func TestBothTogglesDisabledSingleStepChannel(t *testing.T) {
	t.Parallel()

	tg := &stubToggles{}
	r := newTestRouter(t, tg, &stubLive{})
	ctx := context.Background()

	for i, ch := range testRoster() {
		d := r.NextActivity(ctx)
		if d.Activity != ActivityComments || d.ChannelID != ch.ID {
			t.Fatalf("step %d: got %s for %s, want %s for %s", i, d.Activity, d.ChannelID, ActivityComments, ch.ID)
		}
		if err := r.SignalCommentsComplete(ch.ID, 1); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	// Full cycle done in four comment-engagement steps; shorts/indexing
	// never emitted, roster reset to channel 0.
	d := r.NextActivity(ctx)
	if d.Activity != ActivityComments || d.ChannelID != "UC-m2j" {
		t.Fatalf("after reset: got %s for %s", d.Activity, d.ChannelID)
	}
}

func TestLiveOverridesEverything(t *testing.T) {
	t.Parallel()

	lv := &stubLive{}
	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, lv)
	ctx := context.Background()

	if err := r.SignalCommentsComplete("UC-m2j", 0); err != nil {
		t.Fatalf("SignalCommentsComplete: %v", err)
	}

	lv.live = true
	for i := 0; i < 3; i++ {
		d := r.NextActivity(ctx)
		if d.Activity != ActivityLiveChat {
			t.Fatalf("call %d: activity = %s, want %s", i, d.Activity, ActivityLiveChat)
		}
		if d.Surface != DefaultLiveSurface {
			t.Fatalf("surface = %q, want %q", d.Surface, DefaultLiveSurface)
		}
		if d.ChannelID != "" {
			t.Fatalf("live decision carries channel attribution: %q", d.ChannelID)
		}
	}

	// No roster-advancement side effect: background scheduling resumes
	// exactly where it left off.
	lv.live = false
	d := r.NextActivity(ctx)
	if d.Activity != ActivityShorts || d.ChannelID != "UC-m2j" {
		t.Fatalf("after live ended: got %s for %s, want %s for UC-m2j", d.Activity, d.ChannelID, ActivityShorts)
	}
}

func TestLiveCheckFailureIsFailSafe(t *testing.T) {
	t.Parallel()

	lv := &stubLive{err: errors.New("quota exceeded")}
	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, lv)

	d := r.NextActivity(context.Background())
	if d.Activity != ActivityComments {
		t.Fatalf("activity = %s, want background scheduling to continue", d.Activity)
	}
	if d.Meta["live_check_error"] == "" {
		t.Fatal("live check failure must be observable in decision meta")
	}
}

func TestInterruptFor(t *testing.T) {
	t.Parallel()

	lv := &stubLive{live: true}
	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, lv)
	ctx := context.Background()

	// Live chat is never itself preemptable, for any router state.
	if _, yield := r.InterruptFor(ctx, ActivityLiveChat); yield {
		t.Fatal("live chat must never yield")
	}

	for _, act := range []Activity{ActivityComments, ActivityShorts, ActivityIndexing, ActivityIdle} {
		d, yield := r.InterruptFor(ctx, act)
		if !yield {
			t.Fatalf("%s must yield to a live stream", act)
		}
		if d.Activity != ActivityLiveChat {
			t.Fatalf("interrupt decision = %s, want %s", d.Activity, ActivityLiveChat)
		}
	}

	lv.live = false
	if _, yield := r.InterruptFor(ctx, ActivityComments); yield {
		t.Fatal("no stream, no interruption")
	}

	lv.err = errors.New("transient")
	lv.live = true
	if _, yield := r.InterruptFor(ctx, ActivityComments); yield {
		t.Fatal("checker failure must fail safe to no interruption")
	}
}

func TestNextActivityIdempotent(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, &stubLive{})
	ctx := context.Background()

	first := r.NextActivity(ctx)
	second := r.NextActivity(ctx)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("decisions differ with no intervening signal:\n%+v\n%+v", first, second)
	}
}

func TestFullCycleResetsRoster(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, &stubLive{})
	ctx := context.Background()

	phasesSeen := make(map[string][]Phase)
	for {
		d := r.NextActivity(ctx)
		if d.Activity == ActivityComments && d.ChannelID == "UC-m2j" && len(phasesSeen["UC-rant"]) > 0 {
			break
		}
		phasesSeen[d.ChannelID] = append(phasesSeen[d.ChannelID], Phase(d.Meta["phase"]))
		var err error
		switch d.Activity {
		case ActivityComments:
			err = r.SignalCommentsComplete(d.ChannelID, 0)
		case ActivityShorts:
			err = r.SignalShortsComplete(d.ChannelID)
		case ActivityIndexing:
			err = r.SignalIndexingComplete(d.ChannelID)
		default:
			t.Fatalf("unexpected activity %s", d.Activity)
		}
		if err != nil {
			t.Fatalf("signal for %s: %v", d.ChannelID, err)
		}
	}

	// Monotonic non-decreasing phases within the cycle.
	for id, phases := range phasesSeen {
		for i := 1; i < len(phases); i++ {
			if phases[i].rank() < phases[i-1].rank() {
				t.Fatalf("channel %s phases went backwards: %v", id, phases)
			}
		}
	}

	snap := r.Status()
	if snap.Cycle != 1 {
		t.Fatalf("cycle = %d, want 1", snap.Cycle)
	}
	if snap.Current.ID != "UC-m2j" || snap.Current.Phase != PhaseComments {
		t.Fatalf("current = %s in %s, want UC-m2j in comments", snap.Current.ID, snap.Current.Phase)
	}
	for _, ch := range snap.Channels {
		if ch.Phase != PhaseComments || ch.Complete {
			t.Fatalf("channel %s not reset: phase %s", ch.ID, ch.Phase)
		}
	}
}

func TestPointerAdvancesOnlyOnComplete(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, &stubLive{})
	ctx := context.Background()

	// Walk Move2Japan through all three phases; every decision in between
	// must stay on Move2Japan.
	for _, sig := range []func() error{
		func() error { return r.SignalCommentsComplete("UC-m2j", 0) },
		func() error { return r.SignalShortsComplete("UC-m2j") },
		func() error { return r.SignalIndexingComplete("UC-m2j") },
	} {
		if d := r.NextActivity(ctx); d.ChannelID != "UC-m2j" {
			t.Fatalf("pointer moved early: %s", d.ChannelID)
		}
		if err := sig(); err != nil {
			t.Fatalf("signal: %v", err)
		}
	}

	d := r.NextActivity(ctx)
	if d.ChannelID != "UC-udd" || d.Activity != ActivityComments {
		t.Fatalf("got %s for %s, want comments for UC-udd", d.Activity, d.ChannelID)
	}
}

func TestSignalErrors(t *testing.T) {
	t.Parallel()

	tg := &stubToggles{shorts: true, indexing: true}
	r := newTestRouter(t, tg, &stubLive{})

	if err := r.SignalCommentsComplete("UC-nope", 0); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("err = %v, want ErrUnknownChannel", err)
	}
	if err := r.SignalShortsComplete("UC-m2j"); !errors.Is(err, ErrOutOfOrderSignal) {
		t.Fatalf("shorts before comments: err = %v, want ErrOutOfOrderSignal", err)
	}
	if err := r.SignalIndexingComplete("UC-m2j"); !errors.Is(err, ErrOutOfOrderSignal) {
		t.Fatalf("indexing before comments: err = %v, want ErrOutOfOrderSignal", err)
	}

	if err := r.SignalCommentsComplete("UC-m2j", 0); err != nil {
		t.Fatalf("SignalCommentsComplete: %v", err)
	}
	// Repeating a finished signal is out of order, not a silent no-op.
	if err := r.SignalCommentsComplete("UC-m2j", 0); !errors.Is(err, ErrOutOfOrderSignal) {
		t.Fatalf("repeat comments: err = %v, want ErrOutOfOrderSignal", err)
	}

	// With shorts enabled, skipping straight to indexing is a
	// desynchronized host.
	if err := r.SignalIndexingComplete("UC-m2j"); !errors.Is(err, ErrOutOfOrderSignal) {
		t.Fatalf("indexing during shorts: err = %v, want ErrOutOfOrderSignal", err)
	}

	// With shorts disabled, the indexing signal is the legitimate next step.
	tg.shorts = false
	if err := r.SignalIndexingComplete("UC-m2j"); err != nil {
		t.Fatalf("indexing with shorts disabled: %v", err)
	}
	if got := r.Status().Channels[0].Phase; got != PhaseComplete {
		t.Fatalf("phase = %s, want %s", got, PhaseComplete)
	}
}

func TestSignalRejectionPublishesEvent(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	r, err := New(Config{
		Roster:  testRoster(),
		Toggles: &stubToggles{shorts: true, indexing: true},
		Live:    &stubLive{},
		Bus:     bus,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.SignalShortsComplete("UC-m2j"); !errors.Is(err, ErrOutOfOrderSignal) {
		t.Fatalf("err = %v, want ErrOutOfOrderSignal", err)
	}

	select {
	case e := <-events:
		if e.Type != EventSignalRejected {
			t.Fatalf("event type = %s, want %s", e.Type, EventSignalRejected)
		}
		rej, ok := e.Data.(SignalRejection)
		if !ok || rej.ChannelID != "UC-m2j" || rej.Signal != "shorts_complete" {
			t.Fatalf("unexpected payload: %+v", e.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no rejection event published")
	}
}

func TestPauseReturnsIdle(t *testing.T) {
	t.Parallel()

	lv := &stubLive{}
	r := newTestRouter(t, &stubToggles{shorts: true, indexing: true}, lv)
	ctx := context.Background()

	r.Pause()
	if d := r.NextActivity(ctx); d.Activity != ActivityIdle {
		t.Fatalf("paused activity = %s, want %s", d.Activity, ActivityIdle)
	}
	if !r.Status().Paused {
		t.Fatal("snapshot does not report paused")
	}

	// Live preemption stays active while paused.
	lv.live = true
	if d := r.NextActivity(ctx); d.Activity != ActivityLiveChat {
		t.Fatalf("paused live activity = %s, want %s", d.Activity, ActivityLiveChat)
	}
	lv.live = false

	r.Resume()
	if d := r.NextActivity(ctx); d.Activity != ActivityComments {
		t.Fatalf("resumed activity = %s, want %s", d.Activity, ActivityComments)
	}
}

func TestCycleCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	r, err := New(Config{
		Roster:        testRoster(),
		Toggles:       &stubToggles{},
		Live:          &stubLive{},
		CycleCooldown: time.Minute,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	for _, ch := range testRoster() {
		if d := r.NextActivity(ctx); d.Activity != ActivityComments {
			t.Fatalf("activity = %s, want comments", d.Activity)
		}
		if err := r.SignalCommentsComplete(ch.ID, 0); err != nil {
			t.Fatalf("signal: %v", err)
		}
	}

	d := r.NextActivity(ctx)
	if d.Activity != ActivityIdle {
		t.Fatalf("post-cycle activity = %s, want %s", d.Activity, ActivityIdle)
	}
	if d.Meta["resume_at"] == "" {
		t.Fatal("cooldown decision missing resume_at meta")
	}

	now = now.Add(30 * time.Second)
	if d := r.NextActivity(ctx); d.Activity != ActivityIdle {
		t.Fatalf("mid-cooldown activity = %s, want idle", d.Activity)
	}

	now = now.Add(31 * time.Second)
	d = r.NextActivity(ctx)
	if d.Activity != ActivityComments || d.ChannelID != "UC-m2j" {
		t.Fatalf("post-cooldown: got %s for %s, want comments for UC-m2j", d.Activity, d.ChannelID)
	}
}

func TestStatusReflectsLiveToggleValues(t *testing.T) {
	t.Parallel()

	tg := &stubToggles{shorts: true, indexing: false}
	r := newTestRouter(t, tg, &stubLive{})

	snap := r.Status()
	if !snap.ShortsEnabled || snap.IndexingEnabled {
		t.Fatalf("snapshot toggles = %v/%v, want true/false", snap.ShortsEnabled, snap.IndexingEnabled)
	}

	tg.shorts, tg.indexing = false, true
	snap = r.Status()
	if snap.ShortsEnabled || !snap.IndexingEnabled {
		t.Fatal("snapshot toggles are stale relative to configuration")
	}
}
