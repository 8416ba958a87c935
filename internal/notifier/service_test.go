package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "rotabot/pkg/logx"

	"rotabot/internal/eventbus"
	"rotabot/internal/rota"
	kit "rotabot/internal/transport"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fails int // fail this many sends before succeeding
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return kit.MessageRef{}, errors.New("send failed")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	svc := New(Config{Enabled: true, RatePerSec: 100}, ad, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	err := svc.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "hello"})
	if err != nil {
		t.Fatalf("Notify() = %v", err)
	}

	waitFor(t, func() bool { return len(ad.texts()) == 1 })
	if got := ad.texts()[0]; got != "hello" {
		t.Fatalf("sent %q, want hello", got)
	}
	if hist := svc.Snapshot(); len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: false}, &fakeAdapter{}, logx.Nop(), nil)
	if err := svc.Notify(context.Background(), kit.Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Notify() = %v, want ErrDisabled", err)
	}
}

func TestNotifyDedupsWithinWindow(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	svc := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}, ad, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	n := kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "dup"}
	for i := 0; i < 5; i++ {
		if err := svc.Notify(context.Background(), n); err != nil {
			t.Fatalf("Notify() #%d = %v", i, err)
		}
	}

	waitFor(t, func() bool { return len(ad.texts()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if got := len(ad.texts()); got != 1 {
		t.Fatalf("sent %d messages, want 1 (deduped)", got)
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{fails: 2}
	svc := New(Config{
		Enabled:    true,
		RatePerSec: 100,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
	}, ad, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "retry me"}); err != nil {
		t.Fatalf("Notify() = %v", err)
	}
	waitFor(t, func() bool { return len(ad.texts()) == 1 })
}

func TestPriorityPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		prio int
		want string
	}{
		{0, ""},
		{5, "ℹ️ "},
		{7, "⚠️ "},
		{9, "🚨 "},
	}
	for _, tc := range cases {
		if got := prefixForPriority(tc.prio); got != tc.want {
			t.Fatalf("prefixForPriority(%d) = %q, want %q", tc.prio, got, tc.want)
		}
	}
}

func TestAlerterFormatsSchedulerEvents(t *testing.T) {
	t.Parallel()

	text, prio := formatAlert(eventbus.Event{Type: rota.EventCycleComplete, Data: rota.CycleEvent{Cycle: 3}})
	if text == "" || prio != 5 {
		t.Fatalf("formatAlert(cycle) = %q, %d", text, prio)
	}
	text, prio = formatAlert(eventbus.Event{Type: rota.EventSignalRejected, Data: rota.SignalRejection{ChannelID: "UC-x", Signal: "comments_complete", Error: "out of order"}})
	if text == "" || prio != 7 {
		t.Fatalf("formatAlert(rejection) = %q, %d", text, prio)
	}
	if text, _ = formatAlert(eventbus.Event{Type: "unrelated"}); text != "" {
		t.Fatalf("formatAlert(unrelated) = %q, want empty", text)
	}
}

func TestAlerterDeliversThroughService(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	bus := eventbus.New()
	svc := New(Config{Enabled: true, RatePerSec: 100}, ad, logx.Nop(), bus)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	al := NewAlerter(svc, bus, kit.ChatTarget{ChatID: 42})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go al.Run(ctx)

	time.Sleep(20 * time.Millisecond) // let Run subscribe
	bus.Publish(eventbus.Event{Type: rota.EventLiveStart, Time: time.Now()})

	waitFor(t, func() bool { return len(ad.texts()) == 1 })
}
