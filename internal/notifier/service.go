package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "rotabot/pkg/logx"

	"rotabot/internal/eventbus"
	rtsup "rotabot/internal/runtime/supervisor"
	kit "rotabot/internal/transport"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Bus event types for delivery outcomes the operator never saw.
const (
	EventDropped = "notifier.dropped"
	EventFailed  = "notifier.failed"
)

// DeliveryEvent is the payload of EventDropped and EventFailed.
type DeliveryEvent struct {
	ChatID int64  `json:"chat_id"`
	Key    string `json:"key"`
	Error  string `json:"error,omitempty"`
}

// envelope is one queued notification plus its precomputed dedup key.
type envelope struct {
	note kit.Notification
	key  string
}

const (
	historyCap  = 300
	sendTimeout = 10 * time.Second
)

// Service is the async operator-message pipeline: a bounded queue drained
// by a small worker pool, with rate limiting, retry and a dedup window.
// Safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	inflight  sync.WaitGroup

	queue    chan envelope
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while a Stop is draining

	seen seenSet

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps in a new configuration. Queue and worker sizing only take
// effect on the next Start; rate and retry settings apply immediately.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes pass unthrottled.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start spins up the worker pool. Idempotent; a Start racing a Stop waits
// for the drain to finish first.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	for s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	q := make(chan envelope, s.cfg.QueueSize)
	sup := rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// A broken notifier must not take the daemon down with it.
		rtsup.WithCancelOnError(false),
	)
	s.queue = q
	s.sup = sup
	s.accepting = true
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			return s.drain(c, q)
		}, rtsup.WithPublishFirstError(true))
	}
}

// drain consumes the queue until it is closed or ctx ends. A closed queue
// during shutdown is a clean exit; anything else is reported so the
// supervisor restarts the worker.
func (s *Service) drain(ctx context.Context, q <-chan envelope) error {
	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case env, ok := <-q:
			if !ok {
				s.mu.Lock()
				stopping := s.stopDone != nil
				s.mu.Unlock()
				if stopping {
					return context.Canceled
				}
				return errors.New("queue closed outside shutdown")
			}
			s.deliver(ctx, env)
		}
	}
}

// Stop halts intake and drains queued messages best-effort. When ctx ends
// before the drain finishes, the remaining messages are abandoned.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.inflight.Wait() // enqueues racing the flag flip
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify queues a notification. Duplicate texts inside the dedup window are
// silently absorbed; a full queue returns ErrQueueFull and publishes
// EventDropped.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	switch {
	case !s.cfg.Enabled:
		s.mu.Unlock()
		return ErrDisabled
	case !s.accepting || s.queue == nil:
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window, capEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	key := dedupKey(n)
	if window > 0 && !s.seen.admit(key, window, capEntries) {
		return nil
	}

	select {
	case q <- envelope{note: n, key: key}:
		return nil
	default:
		s.publish(EventDropped, DeliveryEvent{ChatID: n.Target.ChatID, Key: key, Error: ErrQueueFull.Error()})
		return ErrQueueFull
	}
}

// Snapshot returns the recent delivered messages, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) remember(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if n := len(s.history); n > historyCap {
		s.history = s.history[n-historyCap:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev DeliveryEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}

// deliver sends one notification, retrying transient failures with jittered
// exponential backoff. A final failure publishes EventFailed.
func (s *Service) deliver(ctx context.Context, env envelope) {
	s.mu.Lock()
	cfg, lim, ad := s.cfg, s.limiter, s.adapter
	s.mu.Unlock()
	if ad == nil {
		return
	}

	text := prefixForPriority(env.note.Priority) + env.note.Text
	if text == "" {
		return
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err := ad.SendText(callCtx, env.note.Target, text, env.note.Options)
		cancel()
		if err == nil {
			s.remember(text)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed",
			logx.Err(err),
			logx.Int("attempt", attempt),
			logx.Int("attempts", attempts))
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(backoffFor(cfg, attempt)):
		case <-ctx.Done():
			return
		}
	}
	s.publish(EventFailed, DeliveryEvent{ChatID: env.note.Target.ChatID, Key: env.key, Error: lastErr.Error()})
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}

func dedupKey(n kit.Notification) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%d|%s", n.Target.ChatID, n.Priority, n.Text)
	return fmt.Sprintf("%x", h.Sum64())
}

// backoffFor doubles the base per completed attempt, capped and spread by
// 0.7 to 1.3 jitter.
func backoffFor(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

// seenSet is the in-memory dedup window: key to suppress-until time.
type seenSet struct {
	mu sync.Mutex
	m  map[string]time.Time
}

// admit reports whether key may pass, recording it for window on success.
// Expired entries are pruned on every call; when the set still exceeds
// capEntries the soonest-expiring keys are evicted first.
func (ss *seenSet) admit(key string, window time.Duration, capEntries int) bool {
	if key == "" {
		return true
	}
	now := time.Now()

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.m == nil {
		ss.m = make(map[string]time.Time)
	}
	if until, held := ss.m[key]; held && now.Before(until) {
		return false
	}
	ss.m[key] = now.Add(window)

	for k, until := range ss.m {
		if !now.Before(until) {
			delete(ss.m, k)
		}
	}
	for capEntries > 0 && len(ss.m) > capEntries {
		var victim string
		var soonest time.Time
		for k, t := range ss.m {
			if victim == "" || t.Before(soonest) {
				victim, soonest = k, t
			}
		}
		delete(ss.m, victim)
	}
	return true
}
