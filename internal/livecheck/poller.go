package livecheck

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "rotabot/pkg/logx"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 10 * time.Second
)

// PollerConfig configures a Poller.
type PollerConfig struct {
	Upstream Checker

	// Interval is the background refresh cadence.
	Interval time.Duration
	// Timeout bounds a single upstream probe.
	Timeout time.Duration
	// CacheTTL is how long a verdict stays served after probes start
	// failing. Past the TTL, reads surface the probe error instead.
	// Defaults to 3x Interval.
	CacheTTL time.Duration
	// RatePerMin caps upstream probes (0 = interval-driven only).
	RatePerMin int

	Log logx.Logger
	Now func() time.Time
}

// Poller pre-polls an upstream checker and serves the cached verdict, so
// the router's hot path never blocks on the platform API.
//
// Failure model: while the cached verdict is fresher than CacheTTL, probe
// errors are logged but not surfaced. Once the verdict goes stale, reads
// return (false, lastErr) and the router degrades fail-safe to "not live".
type Poller struct {
	upstream Checker
	interval time.Duration
	timeout  time.Duration
	ttl      time.Duration
	limiter  *rate.Limiter
	log      logx.Logger
	now      func() time.Time

	mu        sync.Mutex
	live      bool
	lastErr   error
	checkedAt time.Time
}

func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		upstream: cfg.Upstream,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		log:      cfg.Log,
		now:      cfg.Now,
	}
	if p.upstream == nil {
		p.upstream = Static(false)
	}
	if p.interval <= 0 {
		p.interval = defaultInterval
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.ttl <= 0 {
		p.ttl = 3 * p.interval
	}
	if cfg.RatePerMin > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerMin)/60, 1)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run refreshes the verdict until ctx is canceled. Meant to be owned by the
// app supervisor.
func (p *Poller) Run(ctx context.Context) error {
	p.Refresh(ctx)

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh performs one upstream probe, respecting the probe rate cap.
func (p *Poller) Refresh(ctx context.Context) {
	if p.limiter != nil && !p.limiter.Allow() {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	live, err := p.upstream.IsAnyChannelLive(pctx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.lastErr = err
		p.log.Warn("live probe failed; serving cached verdict",
			logx.Err(err),
			logx.Bool("cached_live", p.live),
			logx.Time("checked_at", p.checkedAt))
		return
	}
	if live != p.live {
		p.log.Info("live verdict changed", logx.Bool("live", live))
	}
	p.live = live
	p.lastErr = nil
	p.checkedAt = p.now()
}

// IsAnyChannelLive serves the cached verdict. Never blocks on the upstream.
func (p *Poller) IsAnyChannelLive(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastErr != nil && p.now().Sub(p.checkedAt) > p.ttl {
		return false, p.lastErr
	}
	return p.live, nil
}
