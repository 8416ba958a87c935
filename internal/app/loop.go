package app

import (
	"context"
	"sync/atomic"
	"time"

	logx "rotabot/pkg/logx"

	"rotabot/internal/rota"
	"rotabot/internal/storage"
	"rotabot/internal/workers"
)

// loopConfig carries the resolved durations for the host loop.
type loopConfig struct {
	PollInterval time.Duration // pause between completed dispatches
	IdleBackoff  time.Duration // sleep after an idle decision
	ErrorBackoff time.Duration // sleep before retrying a failed dispatch
	// InterruptEvery is how often background work checks for a live
	// interrupt. Defaults to PollInterval.
	InterruptEvery time.Duration
}

// Loop is the single writer that drives the router: one decision, one
// dispatch, one completion signal, repeat. Live-chat dispatches produce no
// signal; failed background work keeps its phase and is retried after a
// backoff. Every dispatch lands in the activity journal.
type Loop struct {
	router *rota.Router
	set    workers.Set
	store  storage.Store
	log    logx.Logger
	cfg    loopConfig
	now    func() time.Time
}

func newLoop(router *rota.Router, set workers.Set, store storage.Store, log logx.Logger, cfg loopConfig) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 15 * time.Second
	}
	if cfg.InterruptEvery <= 0 {
		cfg.InterruptEvery = cfg.PollInterval
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{router: router, set: set, store: store, log: log, cfg: cfg, now: time.Now}
}

func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		d := l.router.NextActivity(ctx)
		if d.Activity == rota.ActivityIdle {
			l.log.Debug("idle", logx.String("reason", d.Reason))
			if !sleepCtx(ctx, l.cfg.IdleBackoff) {
				return nil
			}
			continue
		}

		l.log.Info("dispatch",
			logx.String("activity", string(d.Activity)),
			logx.String("channel", d.ChannelID),
			logx.String("surface", d.Surface),
			logx.String("reason", d.Reason))

		start := l.now()
		processed, err, interrupted := l.dispatch(ctx, d)
		l.journal(ctx, d, start, processed, err)

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if interrupted {
				// A live stream preempted the work. No signal, no backoff:
				// the next decision is the live-chat takeover.
				l.log.Info("work preempted by live stream", logx.String("channel", d.ChannelID))
				continue
			}
			l.log.Warn("dispatch failed, retrying after backoff",
				logx.String("activity", string(d.Activity)),
				logx.String("channel", d.ChannelID),
				logx.Err(err))
			if !sleepCtx(ctx, l.cfg.ErrorBackoff) {
				return nil
			}
			continue
		}

		l.signal(d, processed)
		if !sleepCtx(ctx, l.cfg.PollInterval) {
			return nil
		}
	}
}

// dispatch runs the worker for one decision. Background work runs under a
// cancellable context watched for live interrupts; live-chat work owns the
// surface until the stream ends.
func (l *Loop) dispatch(ctx context.Context, d rota.Decision) (processed int, err error, interrupted bool) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hit atomic.Bool
	if d.Activity != rota.ActivityLiveChat {
		go func() {
			ticker := time.NewTicker(l.cfg.InterruptEvery)
			defer ticker.Stop()
			for {
				select {
				case <-wctx.Done():
					return
				case <-ticker.C:
					if _, ok := l.router.InterruptFor(wctx, d.Activity); ok {
						hit.Store(true)
						cancel()
						return
					}
				}
			}
		}()
	}

	ch := rota.Channel{ID: d.ChannelID, Name: d.ChannelName, Surface: d.Surface}
	switch d.Activity {
	case rota.ActivityComments:
		if l.set.Comments != nil {
			processed, err = l.set.Comments.EngageComments(wctx, ch)
		}
	case rota.ActivityShorts:
		if l.set.Shorts != nil {
			err = l.set.Shorts.ScheduleShorts(wctx, ch)
		}
	case rota.ActivityIndexing:
		if l.set.Index != nil {
			err = l.set.Index.IndexVideos(wctx, ch)
		}
	case rota.ActivityLiveChat:
		if l.set.LiveChat != nil {
			err = l.set.LiveChat.ServeLiveChat(wctx, d)
		}
	}
	return processed, err, hit.Load()
}

func (l *Loop) signal(d rota.Decision, processed int) {
	var err error
	switch d.Activity {
	case rota.ActivityComments:
		err = l.router.SignalCommentsComplete(d.ChannelID, processed)
	case rota.ActivityShorts:
		err = l.router.SignalShortsComplete(d.ChannelID)
	case rota.ActivityIndexing:
		err = l.router.SignalIndexingComplete(d.ChannelID)
	default:
		// Live chat never signals; the scheduler keeps the channel phase.
		return
	}
	if err != nil {
		// Single-writer loop: a rejected signal here means a bug, not a
		// race. Surface it loudly.
		l.log.Error("completion signal rejected",
			logx.String("activity", string(d.Activity)),
			logx.String("channel", d.ChannelID),
			logx.Err(err))
	}
}

func (l *Loop) journal(ctx context.Context, d rota.Decision, start time.Time, processed int, dispatchErr error) {
	if l.store == nil {
		return
	}
	e := storage.ActivityEntry{
		At:                start,
		Activity:          string(d.Activity),
		ChannelID:         d.ChannelID,
		ChannelName:       d.ChannelName,
		Surface:           d.Surface,
		Phase:             d.Meta["phase"],
		Reason:            d.Reason,
		CommentsProcessed: processed,
		TookMS:            l.now().Sub(start).Milliseconds(),
	}
	if dispatchErr != nil {
		e.Error = dispatchErr.Error()
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.store.AppendActivity(cctx, e); err != nil {
		l.log.Warn("journal append failed", logx.Err(err))
	}
}

// sleepCtx sleeps for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
