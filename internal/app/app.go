// Package app wires configuration, logging, storage, the live poller, the
// scheduler and the operator surface into one daemon.
package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "rotabot/pkg/logx"

	"rotabot/internal/config"
	"rotabot/internal/eventbus"
	"rotabot/internal/livecheck"
	"rotabot/internal/notifier"
	"rotabot/internal/observability/pprof"
	"rotabot/internal/reports"
	"rotabot/internal/rota"
	rtsup "rotabot/internal/runtime/supervisor"
	"rotabot/internal/storage"
	kit "rotabot/internal/transport"
	"rotabot/internal/transport/telegram"
	"rotabot/internal/workers"
)

// Option customizes App construction. The defaults give a fully working
// daemon with noop workers and a never-live checker.
type Option func(*options)

type options struct {
	workers *workers.Set
	live    livecheck.Checker
}

// WithWorkers plugs in the real automation workers.
func WithWorkers(set workers.Set) Option {
	return func(o *options) { o.workers = &set }
}

// WithLiveChecker plugs in the upstream live-stream probe. The App wraps it
// in a caching poller; pass the raw (slow) checker here.
func WithLiveChecker(c livecheck.Checker) Option {
	return func(o *options) { o.live = c }
}

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter // nil when running headless

	router  *rota.Router
	poller  *livecheck.Poller
	loop    *Loop
	cmds    *Commands
	notif   *notifier.Service
	alerter *notifier.Alerter
	reports *reports.Service
	pprof   *pprof.Service

	updates chan kit.Update
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Telegram adapter (optional: no token means headless).
	var adapter *telegram.Adapter
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		adapter, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
	}

	// Logging service. Bootstrap with the Telegram sink disabled, point the
	// sink at the group-log chat, then apply the real config; this avoids a
	// false "no telegram target" warning from the first Apply().
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	var sender logx.Sender
	if adapter != nil {
		sender = adapter
	}
	logSvc, log := logx.New(baseLogCfg, sender)
	log = log.With(logx.String("comp", "app"))

	if chatID := groupLogChatID(cfg); chatID != 0 {
		logSvc.SetTelegramTarget(chatID)
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled && adapter != nil
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Activity journal (optional).
	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg)
		if err != nil {
			return nil, err
		}
		store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if store != nil {
			log.Info("journal enabled", logx.String("driver", sc.Driver))
		}
	}

	// Live checking: raw checker behind the caching poller.
	upstream := o.live
	if upstream == nil {
		upstream = livecheck.Static(false)
	}
	liveCfg, err := mapLiveConfig(cfg)
	if err != nil {
		return nil, err
	}
	liveCfg.Upstream = upstream
	liveCfg.Log = log.With(logx.String("comp", "livecheck"))
	poller := livecheck.NewPoller(liveCfg)

	// The scheduler core.
	cooldown, err := config.ParseDurationOrDefault("loop.cycle_cooldown", cfg.Loop.CycleCooldown, 0)
	if err != nil {
		return nil, err
	}
	router, err := rota.New(rota.Config{
		Roster:        rosterFromConfig(cfg),
		Toggles:       configToggles{cfgm: cfgm},
		Live:          poller,
		LiveSurface:   cfg.Live.Surface,
		CycleCooldown: cooldown,
		Log:           log.With(logx.String("comp", "rota")),
		Bus:           bus,
	})
	if err != nil {
		return nil, err
	}

	// Notifier + alert bridge (need both an adapter and a target chat).
	var (
		notifSvc *notifier.Service
		alerter  *notifier.Alerter
	)
	alertTarget := kit.ChatTarget{ChatID: groupLogChatID(cfg)}
	if adapter != nil {
		ncfg, err := mapNotifierConfig(cfg)
		if err != nil {
			return nil, err
		}
		notifSvc = notifier.New(ncfg, adapter, log.With(logx.String("comp", "notifier")), bus)
		if alertTarget.ChatID != 0 {
			alerter = notifier.NewAlerter(notifSvc, bus, alertTarget)
		}
	}

	// Daily summary reports (need journal + notifier + target).
	var reportSvc *reports.Service
	if cfg.Reports != nil && cfg.Reports.Enabled && store != nil && notifSvc != nil && alertTarget.ChatID != 0 {
		rcfg, err := mapReportsConfig(cfg)
		if err != nil {
			return nil, err
		}
		rcfg.Target = alertTarget
		reportSvc = reports.New(rcfg, store, notifSvc, log.With(logx.String("comp", "reports")))
	}

	pprofSvc := pprof.New(pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}, log.With(logx.String("comp", "pprof")))

	// Workers: real automation or the logging noop set.
	set := workers.NoopSet(log.With(logx.String("comp", "workers")))
	if o.workers != nil {
		set = *o.workers
	}
	lcfg, err := mapLoopConfig(cfg)
	if err != nil {
		return nil, err
	}
	loop := newLoop(router, set, store, log.With(logx.String("comp", "loop")), lcfg)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: adapter,
		router:  router,
		poller:  poller,
		loop:    loop,
		notif:   notifSvc,
		alerter: alerter,
		reports: reportSvc,
		pprof:   pprofSvc,
		updates: make(chan kit.Update, 256),
	}
	if adapter != nil {
		a.cmds = newCommands(adapter, router, cfgm, log.With(logx.String("comp", "commands")))
	}
	return a, nil
}

// Router exposes the scheduler core for embedding hosts.
func (a *App) Router() *rota.Router { return a.router }

// Done is closed when the app context is cancelled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
	}
	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if a.alerter != nil {
		a.sup.Go0("alerts", a.alerter.Run)
	}
	if a.reports != nil {
		if err := a.reports.Start(a.sup.Context()); err != nil {
			return err
		}
	}
	if a.pprof != nil && a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	a.sup.Go("live.poll", a.poller.Run)
	a.sup.Go("loop", a.loop.Run)

	if a.cmds != nil {
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.cmds.DispatchLoop(c, a.updates)
		})
	}

	// Config hot reload fan-out. The roster and journal are restart-only;
	// toggles reach the router via configToggles without any action here.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(c, last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("started", logx.Int("channels", len(a.router.Roster())))
	return nil
}

func (a *App) applyReload(ctx context.Context, old, cfg *config.Config) {
	if cfg == nil {
		return
	}

	if old != nil && !channelsEqual(old.Channels, cfg.Channels) {
		a.log.Warn("channel roster changed in config; restart required for changes to take effect")
	}
	if old != nil && (old.Storage != nil) != (cfg.Storage != nil) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	// Logging first so later reload logs obey the new level.
	if chatID := groupLogChatID(cfg); chatID != 0 {
		a.logs.SetTelegramTarget(chatID)
	} else {
		a.logs.SetTelegramTarget(0)
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && a.adapter != nil,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	})

	if a.notif != nil {
		prevEnabled := a.notif.Enabled()
		ncfg, err := mapNotifierConfig(cfg)
		if err != nil {
			a.log.Warn("invalid notifier config, keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			if prevEnabled && !ncfg.Enabled {
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
			} else if !prevEnabled && ncfg.Enabled {
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
			}
		}
	}

	a.log.Info("config reloaded",
		logx.Bool("shorts", cfg.Features.ShortsOn()),
		logx.Bool("indexing", cfg.Features.IndexingOn()))
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("reports", 2*time.Second, func(c context.Context) error {
		if a.reports != nil {
			a.reports.Stop(c)
		}
		return nil
	})
	step("pprof", time.Second, func(c context.Context) error {
		if a.pprof != nil {
			a.pprof.Stop(c)
		}
		return nil
	})
	step("notifier", 2*time.Second, func(c context.Context) error {
		if a.notif != nil {
			a.notif.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	step("journal", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func groupLogChatID(cfg *config.Config) int64 {
	raw := strings.TrimSpace(cfg.Telegram.GroupLog)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func rosterFromConfig(cfg *config.Config) []rota.Channel {
	enabled := cfg.EnabledChannels()
	roster := make([]rota.Channel, 0, len(enabled))
	for _, ch := range enabled {
		roster = append(roster, rota.Channel{ID: ch.ID, Name: ch.Name, Surface: ch.Surface})
	}
	return roster
}

func channelsEqual(a, b []config.ChannelConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].IsEnabled() != b[i].IsEnabled() {
			return false
		}
	}
	return true
}
