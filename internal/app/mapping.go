package app

import (
	"time"

	"rotabot/internal/config"
	"rotabot/internal/livecheck"
	"rotabot/internal/notifier"
	"rotabot/internal/reports"
	"rotabot/internal/storage"
)

// Config sections are strings-and-pointers for strict decoding; these
// helpers turn them into the typed service configs.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapLiveConfig(cfg *config.Config) (livecheck.PollerConfig, error) {
	interval, err := config.ParseDurationOrDefault("live.poll_interval", cfg.Live.PollInterval, 15*time.Second)
	if err != nil {
		return livecheck.PollerConfig{}, err
	}
	timeout, err := config.ParseDurationOrDefault("live.probe_timeout", cfg.Live.ProbeTimeout, 10*time.Second)
	if err != nil {
		return livecheck.PollerConfig{}, err
	}
	ttl, err := config.ParseDurationOrDefault("live.cache_ttl", cfg.Live.CacheTTL, 0)
	if err != nil {
		return livecheck.PollerConfig{}, err
	}
	return livecheck.PollerConfig{
		Interval:   interval,
		Timeout:    timeout,
		CacheTTL:   ttl,
		RatePerMin: cfg.Live.RatePerMin,
	}, nil
}

func mapLoopConfig(cfg *config.Config) (loopConfig, error) {
	poll, err := config.ParseDurationOrDefault("loop.poll_interval", cfg.Loop.PollInterval, 5*time.Second)
	if err != nil {
		return loopConfig{}, err
	}
	idle, err := config.ParseDurationOrDefault("loop.idle_backoff", cfg.Loop.IdleBackoff, 30*time.Second)
	if err != nil {
		return loopConfig{}, err
	}
	backoff, err := config.ParseDurationOrDefault("loop.error_backoff", cfg.Loop.ErrorBackoff, 15*time.Second)
	if err != nil {
		return loopConfig{}, err
	}
	return loopConfig{
		PollInterval: poll,
		IdleBackoff:  idle,
		ErrorBackoff: backoff,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		// Default: enabled with the service's own defaults. Still inert
		// without a telegram adapter.
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 0)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     nc.Enabled,
		QueueSize:   nc.QueueSize,
		RatePerSec:  nc.RatePerSec,
		RetryMax:    nc.RetryMax,
		RetryBase:   retryBase,
		DedupWindow: dedup,
	}, nil
}

func mapReportsConfig(cfg *config.Config) (reports.Config, error) {
	rc := cfg.Reports
	if rc == nil {
		return reports.Config{}, nil
	}
	retention, err := config.ParseDurationOrDefault("reports.retention", rc.Retention, 720*time.Hour)
	if err != nil {
		return reports.Config{}, err
	}
	return reports.Config{
		Enabled:     rc.Enabled,
		SummarySpec: rc.SummarySpec,
		Timezone:    rc.Timezone,
		Retention:   retention,
	}, nil
}
