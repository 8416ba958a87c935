package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks everything that must hold before a config is committed.
// At startup a failure here is fatal; on hot reload it keeps the previous
// config in force.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// Roster: at least one enabled channel, unique non-empty ids. This is
	// a fatal configuration error, not a runtime condition to recover from.
	enabled := 0
	seen := make(map[string]struct{}, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		id := strings.TrimSpace(ch.ID)
		if id == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, id)
		}
		seen[id] = struct{}{}
		if ch.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("channels: no enabled channels configured")
	}

	for _, f := range []struct{ path, raw string }{
		{"live.poll_interval", cfg.Live.PollInterval},
		{"live.probe_timeout", cfg.Live.ProbeTimeout},
		{"live.cache_ttl", cfg.Live.CacheTTL},
		{"loop.poll_interval", cfg.Loop.PollInterval},
		{"loop.idle_backoff", cfg.Loop.IdleBackoff},
		{"loop.error_backoff", cfg.Loop.ErrorBackoff},
		{"loop.cycle_cooldown", cfg.Loop.CycleCooldown},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Live.RatePerMin < 0 {
		return fmt.Errorf("live.rate_per_min must be >= 0")
	}

	if n := cfg.Notifier; n != nil {
		if n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			return fmt.Errorf("notifier: sizes and rates must be >= 0")
		}
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				return err
			}
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if r := cfg.Reports; r != nil && r.Enabled {
		if spec := strings.TrimSpace(r.SummarySpec); spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("reports.summary_spec: invalid cron spec %q: %w", spec, err)
			}
		}
		if tz := strings.TrimSpace(r.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("reports.timezone: invalid %q: %w", tz, err)
			}
		}
		if _, err := ParseDurationField("reports.retention", r.Retention); err != nil {
			return err
		}
	}

	return nil
}

// EnabledChannels returns the roster entries that are enabled, in config
// order.
func (c *Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.IsEnabled() {
			out = append(out, ch)
		}
	}
	return out
}
