package config

// Config is the full daemon configuration. JSON and YAML are both accepted;
// YAML is coerced to JSON so a single strict decoder covers both.
type Config struct {
	Channels []ChannelConfig `json:"channels"`
	Features FeaturesConfig  `json:"features"`
	Live     LiveConfig      `json:"live"`
	Loop     LoopConfig      `json:"loop"`
	Logging  LoggingConfig   `json:"logging"`

	// Telegram is the optional operator surface. With no token the daemon
	// runs headless: no commands, no alerts, console/file logging only.
	Telegram TelegramConfig `json:"telegram,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Reports  *ReportsConfig  `json:"reports,omitempty"`
	Pprof    PprofConfig     `json:"pprof,omitempty"`
}

// ChannelConfig is one roster entry. The roster is fixed for the process
// lifetime; hot reload does not add or remove channels (a restart does).
type ChannelConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Surface is the browser/profile affinity label attached to decisions
	// for this channel. Opaque to the scheduler.
	Surface string `json:"surface,omitempty"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
}

func (c ChannelConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// FeaturesConfig holds the two background-work toggles. Both default to
// true when omitted. These are re-read on every scheduling decision, so a
// hot-reloaded flip takes effect without touching stored channel phases.
type FeaturesConfig struct {
	ShortsEnabled   *bool `json:"shorts_enabled,omitempty"`
	IndexingEnabled *bool `json:"indexing_enabled,omitempty"`
}

func (f FeaturesConfig) ShortsOn() bool   { return f.ShortsEnabled == nil || *f.ShortsEnabled }
func (f FeaturesConfig) IndexingOn() bool { return f.IndexingEnabled == nil || *f.IndexingEnabled }

// LiveConfig controls live-stream detection.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type LiveConfig struct {
	// Surface is the dedicated execution surface for live-chat work
	// (default "edge").
	Surface string `json:"surface,omitempty"`
	// PollInterval is the background probe cadence (default "15s").
	PollInterval string `json:"poll_interval,omitempty"`
	// ProbeTimeout bounds a single upstream probe (default "10s").
	ProbeTimeout string `json:"probe_timeout,omitempty"`
	// CacheTTL is how long a verdict keeps being served after probes start
	// failing (default 3x poll_interval).
	CacheTTL string `json:"cache_ttl,omitempty"`
	// RatePerMin caps upstream probes per minute (0 = interval-driven only).
	RatePerMin int `json:"rate_per_min,omitempty"`
}

// LoopConfig controls the host decision loop.
type LoopConfig struct {
	// PollInterval is the pause between a completed dispatch and the next
	// decision (default "5s").
	PollInterval string `json:"poll_interval,omitempty"`
	// IdleBackoff is the sleep after an idle decision (default "30s").
	IdleBackoff string `json:"idle_backoff,omitempty"`
	// ErrorBackoff is the sleep after a failed dispatch before the same
	// decision is retried (default "15s").
	ErrorBackoff string `json:"error_backoff,omitempty"`
	// CycleCooldown makes the scheduler idle this long after a full roster
	// cycle before starting the next one (default "0s": immediate restart).
	CycleCooldown string `json:"cycle_cooldown,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// GroupLog is the chat id (as a string) that receives alerts and the
	// telegram log sink output.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// NotifierConfig controls the async operator-alert pipeline. If the whole
// section is omitted, the notifier defaults to enabled (it is still inert
// without a telegram token).
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	RetryMax    int    `json:"retry_max,omitempty"`
	RetryBase   string `json:"retry_base,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// StorageConfig controls the activity journal.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./rotabot_journal" }
type StorageConfig struct {
	// Driver is "file", "sqlite" or "none"/"" (disabled).
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReportsConfig controls the cron-driven activity summary.
type ReportsConfig struct {
	Enabled bool `json:"enabled"`
	// SummarySpec is a standard cron spec (default "0 9 * * *").
	SummarySpec string `json:"summary_spec,omitempty"`
	// Timezone is an IANA TZ name, e.g. "Asia/Tokyo".
	Timezone string `json:"timezone,omitempty"`
	// Retention prunes journal entries older than this (default "720h").
	Retention string `json:"retention,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
