// Package reports runs the cron-driven daily activity summary and journal
// retention.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "rotabot/pkg/logx"

	"rotabot/internal/storage"
	kit "rotabot/internal/transport"
)

// Notifier is the subset of the notification service the reporter needs.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Config struct {
	Enabled     bool
	SummarySpec string // standard 5-field cron spec
	Timezone    string // IANA name; empty means local
	Retention   time.Duration
	Target      kit.ChatTarget
}

const (
	defaultSummarySpec = "0 9 * * *"
	defaultRetention   = 720 * time.Hour
)

// Service schedules the daily summary. Summaries cover the window since the
// previous report (since startup for the first one).
type Service struct {
	mu sync.Mutex

	cfg    Config
	log    logx.Logger
	store  storage.Store
	notify Notifier

	c       *cron.Cron
	lastRun time.Time
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, store storage.Store, notify Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.SummarySpec) == "" {
		cfg.SummarySpec = defaultSummarySpec
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	return &Service{cfg: cfg, store: store, notify: notify, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.store == nil || s.notify == nil {
		return nil
	}
	if s.c != nil {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("reports timezone: %w", err)
		}
		loc = l
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.lastRun = time.Now()
	s.c = cron.New(cron.WithLocation(loc))
	if _, err := s.c.AddFunc(s.cfg.SummarySpec, s.fire); err != nil {
		s.c = nil
		s.cancel()
		return fmt.Errorf("reports cron spec %q: %w", s.cfg.SummarySpec, err)
	}
	s.c.Start()
	s.log.Info("reports scheduled", logx.String("spec", s.cfg.SummarySpec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.runCtx
	since := s.lastRun
	s.lastRun = time.Now()
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.RunOnce(cctx, since); err != nil {
		s.log.Warn("daily summary failed", logx.Err(err))
	}
}

// RunOnce produces one summary covering entries since the given time, sends
// it, and applies retention. Exposed for the /status command and tests.
func (s *Service) RunOnce(ctx context.Context, since time.Time) error {
	sum, err := s.store.ActivitySummary(ctx, since)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	if err := s.notify.Notify(ctx, kit.Notification{
		Priority: 5,
		Target:   s.cfg.Target,
		Text:     FormatSummary(sum),
	}); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}

	cutoff := time.Now().Add(-s.cfg.Retention)
	n, err := s.store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	if n > 0 {
		s.log.Info("journal pruned", logx.Int("removed", n))
	}
	return nil
}

// FormatSummary renders a summary as a compact operator message.
func FormatSummary(sum storage.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "activity since %s\n", sum.Since.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "dispatches: %d", sum.Total)
	if sum.Failures > 0 {
		fmt.Fprintf(&b, " (%d failed)", sum.Failures)
	}
	b.WriteString("\n")
	if sum.Comments > 0 {
		fmt.Fprintf(&b, "comments processed: %d\n", sum.Comments)
	}

	if len(sum.ByActivity) > 0 {
		b.WriteString("by activity:\n")
		for _, k := range sortedKeys(sum.ByActivity) {
			fmt.Fprintf(&b, "  %s: %d\n", k, sum.ByActivity[k])
		}
	}
	if len(sum.ByChannel) > 0 {
		b.WriteString("by channel:\n")
		for _, k := range sortedKeys(sum.ByChannel) {
			fmt.Fprintf(&b, "  %s: %d\n", k, sum.ByChannel[k])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
