package reports

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	logx "rotabot/pkg/logx"

	"rotabot/internal/storage"
	kit "rotabot/internal/transport"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (c *captureNotifier) Notify(ctx context.Context, n kit.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "journal")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRunOnceSendsSummaryAndPrunes(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	now := time.Now()
	entries := []storage.ActivityEntry{
		{At: now.Add(-48 * time.Hour), Activity: "comment_engagement", ChannelID: "UC-old"},
		{At: now.Add(-time.Hour), Activity: "comment_engagement", ChannelID: "UC-m2j", CommentsProcessed: 12},
		{At: now.Add(-30 * time.Minute), Activity: "shorts_scheduling", ChannelID: "UC-m2j"},
		{At: now.Add(-10 * time.Minute), Activity: "video_indexing", ChannelID: "UC-udd", Error: "browser crashed"},
	}
	for _, e := range entries {
		if err := st.AppendActivity(context.Background(), e); err != nil {
			t.Fatalf("AppendActivity() = %v", err)
		}
	}

	cn := &captureNotifier{}
	svc := New(Config{
		Enabled:   true,
		Retention: 24 * time.Hour,
		Target:    kit.ChatTarget{ChatID: 7},
	}, st, cn, logx.Nop())

	if err := svc.RunOnce(context.Background(), now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("RunOnce() = %v", err)
	}

	cn.mu.Lock()
	defer cn.mu.Unlock()
	if len(cn.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(cn.sent))
	}
	text := cn.sent[0].Text
	for _, want := range []string{"dispatches: 3", "(1 failed)", "comments processed: 12", "UC-m2j: 2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}

	// Retention removed the 48h-old entry.
	recent, err := st.RecentActivities(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentActivities() = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("journal has %d entries after prune, want 3", len(recent))
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, SummarySpec: "not a cron spec"}, openTestStore(t), &captureNotifier{}, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start() with bad spec, want error")
	}
}

func TestStartRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: true, Timezone: "Mars/Olympus"}, openTestStore(t), &captureNotifier{}, logx.Nop())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start() with bad timezone, want error")
	}
}

func TestDisabledStartIsNoop(t *testing.T) {
	t.Parallel()

	svc := New(Config{Enabled: false}, nil, nil, logx.Nop())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() disabled = %v", err)
	}
	svc.Stop(context.Background())
}

func TestFormatSummaryEmpty(t *testing.T) {
	t.Parallel()

	text := FormatSummary(storage.Summary{Since: time.Unix(0, 0).UTC()})
	if !strings.Contains(text, "dispatches: 0") {
		t.Fatalf("FormatSummary(empty) = %q", text)
	}
}
