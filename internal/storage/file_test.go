package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "rotabot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "journal")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = (%v, %v), want (nil, nil)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []ActivityEntry{
		{At: now.Add(-2 * time.Hour), Activity: "comment_engagement", ChannelID: "UC-m2j", CommentsProcessed: 7},
		{At: now.Add(-time.Hour), Activity: "shorts_scheduling", ChannelID: "UC-m2j"},
		{At: now.Add(-time.Minute), Activity: "video_indexing", ChannelID: "UC-udd", Error: "timeout"},
	}
	for _, e := range entries {
		if err := st.AppendActivity(ctx, e); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	recent, err := st.RecentActivities(ctx, 2)
	if err != nil {
		t.Fatalf("RecentActivities: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].Activity != "video_indexing" || recent[1].Activity != "shorts_scheduling" {
		t.Fatalf("wrong order: %s, %s", recent[0].Activity, recent[1].Activity)
	}
}

func TestFileStoreSummary(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := ActivityEntry{At: now.Add(-48 * time.Hour), Activity: "comment_engagement", ChannelID: "UC-old", CommentsProcessed: 3}
	if err := st.AppendActivity(ctx, old); err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	for i := 0; i < 3; i++ {
		e := ActivityEntry{At: now.Add(-time.Duration(i) * time.Minute), Activity: "comment_engagement", ChannelID: "UC-m2j", CommentsProcessed: 2}
		if i == 0 {
			e.Error = "boom"
		}
		if err := st.AppendActivity(ctx, e); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	sum, err := st.ActivitySummary(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ActivitySummary: %v", err)
	}
	if sum.Total != 3 {
		t.Fatalf("Total = %d, want 3 (old entry excluded)", sum.Total)
	}
	if sum.ByActivity["comment_engagement"] != 3 || sum.ByChannel["UC-m2j"] != 3 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Comments != 6 || sum.Failures != 1 {
		t.Fatalf("comments=%d failures=%d, want 6/1", sum.Comments, sum.Failures)
	}
}

func TestFileStorePrune(t *testing.T) {
	t.Parallel()

	st := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		e := ActivityEntry{At: now.Add(-time.Duration(i) * 24 * time.Hour), Activity: "comment_engagement"}
		if err := st.AppendActivity(ctx, e); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
	}

	removed, err := st.Prune(ctx, now.Add(-36*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	// Journal stays appendable after compaction.
	if err := st.AppendActivity(ctx, ActivityEntry{At: now, Activity: "video_indexing"}); err != nil {
		t.Fatalf("AppendActivity after prune: %v", err)
	}
	recent, err := st.RecentActivities(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivities: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d entries, want 3", len(recent))
	}
}
