package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "rotabot/pkg/logx"
)

// Store is the journal API used by the app loop and reports.
type Store interface {
	AppendActivity(ctx context.Context, e ActivityEntry) error
	// RecentActivities returns up to limit entries, newest first.
	RecentActivities(ctx context.Context, limit int) ([]ActivityEntry, error)
	// ActivitySummary aggregates entries at or after since.
	ActivitySummary(ctx context.Context, since time.Time) (Summary, error)
	// Prune drops entries older than before and reports how many went.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
