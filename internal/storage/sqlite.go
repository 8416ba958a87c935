//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "rotabot/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS activity (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT NOT NULL,
	activity    TEXT NOT NULL,
	channel_id  TEXT,
	channel_name TEXT,
	surface     TEXT,
	phase       TEXT,
	reason      TEXT,
	comments    INTEGER NOT NULL DEFAULT 0,
	took_ms     INTEGER NOT NULL DEFAULT 0,
	err         TEXT
);
CREATE INDEX IF NOT EXISTS idx_activity_at ON activity(at);
CREATE INDEX IF NOT EXISTS idx_activity_channel ON activity(channel_id);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(at, activity, channel_id, channel_name, surface, phase, reason, comments, took_ms, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Activity,
		nullStr(e.ChannelID), nullStr(e.ChannelName), nullStr(e.Surface),
		nullStr(e.Phase), nullStr(e.Reason), e.CommentsProcessed, e.TookMS, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentActivities(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, activity, channel_id, channel_name, surface, phase, reason, comments, took_ms, err
		 FROM activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ActivitySummary(ctx context.Context, since time.Time) (Summary, error) {
	sum := newSummary(since)
	if s == nil || s.db == nil {
		return sum, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, activity, channel_id, channel_name, surface, phase, reason, comments, took_ms, err
		 FROM activity WHERE at >= ?`, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return sum, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanActivity(rows)
		if err != nil {
			return sum, err
		}
		sum.add(e)
	}
	return sum, rows.Err()
}

func (s *sqliteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM activity WHERE at < ?`, before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanActivity(rows *sql.Rows) (ActivityEntry, error) {
	var (
		e                                          ActivityEntry
		at                                         string
		chID, chName, surface, phase, reason, errS sql.NullString
	)
	if err := rows.Scan(&at, &e.Activity, &chID, &chName, &surface, &phase, &reason,
		&e.CommentsProcessed, &e.TookMS, &errS); err != nil {
		return e, err
	}
	if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
		e.At = t
	}
	e.ChannelID = chID.String
	e.ChannelName = chName.String
	e.Surface = surface.String
	e.Phase = phase.String
	e.Reason = reason.String
	e.Error = errS.String
	return e, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
