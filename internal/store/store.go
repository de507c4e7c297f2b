// Package store provides the shared SQLite persistence layer.
//
// One database file backs every bot in the process. Rows are scoped by
// BotKey so bots never observe each other's personas, settings, or
// reminders. SQLite permits a single writer, so all writes are serialized
// through wmu while reads run concurrently against the WAL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the shared database handle.
type Store struct {
	db     *sql.DB
	wmu    sync.Mutex
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS user_personas (
	bot_key TEXT NOT NULL,
	user_id TEXT NOT NULL,
	persona TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	PRIMARY KEY (bot_key, user_id)
);

CREATE TABLE IF NOT EXISTS guild_settings (
	bot_key TEXT NOT NULL,
	guild_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (bot_key, guild_id, name)
);

CREATE TABLE IF NOT EXISTS bot_settings (
	bot_key TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (bot_key, name)
);

CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	bot_key TEXT NOT NULL,
	user_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	message TEXT NOT NULL,
	due_at TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (bot_key, completed, due_at);

CREATE TABLE IF NOT EXISTS usage_log (
	id TEXT PRIMARY KEY,
	bot_key TEXT NOT NULL,
	user_id TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_chars INTEGER NOT NULL,
	reply_chars INTEGER NOT NULL,
	at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	if path == ":memory:" {
		// Each pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragmas: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	logger.Info("store: opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// write serializes a mutation. SQLite tolerates one writer at a time;
// funneling writes through a process-level mutex avoids SQLITE_BUSY churn
// when several bots persist concurrently.
func (s *Store) write(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.db.ExecContext(ctx, query, args...)
}
