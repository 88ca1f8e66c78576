package sqlite

import (
	"database/sql"
	"fmt"
)

// Timestamps are stored as INTEGER unix nanoseconds so ORDER BY is exact.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        user_id TEXT PRIMARY KEY,
        email TEXT NOT NULL UNIQUE,
        password_hash BLOB NOT NULL,
        creation_time INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS sessions (
        token TEXT PRIMARY KEY,
        user_id TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
        created_at INTEGER NOT NULL,
        expires_at INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS mood_entries (
        id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        text TEXT NOT NULL DEFAULT '',
        tags TEXT NOT NULL DEFAULT '[]',
        created_at INTEGER NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS mood_entries_user_created_idx ON mood_entries (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS audio_recordings (
        entry_id TEXT PRIMARY KEY REFERENCES mood_entries(id) ON DELETE CASCADE,
        user_id TEXT NOT NULL,
        url TEXT NOT NULL,
        duration_seconds INTEGER NOT NULL,
        created_at INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS outbox (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        aggregate_id TEXT NOT NULL,
        op TEXT NOT NULL,
        payload TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        attempt_count INTEGER NOT NULL DEFAULT 0,
        next_attempt_at INTEGER NOT NULL,
        update_time INTEGER NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS outbox_ready_idx ON outbox (status, next_attempt_at)`,
}

// EnsureSchema creates all tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	return nil
}
