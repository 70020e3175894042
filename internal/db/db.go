// Package db provides the SQLite-backed offline cache for chatsync.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/storefront-io/chatsync/internal/logging"
)

// Config controls the cache database connection.
type Config struct {
	// Path is the database file path. Empty selects an in-memory database.
	Path string

	// MaxConnections bounds the pool size.
	MaxConnections int

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int
}

// DB wraps the SQL connection pool with chatsync defaults applied.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the cache database at cfg.Path.
func Open(cfg Config) (*DB, error) {
	dsn := cfg.Path
	if dsn == "" {
		return OpenInMemory()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return open(dsn, cfg)
}

// OpenInMemory opens a private in-memory database. Used by tests and as the
// fallback when no cache path is configured. The name is unique per call so
// concurrent opens never share tables.
func OpenInMemory() (*DB, error) {
	dsn := fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.New().String())
	return open(dsn, Config{MaxConnections: 1})
}

func open(dsn string, cfg Config) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	}

	busyTimeout := cfg.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{DB: sqlDB, logger: logging.Component("db")}, nil
}

// MigrateUp applies the cache schema. Idempotent; returns the number of
// statements executed.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			read_by_json TEXT,
			edited INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, created_at, id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			counterparty_json TEXT NOT NULL,
			shop_json TEXT NOT NULL,
			last_message_id TEXT,
			last_activity_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_activity
			ON conversations (last_activity_at DESC)`,
	}

	applied := 0
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return applied, fmt.Errorf("failed to apply schema: %w", err)
		}
		applied++
	}
	return applied, nil
}

// Transaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("transaction rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
