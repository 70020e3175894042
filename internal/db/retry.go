package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	writeRetryAttempts = 3
	writeRetryBackoff  = 50 * time.Millisecond
)

// WriteTransaction runs a write transaction, retrying with exponential
// backoff when SQLite reports the database busy. WAL mode makes this rare but
// the cache shares its file with the state manager's process.
func (db *DB) WriteTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	backoff := writeRetryBackoff

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusyError(err) || attempt >= writeRetryAttempts {
			return err
		}

		db.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying busy cache write")
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}
