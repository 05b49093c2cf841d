package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store errors. ErrNotFound covers operations on deleted conversations or
// messages; anything else coming out of the driver is a store-availability
// problem for the caller to surface.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
)

// DB wraps a SQLite database connection for the app-owned pigeon.db.
// All timestamps are assigned here, on the store side, in unix milliseconds,
// so ordering and staleness checks are consistent across clients.
type DB struct {
	*sql.DB
}

// failure classifies a driver error as the store being unavailable. Nil and
// ErrNotFound pass through so callers can keep matching on the taxonomy.
func failure(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
