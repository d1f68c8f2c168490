package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

const (
	ErrOpenFailed    types.ErrorCode = "STORE_OPEN_FAILED"
	ErrMigrateFailed types.ErrorCode = "STORE_MIGRATE_FAILED"
	ErrQueryFailed   types.ErrorCode = "STORE_QUERY_FAILED"
	ErrWriteFailed   types.ErrorCode = "STORE_WRITE_FAILED"
	ErrNotFound      types.ErrorCode = "STORE_NOT_FOUND"
)

// DB wraps the SQLite connection used for job and snapshot persistence.
type DB struct {
	conn *sql.DB
	path string
}

// Config holds database connection options.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DefaultConfig returns sensible defaults for the given database path.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// Open creates a database connection with WAL mode, foreign keys, and a busy
// timeout for concurrent access.
func Open(path string) (*DB, error) {
	return OpenWithConfig(DefaultConfig(path))
}

// OpenWithConfig creates a database connection with custom options.
func OpenWithConfig(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, types.WrapError(ErrOpenFailed, "opening database", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, types.WrapError(ErrOpenFailed, "pinging database", err)
	}

	var journalMode string
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		conn.Close()
		return nil, types.WrapError(ErrOpenFailed, "verifying journal mode", err)
	}
	if journalMode != "wal" {
		conn.Close()
		return nil, types.NewError(ErrOpenFailed,
			fmt.Sprintf("WAL mode not enabled (got %s)", journalMode))
	}

	return &DB{conn: conn, path: cfg.Path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Health verifies the connection is alive and queryable.
func (db *DB) Health(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return types.WrapError(ErrOpenFailed, "ping failed", err)
	}
	var one int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return types.WrapError(ErrQueryFailed, "health query failed", err)
	}
	return nil
}
