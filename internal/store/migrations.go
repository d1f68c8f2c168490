package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

//go:embed schema.sql
var initialSchema string

// migration is a single versioned schema change.
type migration struct {
	version int
	name    string
	up      string
}

func migrations() []migration {
	return []migration{
		{version: 1, name: "initial_schema", up: initialSchema},
	}
}

// Migrate applies all pending migrations in version order. Each migration
// runs inside its own transaction together with its version bookkeeping.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return types.WrapError(ErrMigrateFailed, "creating migrations table", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations() {
		if m.version <= current {
			continue
		}

		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return types.WrapError(ErrMigrateFailed, "starting migration transaction", err)
		}

		for _, stmt := range splitStatements(m.up) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return types.WrapError(ErrMigrateFailed,
					fmt.Sprintf("applying migration %d (%s)", m.version, m.name), err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			m.version, m.name); err != nil {
			tx.Rollback()
			return types.WrapError(ErrMigrateFailed, "recording migration", err)
		}
		if err := tx.Commit(); err != nil {
			return types.WrapError(ErrMigrateFailed, "committing migration", err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, types.WrapError(ErrQueryFailed, "reading schema version", err)
	}
	return version, nil
}

// splitStatements breaks a migration script into individual statements,
// dropping comments and empty fragments.
func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, line)
		}
		joined := strings.TrimSpace(strings.Join(lines, "\n"))
		if joined != "" {
			out = append(out, joined)
		}
	}
	return out
}
