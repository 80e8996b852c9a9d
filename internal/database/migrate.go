package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// statementSeparator splits a migration file into statements.  Stored
// procedure bodies contain semicolons, so files cannot be split on ';'.
const statementSeparator = "-- statement"

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations, in file name order.  Each file runs statement by
// statement; MySQL DDL commits implicitly, so a failure leaves earlier
// statements applied and the file unrecorded.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(191) PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimPrefix(name, "migrations/")
		var n int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if n > 0 {
			continue
		}
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return err
		}
		for i, stmt := range SplitStatements(string(body)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s statement %d: %w", version, i+1, err)
			}
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
		log.Printf("migrate: applied %s", version)
	}
	return nil
}

// SplitStatements breaks a migration body on separator lines and drops
// blank chunks.  Trailing semicolons on plain statements are removed.
func SplitStatements(body string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		cur.Reset()
		if s == "" {
			return
		}
		if !strings.HasSuffix(strings.ToUpper(s), "END") {
			s = strings.TrimSuffix(s, ";")
		}
		out = append(out, s)
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == statementSeparator {
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	flush()
	return out
}
