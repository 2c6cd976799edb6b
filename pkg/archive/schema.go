package archive

import (
	"context"
	"fmt"
	"sort"
)

// Migration is one schema step.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// migrations are applied in Version order and recorded in archive_migrations.
var migrations = []Migration{
	{
		Version: "001",
		Name:    "create_meetings",
		SQL: `CREATE TABLE IF NOT EXISTS archived_meetings (
	meeting_key        TEXT PRIMARY KEY,
	platform           TEXT NOT NULL,
	native_meeting_id  TEXT NOT NULL,
	record_id          TEXT NOT NULL DEFAULT '',
	title              TEXT NOT NULL DEFAULT '',
	language           TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	segment_count      INTEGER NOT NULL DEFAULT 0,
	run_id             UUID NOT NULL,
	source_updated_at  TIMESTAMPTZ,
	archived_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
	{
		Version: "002",
		Name:    "create_segments",
		SQL: `CREATE TABLE IF NOT EXISTS archived_segments (
	meeting_key  TEXT NOT NULL REFERENCES archived_meetings(meeting_key) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	segment_id   TEXT NOT NULL,
	speaker      TEXT NOT NULL,
	language     TEXT NOT NULL DEFAULT '',
	spoken_at    TIMESTAMPTZ NOT NULL,
	body         TEXT NOT NULL,
	PRIMARY KEY (meeting_key, position)
)`,
	},
	{
		Version: "003",
		Name:    "segments_fulltext",
		SQL:     `CREATE INDEX IF NOT EXISTS archived_segments_body_idx ON archived_segments USING gin (to_tsvector('simple', body))`,
	},
}

// Migrations returns the schema steps in application order.
func Migrations() []Migration {
	out := append([]Migration(nil), migrations...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string
	Skipped []string
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(ctx context.Context, db DB) (*MigrationResult, error) {
	if _, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS archive_migrations (
	version    TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query(ctx, `SELECT version FROM archive_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	result := &MigrationResult{}
	for _, m := range Migrations() {
		if applied[m.Version] {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return result, fmt.Errorf("migration %s failed: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
	}
	return result, nil
}

func applyMigration(ctx context.Context, db DB, m Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO archive_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
