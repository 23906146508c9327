package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const rosterEntriesTable = `
CREATE TABLE IF NOT EXISTS roster_entries (
	id %[1]s,
	location TEXT NOT NULL,
	group_name TEXT NOT NULL,
	time_slot TEXT NOT NULL,
	display_name TEXT NOT NULL,
	present INTEGER NOT NULL DEFAULT 0,
	permanence INTEGER NOT NULL DEFAULT 0,
	source_row_id TEXT NULL,
	source_column TEXT NULL,
	submitted INTEGER NOT NULL DEFAULT 0,
	lesson_code TEXT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK ((source_row_id IS NULL) = (source_column IS NULL))
)`

const mediaItemsTable = `
CREATE TABLE IF NOT EXISTS media_items (
	id %[1]s,
	location TEXT NOT NULL,
	group_name TEXT NOT NULL,
	lesson_date TEXT NOT NULL,
	time_slot TEXT NOT NULL,
	handle TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	kind TEXT NOT NULL,
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const exportJobsTable = `
CREATE TABLE IF NOT EXISTS export_jobs (
	id %[1]s,
	location TEXT NOT NULL,
	group_name TEXT NOT NULL,
	time_slot TEXT NOT NULL,
	lesson_date TEXT NOT NULL,
	module TEXT NOT NULL DEFAULT '',
	theme TEXT NOT NULL DEFAULT '',
	teacher TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	parts_total INTEGER NOT NULL DEFAULT 0,
	parts_delivered INTEGER NOT NULL DEFAULT 0,
	items_skipped INTEGER NOT NULL DEFAULT 0,
	fallback INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_roster_entries_address ON roster_entries (location, group_name, time_slot)`,
	`CREATE INDEX IF NOT EXISTS idx_roster_entries_code ON roster_entries (lesson_code)`,
	`CREATE INDEX IF NOT EXISTS idx_media_items_lesson ON media_items (location, group_name, lesson_date, time_slot)`,
}

// Migrate creates the schema when it is missing. It is idempotent.
func Migrate(db *sqlx.DB) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if strings.HasPrefix(db.DriverName(), "postgres") {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(rosterEntriesTable, pk),
		fmt.Sprintf(mediaItemsTable, pk),
		fmt.Sprintf(exportJobsTable, pk),
	}
	stmts = append(stmts, indexes...)

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
