package db

import (
	"database/sql"
	"fmt"
	"strings"
)

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS file_entries (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			size INTEGER NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
			storage_type TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			create_time TEXT NOT NULL,
			update_time TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_file_entries_update ON file_entries(update_time);`,
		`CREATE TABLE IF NOT EXISTS system_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			update_time TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	hasSourceURL, err := hasColumn(db, "file_entries", "source_url")
	if err != nil {
		return err
	}
	if !hasSourceURL {
		if _, err := db.Exec(`ALTER TABLE file_entries ADD COLUMN source_url TEXT NOT NULL DEFAULT '';`); err != nil {
			return fmt.Errorf("add file_entries.source_url: %w", err)
		}
	}

	return nil
}

func hasColumn(db *sql.DB, tableName string, columnName string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, tableName))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var dataType string
		var notNull int
		var defaultValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("scan table_info(%s): %w", tableName, err)
		}
		if strings.EqualFold(name, columnName) {
			return true, nil
		}
	}
	return false, rows.Err()
}
