package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "documents: collection-scoped JSON documents",
		SQL: `
CREATE TABLE documents (
    seq         INTEGER PRIMARY KEY,
    collection  TEXT NOT NULL,
    id          TEXT NOT NULL,
    body        TEXT NOT NULL CHECK (json_valid(body)),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,

    UNIQUE (collection, id)
);

CREATE INDEX idx_documents_collection ON documents(collection, seq DESC);
`,
	},
	{
		Version:     2,
		Description: "documents: index meme creation time for window queries",
		SQL: `
CREATE INDEX idx_documents_created_utc
    ON documents(collection, json_extract(body, '$.created_utc'));
`,
	},
}

func (db *DB) migrate() error {
	if err := checkMigrations(migrations); err != nil {
		return err
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// checkMigrations requires versions to start at 1 and increase by one.
func checkMigrations(ms []migration) error {
	for i, m := range ms {
		if m.Version != i+1 {
			return fmt.Errorf("migration %d (%s): expected version %d", m.Version, m.Description, i+1)
		}
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
