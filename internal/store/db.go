package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the trendcast SQLite document store.
type DB struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns the default database path under the XDG data home,
// e.g. ~/.local/share/trendcast/trendcast.db
func DefaultDBPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("trendcast", "trendcast.db"))
	if err != nil {
		return "", fmt.Errorf("resolve data file: %w", err)
	}
	return path, nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, ":memory:")
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
