package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// CurrentSchemaVersion is the version written by the newest migration.
const CurrentSchemaVersion = 1

// migrations[i] brings the database from version i to i+1.
var migrations = []string{"schema.sql"}

var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// DB is the run history database.
type DB struct {
	sqlDB *sql.DB
	path  string
}

// Open opens the history database at path, creating and migrating it as needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db := &DB{sqlDB: sqlDB, path: path}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("runs.db schema version %d is newer than this binary (%d)", version, CurrentSchemaVersion)
	}
	for v := version; v < len(migrations); v++ {
		if err := db.applyMigration(v+1, migrations[v]); err != nil {
			return fmt.Errorf("migrate runs.db to version %d: %w", v+1, err)
		}
	}
	return nil
}

func (db *DB) applyMigration(version int, file string) error {
	script, err := schemaFS.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := db.sqlDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(script)); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, formatTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// getSchemaVersion returns 0 for a fresh database.
func (db *DB) getSchemaVersion() (int, error) {
	var tables int
	err := db.sqlDB.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'").Scan(&tables)
	if err != nil || tables == 0 {
		return 0, err
	}
	var version int
	if err := db.sqlDB.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Stats counts the stored rows and reports the file size.
func (db *DB) Stats() (*DBStats, error) {
	stats := &DBStats{}
	for _, c := range []struct {
		table string
		dst   *int64
	}{
		{"runs", &stats.RunCount},
		{"folds", &stats.FoldCount},
		{"scalars", &stats.ScalarCount},
	} {
		if err := db.sqlDB.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// DBStats summarizes the history database.
type DBStats struct {
	RunCount    int64
	FoldCount   int64
	ScalarCount int64
	SizeBytes   int64
}
