// Package sqlite stores learners, attempts, auth sessions and snippet
// embeddings for the single-user local mode.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/socratic/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is the socratic SQLite handle.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// migration is one numbered schema step.
type migration struct {
	version int
	name    string
	sql     string
}

// Open connects to the database file at path, creating its directory. WAL
// journaling and foreign keys are always on; SQLite allows one writer so
// the pool is pinned to a single connection.
func Open(path string) (*DB, error) {
	return OpenWithLogger(path, slog.Default())
}

// OpenWithLogger is Open with an explicit logger for migration output.
func OpenWithLogger(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := "file::memory:?_foreign_keys=ON"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	return &DB{DB: conn, logger: logger}, nil
}

// Migrate brings the schema up to the newest embedded migration.
func (db *DB) Migrate() error {
	_, err := db.migrate(migrations.FS)
	return err
}

// migrate applies every step in fsys newer than the recorded version and
// returns how many ran. Each step commits on its own so a failure leaves
// earlier steps in place.
func (db *DB) migrate(fsys fs.FS) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return 0, fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	steps, err := loadMigrations(fsys)
	if err != nil {
		return 0, err
	}
	current, err := db.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	ran := 0
	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if err := db.apply(m); err != nil {
			return ran, err
		}
		ran++
		db.logger.Info("schema migrated", "version", m.version, "name", m.name)
	}
	if ran > 0 {
		db.logger.Info("schema up to date", "version", steps[len(steps)-1].version, "applied", ran)
	}
	return ran, nil
}

func (db *DB) apply(m migration) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", m.name, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(m.sql); err != nil {
		return fmt.Errorf("migration %s: %w", m.name, err)
	}
	if _, err = tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return fmt.Errorf("migration %s: record: %w", m.name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", m.name, err)
	}
	return nil
}

// Version returns the newest applied migration, zero for a fresh database.
func (db *DB) Version() (int, error) {
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// HasTable reports whether the named table exists.
func (db *DB) HasTable(name string) (bool, error) {
	var found string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&found)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// loadMigrations reads NNN_name.sql files from fsys in version order.
// Files that do not follow the naming scheme are ignored; two files with
// the same number are an error.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var out []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, ok := migrationVersion(e.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), version)
		}
		seen[version] = e.Name()

		body, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: version, name: e.Name(), sql: string(body)})
	}

	slices.SortFunc(out, func(a, b migration) int { return a.version - b.version })
	return out, nil
}

// migrationVersion parses the numeric prefix of "004_snippet_embeddings.sql".
func migrationVersion(name string) (int, bool) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || prefix == "" {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
