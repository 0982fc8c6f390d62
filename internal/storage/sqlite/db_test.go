package sqlite

import (
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/felixgeelhaar/socratic/internal/storage/migrations"
)

const schemaVersion = 4

func TestOpen_CreatesDirectoryAndPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "a", "b", "socratic.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	ok, err := db.HasTable("users")
	if err != nil || !ok {
		t.Errorf("HasTable(users) = %v, %v; want true", ok, err)
	}
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db := openTestDB(t)

	v, err := db.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if v != schemaVersion {
		t.Errorf("Version() = %d, want %d", v, schemaVersion)
	}

	for _, table := range []string{"users", "user_skills", "attempts", "auth_sessions", "snippet_embeddings"} {
		ok, err := db.HasTable(table)
		if err != nil {
			t.Fatalf("HasTable(%s) error = %v", table, err)
		}
		if !ok {
			t.Errorf("table %s missing after Migrate", table)
		}
	}

	ok, _ := db.HasTable("no_such_table")
	if ok {
		t.Error("HasTable reported a table that does not exist")
	}
}

func TestMigrate_RunsOnce(t *testing.T) {
	db := openTestDB(t)

	ran, err := db.migrate(migrations.FS)
	if err != nil {
		t.Fatalf("migrate() error = %v", err)
	}
	if ran != 0 {
		t.Errorf("second run applied %d migrations, want 0", ran)
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != schemaVersion {
		t.Errorf("schema_migrations rows = %d, want %d", rows, schemaVersion)
	}
}

func TestMigrate_CustomSteps(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	steps := fstest.MapFS{
		"002_widgets.sql": {Data: []byte("ALTER TABLE gadgets ADD COLUMN size INTEGER;")},
		"001_gadgets.sql": {Data: []byte("CREATE TABLE gadgets (id INTEGER PRIMARY KEY);")},
		"README.md":       {Data: []byte("ignored")},
		"draft.sql":       {Data: []byte("this is not sql")},
	}
	ran, err := db.migrate(steps)
	if err != nil {
		t.Fatalf("migrate() error = %v", err)
	}
	if ran != 2 {
		t.Errorf("applied = %d, want 2", ran)
	}
	if _, err := db.Exec("INSERT INTO gadgets (id, size) VALUES (1, 3)"); err != nil {
		t.Errorf("migrated table unusable: %v", err)
	}

	var name string
	if err := db.QueryRow("SELECT name FROM schema_migrations WHERE version = 2").Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "002_widgets.sql" {
		t.Errorf("recorded name = %q", name)
	}
}

func TestMigrate_FailedStepKeepsEarlierOnes(t *testing.T) {
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	steps := fstest.MapFS{
		"001_ok.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE broken (;")},
	}
	ran, err := db.migrate(steps)
	if err == nil {
		t.Fatal("migrate() succeeded on a broken step")
	}
	if !strings.Contains(err.Error(), "002_broken.sql") {
		t.Errorf("error %q does not name the failing file", err)
	}
	if ran != 1 {
		t.Errorf("applied = %d, want 1", ran)
	}
	if v, _ := db.Version(); v != 1 {
		t.Errorf("Version() = %d, want 1", v)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{
		"003_one.sql": {Data: []byte("SELECT 1;")},
		"003_two.sql": {Data: []byte("SELECT 2;")},
	})
	if err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"001_users.sql", 1, true},
		{"004_snippet_embeddings.sql", 4, true},
		{"120_later.sql", 120, true},
		{"000_zero.sql", 0, false},
		{"users.sql", 0, false},
		{"_users.sql", 0, false},
		{"v1_users.sql", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := migrationVersion(tt.name)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("migrationVersion(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// openTestDB opens a migrated database under the test's temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "socratic.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
