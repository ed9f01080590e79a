package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_items.up.sql":   {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"migrations/001_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"migrations/002_add_name.up.sql":       {Data: []byte("ALTER TABLE items ADD COLUMN name TEXT;")},
		"migrations/002_add_name.down.sql":     {Data: []byte("ALTER TABLE items DROP COLUMN name;")},
		"migrations/README.md":                 {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFSSourceMigrations(t *testing.T) {
	migrations, err := NewFSSource(testFS(), "migrations", "").Migrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	for _, m := range migrations {
		if m.Up == "" || m.Down == "" {
			t.Errorf("migration %d incomplete: %+v", m.Version, m)
		}
		if m.Version == 2 && m.Name != "add name" {
			t.Errorf("unexpected name %q", m.Name)
		}
	}
}

func TestMigrator(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSSource(testFS(), "migrations", ""), nil)

	pending, err := m.Pending()
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending migrations, got %d (%v)", len(pending), err)
	}

	if err := m.Up(); err != nil {
		t.Fatalf("up: %v", err)
	}
	if v, _ := m.Version(); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}
	if _, err := db.Exec("INSERT INTO items (id, name) VALUES (1, 'a')"); err != nil {
		t.Errorf("schema not applied: %v", err)
	}

	// idempotent
	if err := m.Up(); err != nil {
		t.Fatalf("second up: %v", err)
	}

	if err := m.To(1); err != nil {
		t.Fatalf("down to 1: %v", err)
	}
	if v, _ := m.Version(); v != 1 {
		t.Errorf("expected version 1, got %d", v)
	}

	if err := m.Down(1); err == nil {
		t.Errorf("expected error rolling down to the current version")
	}
	if err := m.Down(0); err != nil {
		t.Fatalf("down to 0: %v", err)
	}
	if v, _ := m.Version(); v != 0 {
		t.Errorf("expected version 0, got %d", v)
	}
}
