package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/strata/internal/testutil"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, testutil.Catalog(t, "column"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cat := testutil.Catalog(t, "column")

	for i := 0; i < 3; i++ {
		s, err := Open(path, cat, WithSearch())
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path, cat)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	tables := []string{"strata_entities", "person", "author", "author_books", "search_documents"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", testutil.Catalog(t, "column"))
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_UnitScopesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cat := testutil.Catalog(t, "column")

	s, err := Open(path, cat, WithUnit("graph"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='person'").Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Error("tables of other units should not be created")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s, _ := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

func TestPragmas(t *testing.T) {
	s, _ := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSchema_EntityTables(t *testing.T) {
	s, _ := createTestStore(t)

	columns := getTableColumns(t, s.db, "account")
	for _, col := range []string{"id", "owner", "balance", "limit", "opened", "renewal", "score", "active", "visits", "city", "zip"} {
		if !contains(columns, col) {
			t.Errorf("account table missing column %q", col)
		}
	}

	columns = getTableColumns(t, s.db, "author")
	if !contains(columns, "address_id") {
		t.Error("author table missing foreign key column address_id")
	}

	columns = getTableColumns(t, s.db, "author_books")
	for _, col := range []string{"owner_id", "target_id", "position"} {
		if !contains(columns, col) {
			t.Errorf("author_books table missing column %q", col)
		}
	}
}

func TestRegistered(t *testing.T) {
	s, _ := createTestStore(t)

	classes, err := s.Registered(t.Context())
	if err != nil {
		t.Fatalf("Registered() failed: %v", err)
	}
	if !contains(classes, testutil.PersonClass) || !contains(classes, testutil.ActedInClass) {
		t.Errorf("registry = %v", classes)
	}
	for i := 1; i < len(classes); i++ {
		if classes[i-1] > classes[i] {
			t.Errorf("registry not ordered: %v", classes)
		}
	}
}
