package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/testutil"
)

// createTestStore creates a store for the "column" unit of the fixture
// catalog in a fresh database, with search enabled.
func createTestStore(t *testing.T) (*Store, *meta.StaticCatalog) {
	t.Helper()
	cat := testutil.Catalog(t, "column")
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, cat, WithUnit("column"), WithSearch())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, cat
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
