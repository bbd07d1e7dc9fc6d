package sqlite

import (
	"fmt"
	"net/url"
	"testing"
)

// setupTestDB opens a migrated, named in-memory database for one test.
// cache=shared lets the writer and reader pools see the same in-memory
// store; the name comes from t.Name() so tests never share state.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name: subtest names carry '/' and could
	// otherwise leak into the DSN's query part.
	// In-memory databases have no WAL, so that pragma is omitted.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		url.PathEscape(t.Name()),
	)

	writer, err := openPool(dsn, 1)
	if err != nil {
		t.Fatalf("open test db writer: %v", err)
	}

	reader, err := openPool(dsn, 4)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("open test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}
	t.Cleanup(func() { _ = db.Close() })

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
