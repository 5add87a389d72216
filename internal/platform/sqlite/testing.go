package sqlite

import (
	"context"
	"database/sql"
	"testing"
)

// OpenTest returns a migrated in-memory database and a writer, both closed
// when the test finishes.
func OpenTest(t testing.TB) (*sql.DB, *Worker) {
	t.Helper()

	db, err := OpenMemory(context.Background(), "test_"+t.Name())
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	w := NewWorker(db)
	t.Cleanup(func() {
		w.Close()
		_ = db.Close()
	})
	return db, w
}
