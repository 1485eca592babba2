// Package storetest opens throwaway databases for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/charbot/charbot/internal/store"
)

// Open returns a migrated SQLite database living in t.TempDir.
func Open(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(context.Background(), store.Config{
		Dialect:    string(store.DialectSQLite),
		SQLitePath: filepath.Join(t.TempDir(), "charbot.sqlite"),
	})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// Exec runs seed statements and fails the test on error.
func Exec(t *testing.T, db *store.DB, query string, args ...any) {
	t.Helper()

	if _, err := db.Exec(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
