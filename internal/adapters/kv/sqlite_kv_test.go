package kv

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestSqlite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := InitSqliteSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func TestSqliteKV(t *testing.T) {
	exerciseKV(t, NewSqliteKV(openTestSqlite(t)))
}

func TestSqliteKVSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := InitSqliteSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	if err := NewSqliteKV(db).Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = db.Close()

	db, err = sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()

	if err := InitSqliteSchema(db); err != nil {
		t.Fatalf("init schema twice: %v", err)
	}
	got, ok, err := NewSqliteKV(db).Get(ctx, "k")
	if err != nil || !ok || got != "v" {
		t.Fatalf("Get after reopen = %q ok=%v err=%v, want v", got, ok, err)
	}
}

func TestSqliteKVNilDB(t *testing.T) {
	var s SqliteKV
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error for nil DB")
	}
	if err := InitSqliteSchema(nil); err == nil {
		t.Fatal("expected error for nil DB")
	}
}
