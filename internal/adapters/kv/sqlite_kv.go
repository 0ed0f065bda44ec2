package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLite-backed implementation of the KeyValueStore port.
// Each Set is a single upsert statement, so a key's value is replaced atomically.
type SqliteKV struct{ DB *sql.DB }

func NewSqliteKV(db *sql.DB) *SqliteKV {
	return &SqliteKV{DB: db}
}

// Return the value stored under key.
func (s *SqliteKV) Get(ctx context.Context, key string) (string, bool, error) {
	if s.DB == nil {
		return "", false, errors.New("sqlite kv: DB is nil")
	}

	query := `
	SELECT value
	FROM kv_store
	WHERE key = ?;
	`
	var value string
	err := s.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: query kv_store table: %w", key, err)
	}

	return value, true, nil
}

// Store value under key, replacing any previous value.
func (s *SqliteKV) Set(ctx context.Context, key string, value string) error {
	if s.DB == nil {
		return errors.New("sqlite kv: DB is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("set kv: empty key")
	}

	query := `
	INSERT OR REPLACE INTO kv_store (
		key,
		value,
		updated_at
	)
	VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'));
	`
	if _, err := s.DB.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}

	return nil
}

func (s *SqliteKV) Delete(ctx context.Context, key string) error {
	if s.DB == nil {
		return errors.New("sqlite kv: DB is nil")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?;`, key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}

	return nil
}
