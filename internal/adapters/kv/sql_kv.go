package kv

import (
	"chainwatch/internal/platform/obs"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLKV is a Postgres-backed KeyValueStore (pgx driver via database/sql).
type SQLKV struct {
	DB *sql.DB
}

func NewSQLKV(db *sql.DB) *SQLKV {
	return &SQLKV{DB: db}
}

func (s *SQLKV) Get(ctx context.Context, key string) (_ string, _ bool, err error) {
	defer obs.Time(ctx, "kv.sql.Get")(&err)

	if s.DB == nil {
		return "", false, errors.New("sql kv: db is nil")
	}

	q := `
	SELECT value
	FROM kv_store
	WHERE key = $1;
	`

	var value string
	err = s.DB.QueryRowContext(ctx, q, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %q: query kv_store table: %w", key, err)
	}

	return value, true, nil
}

func (s *SQLKV) Set(ctx context.Context, key string, value string) (err error) {
	defer obs.Time(ctx, "kv.sql.Set")(&err)

	if s.DB == nil {
		return errors.New("sql kv: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("set kv: empty key")
	}

	q := `
	INSERT INTO kv_store (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE
	SET value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.DB.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set kv %q: %w", key, err)
	}

	return nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if s.DB == nil {
		return errors.New("sql kv: db is nil")
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}

	return nil
}
