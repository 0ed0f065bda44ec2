package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseKV(t, NewRedisKV(client, "chainwatch:"))
}

func TestRedisKVPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := OpenRedisKV(context.Background(), mr.Addr(), "", 0, "chainwatch:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Set(context.Background(), "chainwatch_batches", "[]"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := mr.Get("chainwatch:chainwatch_batches")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	if got != "[]" {
		t.Fatalf("raw value = %q, want []", got)
	}
}

func TestOpenRedisKVUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := OpenRedisKV(context.Background(), addr, "", 0, ""); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
}
