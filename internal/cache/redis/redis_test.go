package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestStoreRoundTripWithPrefixAndTTL(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New(Options{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := store.Set(ctx, "查询所有项目", "SELECT * FROM ai_projects;", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	raw, err := server.Get("cache:查询所有项目")
	if err != nil {
		t.Fatalf("server.Get() error = %v", err)
	}
	if raw != "SELECT * FROM ai_projects;" {
		t.Fatalf("stored value = %q", raw)
	}
	if ttl := server.TTL("cache:查询所有项目"); ttl != time.Hour {
		t.Fatalf("TTL = %s", ttl)
	}

	value, ok, err := store.Get(ctx, "查询所有项目")
	if err != nil || !ok || value != "SELECT * FROM ai_projects;" {
		t.Fatalf("Get() = %q ok=%v err=%v", value, ok, err)
	}
}

func TestStoreEntryExpires(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New(Options{Addr: server.Addr(), KeyPrefix: "askql:"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.Set(ctx, "p", "SELECT 1;", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !server.Exists("askql:p") {
		t.Fatal("expected custom prefix key")
	}
	server.FastForward(2 * time.Minute)

	if _, ok, err := store.Get(ctx, "p"); err != nil || ok {
		t.Fatalf("Get() after expiry ok=%v err=%v", ok, err)
	}
}

func TestStoreReportsBackendErrors(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := New(Options{Addr: server.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	server.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping error")
	}
	if _, _, err := store.Get(ctx, "p"); err == nil {
		t.Fatal("expected get error")
	}
	if err := store.Set(ctx, "p", "SELECT 1;", time.Minute); err == nil {
		t.Fatal("expected set error")
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}
