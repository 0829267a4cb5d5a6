package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStorageTest(t *testing.T, opts ...RedisOption) (*RedisStorage, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStorage(rdb, opts...), mr, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func TestRedisStorageRoundTrip(t *testing.T) {
	s, mr, done := newRedisStorageTest(t, WithPrefix("test"), WithScope("tab-1"))
	defer done()
	ctx := context.Background()

	if err := s.Set(ctx, DefaultRefreshKey, "rt-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := s.Get(ctx, DefaultRefreshKey)
	if err != nil || !ok || got != "rt-1" {
		t.Fatalf("expected rt-1, got %q ok=%v err=%v", got, ok, err)
	}
	if !mr.Exists("test:tab-1:" + DefaultRefreshKey) {
		t.Fatalf("expected namespaced key, have %v", mr.Keys())
	}

	if err := s.Remove(ctx, DefaultRefreshKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, DefaultRefreshKey); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, DefaultRefreshKey); ok {
		t.Fatal("expected key gone after remove")
	}
}

func TestRedisStorageScopeExpires(t *testing.T) {
	s, mr, done := newRedisStorageTest(t, WithTTL(time.Minute))
	defer done()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mr.TTL(s.key("k")); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected value to expire with the scope")
	}
}

func TestRedisStorageResumesScope(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	first := NewRedisStorage(rdb)
	if first.Scope() == "" {
		t.Fatal("expected generated scope")
	}
	if err := first.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}

	resumed := NewRedisStorage(rdb, WithScope(first.Scope()))
	if got, ok, _ := resumed.Get(ctx, "k"); !ok || got != "v" {
		t.Fatalf("expected resumed scope to see v, got %q ok=%v", got, ok)
	}

	other := NewRedisStorage(rdb)
	if _, ok, _ := other.Get(ctx, "k"); ok {
		t.Fatal("expected a fresh scope to be isolated")
	}
}

func TestRedisStorageDropScope(t *testing.T) {
	s, mr, done := newRedisStorageTest(t, WithScope("drop-me"))
	defer done()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := s.Set(ctx, k, k); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	_ = mr.Set("unrelated", "x")

	if err := s.DropScope(ctx); err != nil {
		t.Fatalf("drop scope: %v", err)
	}
	for _, k := range mr.Keys() {
		if strings.Contains(k, "drop-me") {
			t.Fatalf("scope key survived drop: %s", k)
		}
	}
	if !mr.Exists("unrelated") {
		t.Fatal("expected unrelated key untouched")
	}
}

func TestRedisStorageUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisStorage(rdb)
	mr.Close()

	_, _, err = s.Get(context.Background(), "k")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if !IsStorageError(s.Set(context.Background(), "k", "v")) {
		t.Fatal("expected storage error on set")
	}
}

func TestStoreOverRedisKeepsAccessInMemory(t *testing.T) {
	s, mr, done := newRedisStorageTest(t, WithScope("tab"))
	defer done()
	ctx := context.Background()
	store := NewStore(s, "")

	store.SetAccess("memory-only")
	if err := store.SetRefresh(ctx, "persisted"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 || keys[0] != "gs:tab:"+DefaultRefreshKey {
		t.Fatalf("expected only refresh key persisted, got %v", keys)
	}
	if v, _ := mr.Get(keys[0]); v != "persisted" {
		t.Fatalf("unexpected persisted value %q", v)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys after clear, got %v", mr.Keys())
	}
}
