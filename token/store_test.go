package token

import (
	"context"
	"errors"
	"testing"
)

type failingStorage struct {
	err error
}

func (f failingStorage) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingStorage) Set(context.Context, string, string) error        { return f.err }
func (f failingStorage) Remove(context.Context, string) error             { return f.err }

func TestStoreReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), "")

	store.SetAccess("access-1")
	if got := store.Access(); got != "access-1" {
		t.Fatalf("expected access-1, got %q", got)
	}
	if err := store.SetRefresh(ctx, "refresh-1"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}
	got, err := store.Refresh(ctx)
	if err != nil {
		t.Fatalf("get refresh: %v", err)
	}
	if got != "refresh-1" {
		t.Fatalf("expected refresh-1, got %q", got)
	}
}

func TestStoreAbsentTokens(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, "")
	if store.Access() != "" {
		t.Fatal("expected no access token")
	}
	rt, err := store.Refresh(ctx)
	if err != nil || rt != "" {
		t.Fatalf("expected absent refresh token, got %q err=%v", rt, err)
	}
	if store.HasBoth(ctx) {
		t.Fatal("expected HasBoth false with no tokens")
	}
}

func TestStoreClearWipesBothAndStorageKey(t *testing.T) {
	ctx := context.Background()
	sequences := [][]string{
		{"access"},
		{"refresh"},
		{"access", "refresh"},
		{"refresh", "access", "refresh"},
		{},
	}
	for _, seq := range sequences {
		mem := NewMemoryStorage()
		store := NewStore(mem, "")
		for i, op := range seq {
			switch op {
			case "access":
				store.SetAccess("a")
			case "refresh":
				if err := store.SetRefresh(ctx, "r"+string(rune('0'+i))); err != nil {
					t.Fatalf("set refresh: %v", err)
				}
			}
		}
		if err := store.Clear(ctx); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if store.Access() != "" {
			t.Fatalf("seq %v: access token survived clear", seq)
		}
		if rt, _ := store.Refresh(ctx); rt != "" {
			t.Fatalf("seq %v: refresh token survived clear", seq)
		}
		if _, ok := mem.Snapshot()[DefaultRefreshKey]; ok {
			t.Fatalf("seq %v: storage still holds refresh key", seq)
		}
	}
}

func TestStoreAccessTokenNeverPersisted(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	store := NewStore(mem, "custom_key")

	store.SetAccess("secret-access")
	if err := store.SetRefresh(ctx, "secret-refresh"); err != nil {
		t.Fatalf("set refresh: %v", err)
	}

	snap := mem.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected exactly one persisted key, got %v", snap)
	}
	if snap["custom_key"] != "secret-refresh" {
		t.Fatalf("expected refresh token under custom_key, got %v", snap)
	}
	for k, v := range snap {
		if v == "secret-access" {
			t.Fatalf("access token persisted under %q", k)
		}
	}
}

func TestStoreHasBoth(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryStorage(), "")

	store.SetAccess("a")
	if store.HasBoth(ctx) {
		t.Fatal("expected false with only access token")
	}
	store.SetAccess("")
	_ = store.SetRefresh(ctx, "r")
	if store.HasBoth(ctx) {
		t.Fatal("expected false with only refresh token")
	}
	store.SetAccess("a")
	if !store.HasBoth(ctx) {
		t.Fatal("expected true with both tokens")
	}
}

func TestStoreAccessValueNotifies(t *testing.T) {
	store := NewStore(nil, "")
	var seen []string
	cancel := store.AccessValue().Subscribe(func(v string) { seen = append(seen, v) })
	defer cancel()

	store.SetAccess("one")
	store.SetAccess("two")
	_ = store.Clear(context.Background())

	if len(seen) != 3 || seen[0] != "one" || seen[1] != "two" || seen[2] != "" {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestStoreClearDropsAccessEvenWhenStorageFails(t *testing.T) {
	boom := errors.New("boom")
	store := NewStore(failingStorage{err: boom}, "")
	store.SetAccess("a")

	if err := store.Clear(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if store.Access() != "" {
		t.Fatal("expected access token cleared despite storage failure")
	}
	if store.HasBoth(context.Background()) {
		t.Fatal("expected HasBoth false on storage failure")
	}
}
