package token

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/observable"
)

// DefaultRefreshKey is the storage key holding the refresh token.
const DefaultRefreshKey = "wom_refresh_token"

// Store holds the access token in memory and the refresh token in Storage.
type Store struct {
	storage    Storage
	refreshKey string
	access     *observable.Value[string]
}

// NewStore returns a Store over storage. An empty key selects
// [DefaultRefreshKey]; a nil storage selects a fresh [MemoryStorage].
func NewStore(storage Storage, refreshKey string) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if strings.TrimSpace(refreshKey) == "" {
		refreshKey = DefaultRefreshKey
	}
	return &Store{
		storage:    storage,
		refreshKey: refreshKey,
		access:     observable.NewValue(""),
	}
}

// SetAccess replaces the in-memory access token.
func (s *Store) SetAccess(token string) {
	s.access.Set(token)
}

// Access returns the access token or "" when absent.
func (s *Store) Access() string {
	return s.access.Get()
}

// AccessValue exposes the access token as a read-mostly observable.
// Callers should only Subscribe or Get.
func (s *Store) AccessValue() *observable.Value[string] {
	return s.access
}

// SetRefresh persists the refresh token. An empty token removes it.
func (s *Store) SetRefresh(ctx context.Context, token string) error {
	if token == "" {
		return s.storage.Remove(ctx, s.refreshKey)
	}
	return s.storage.Set(ctx, s.refreshKey, token)
}

// Refresh returns the persisted refresh token or "" when absent.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	v, ok, err := s.storage.Get(ctx, s.refreshKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// Clear wipes both tokens. The access token is cleared even when the storage
// call fails.
func (s *Store) Clear(ctx context.Context) error {
	s.access.Set("")
	return s.storage.Remove(ctx, s.refreshKey)
}

// HasBoth reports whether both tokens are present. Storage failures count as
// absent.
func (s *Store) HasBoth(ctx context.Context) bool {
	if s.Access() == "" {
		return false
	}
	rt, err := s.Refresh(ctx)
	return err == nil && rt != ""
}

// RefreshKey returns the storage key used for the refresh token.
func (s *Store) RefreshKey() string {
	return s.refreshKey
}

// IsStorageError reports whether err came from the backing Storage.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
