package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces every key written by RedisStorage.
	DefaultRedisPrefix = "gs"
	// DefaultRedisTTL is the lifetime of an idle scope.
	DefaultRedisTTL = 12 * time.Hour

	scanBatch = 64
)

// RedisStorage keeps values under "<prefix>:<scope>:<key>" with a TTL that is
// renewed on every write. A scope plays the role of one browser session:
// reusing the scope ID resumes it, dropping the scope ends it.
type RedisStorage struct {
	redis  redis.UniversalClient
	prefix string
	scope  string
	ttl    time.Duration
}

// RedisOption customizes a RedisStorage.
type RedisOption func(*RedisStorage)

// WithPrefix sets the key prefix (default "gs").
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// WithScope resumes an existing scope instead of generating a new one.
func WithScope(scope string) RedisOption {
	return func(s *RedisStorage) {
		if sc := strings.TrimSpace(scope); sc != "" {
			s.scope = sc
		}
	}
}

// WithTTL sets the scope lifetime (default 12h).
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStorage creates a Redis-backed Storage. Without [WithScope] a fresh
// random scope is used.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{
		redis:  client,
		prefix: DefaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scope == "" {
		s.scope = uuid.NewString()
	}
	return s
}

// Scope returns the scope ID, which callers persist to resume later.
func (s *RedisStorage) Scope() string {
	return s.scope
}

func (s *RedisStorage) key(name string) string {
	return s.prefix + ":" + s.scope + ":" + name
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.redis == nil {
		return "", false, ErrStorageUnavailable
	}
	val, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return val, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if s == nil || s.redis == nil {
		return ErrStorageUnavailable
	}
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Remove deletes the key. Removing a missing key is not an error.
func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if s == nil || s.redis == nil {
		return ErrStorageUnavailable
	}
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DropScope removes every key of the scope, ending the session.
func (s *RedisStorage) DropScope(ctx context.Context) error {
	if s == nil || s.redis == nil {
		return ErrStorageUnavailable
	}
	match := s.prefix + ":" + s.scope + ":*"
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
