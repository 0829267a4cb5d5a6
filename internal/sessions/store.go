package sessions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisUnavailable    = errors.New("redis unavailable")
	ErrSessionNotFound     = errors.New("refresh session not found")
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 2
	rotateStatusRotated  int64 = 3
)

// KEYS[1] session hash; ARGV[1] provided hash; ARGV[2] next hash.
const rotateRefreshScript = `
local stored = redis.call("HGET", KEYS[1], "rh")
if not stored then
  return {0}
end
if stored ~= ARGV[1] then
  return {2}
end
redis.call("HSET", KEYS[1], "rh", ARGV[2])
return {3, redis.call("HGET", KEYS[1], "uid")}
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// KEYS[1] session hash; KEYS[2] user index; ARGV[1] session id.
const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Session is one refresh-token family.
type Session struct {
	ID          string
	UserID      int64
	RefreshHash string
	CreatedAt   time.Time
}

// Store persists sessions in Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session [Store]. ttl bounds a session's lifetime and
// is renewed on every rotation.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID int64) string {
	return s.prefix + "u:" + strconv.FormatInt(userID, 10)
}

// Save writes sess and indexes it under its user.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	key := s.key(sess.ID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"uid", strconv.FormatInt(sess.UserID, 10),
			"rh", sess.RefreshHash,
			"created", sess.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Exists reports whether the session is still live.
func (s *Store) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// Rotate swaps the stored refresh hash from provided to next and returns the
// session's user. A mismatch means the presented token was already used.
func (s *Store) Rotate(ctx context.Context, sessionID, provided, next string) (int64, error) {
	key := s.key(sessionID)
	result, err := rotateRefreshLua.Run(ctx, s.redis, []string{key}, provided, next).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return 0, fmt.Errorf("%w: invalid refresh script response", ErrRedisUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid refresh script status", ErrRedisUnavailable)
	}

	switch code {
	case rotateStatusNotFound:
		return 0, ErrSessionNotFound
	case rotateStatusMismatch:
		return 0, ErrRefreshHashMismatch
	case rotateStatusRotated:
		if len(parts) < 2 {
			return 0, fmt.Errorf("%w: missing user id", ErrRedisUnavailable)
		}
		raw, _ := parts[1].(string)
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad user id %q", ErrRedisUnavailable, raw)
		}
		if err := s.redis.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return uid, nil
	default:
		return 0, fmt.Errorf("%w: unknown refresh script status", ErrRedisUnavailable)
	}
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, userID int64, sessionID string) error {
	_, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(userID)}, sessionID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every session of userID and returns how many
// were live.
func (s *Store) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	userKey := s.userKey(userID)
	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}

	var removed *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			removed = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if removed == nil {
		return 0, nil
	}
	return int(removed.Val()), nil
}

// ActiveSessionIDs lists the IDs indexed under userID, live or not.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID int64) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}
