package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the automatic account lockout limiter.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
	// Now defaults to time.Now; the backend passes its fake clock.
	Now func() time.Time
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutLimiter tracks failed login attempts and locks the account when the
// configured threshold is reached.
type LockoutLimiter struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LockoutLimiter{redis: redisClient, config: cfg}
}

func (l *LockoutLimiter) key(userID string) string {
	return "alo:" + userID
}

func (l *LockoutLimiter) lockKey(userID string) string {
	return "alk:" + userID
}

func (l *LockoutLimiter) disabled(userID string) bool {
	return l == nil || !l.config.Enabled || userID == ""
}

// RecordFailure increments the failure counter for a user. When the
// threshold is reached the account is locked and the deadline returned.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, userID string) (time.Time, bool, error) {
	if l.disabled(userID) {
		return time.Time{}, false, nil
	}

	count, err := l.redis.Incr(ctx, l.key(userID)).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count == 1 && l.config.Duration > 0 {
		// Counter window matches the lock duration.
		if err := l.redis.Expire(ctx, l.key(userID), l.config.Duration).Err(); err != nil {
			return time.Time{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count < int64(l.config.Threshold) {
		return time.Time{}, false, nil
	}

	until := l.config.Now().Add(l.config.Duration)
	if err := l.Lock(ctx, userID, until); err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

// Lock stores until as the account's lock deadline and clears the failure
// counter.
func (l *LockoutLimiter) Lock(ctx context.Context, userID string, until time.Time) error {
	if l.disabled(userID) {
		return nil
	}
	ttl := until.Sub(l.config.Now())
	if ttl <= 0 {
		return nil
	}

	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, l.lockKey(userID), until.UTC().Format(time.RFC3339Nano), ttl)
		pipe.Del(ctx, l.key(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// LockedUntil returns the lock deadline when the account is currently locked.
func (l *LockoutLimiter) LockedUntil(ctx context.Context, userID string) (time.Time, bool, error) {
	if l.disabled(userID) {
		return time.Time{}, false, nil
	}

	raw, err := l.redis.Get(ctx, l.lockKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	until, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: bad lock value: %v", ErrLockoutUnavailable, err)
	}
	if !until.After(l.config.Now()) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// Reset clears the failure counter and any lock for a user.
func (l *LockoutLimiter) Reset(ctx context.Context, userID string) error {
	if l.disabled(userID) {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(userID), l.lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// GetFailureCount returns the current failure count for a user.
func (l *LockoutLimiter) GetFailureCount(ctx context.Context, userID string) (int, error) {
	if l.disabled(userID) {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}
