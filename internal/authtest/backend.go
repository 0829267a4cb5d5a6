package authtest

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/limiters"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/internal/password"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/sessions"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config tunes a Backend. Zero fields take the defaults noted.
type Config struct {
	AccessTTL  time.Duration // 15m
	SessionTTL time.Duration // 12h
	SigningKey []byte        // random
	Issuer     string        // "goSession-authtest"
	Now        func() time.Time

	// Redis backs sessions, throttle and lockout. Nil starts an owned
	// miniredis whose clock follows Now.
	Redis redis.UniversalClient

	MaxLoginAttempts int           // 10 per RateWindow
	RateWindow       time.Duration // 1m
	LockoutThreshold int           // 5
	LockoutDuration  time.Duration // 15m

	// Node is the snowflake node that mints user IDs (1).
	Node int64

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 12 * time.Hour
	}
	if c.Issuer == "" {
		c.Issuer = "goSession-authtest"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Node <= 0 {
		c.Node = 1
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Failure is a scripted response for the next request to a path.
type Failure struct {
	Status      int
	Message     string
	LockedUntil time.Time
	RetryAfter  time.Duration
}

type userRecord struct {
	user authapi.User
	hash string
}

// Backend is the fake server. It is an http.Handler.
type Backend struct {
	cfg      Config
	handler  http.Handler
	logger   *zap.Logger
	tokens   *jwt.Manager
	hasher   *password.Argon2
	sessions *sessions.Store
	limiter  *rate.Limiter
	lockout  *limiters.LockoutLimiter

	redis    redis.UniversalClient
	mini     *miniredis.Miniredis
	lastTick time.Time

	ids *snowflake.Node

	mu       sync.Mutex
	users    map[int64]*userRecord
	byName   map[string]int64
	failures map[string][]Failure
	calls    map[string]int
	issued   map[string]struct{}
	revoked  map[string]struct{}
}

// New builds a Backend. Call Close to release an owned Redis.
func New(cfg Config) (*Backend, error) {
	cfg = cfg.withDefaults()

	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        cfg.Issuer,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("authtest: jwt: %w", err)
	}
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("authtest: password: %w", err)
	}

	ids, err := snowflake.NewNode(cfg.Node)
	if err != nil {
		return nil, fmt.Errorf("authtest: snowflake: %w", err)
	}

	b := &Backend{
		cfg:      cfg,
		ids:      ids,
		logger:   cfg.Logger.Named("authtest"),
		tokens:   tokens,
		hasher:   hasher,
		redis:    cfg.Redis,
		users:    make(map[int64]*userRecord),
		byName:   make(map[string]int64),
		failures: make(map[string][]Failure),
		calls:    make(map[string]int),
		issued:   make(map[string]struct{}),
		revoked:  make(map[string]struct{}),
	}

	if b.redis == nil {
		mini, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("authtest: miniredis: %w", err)
		}
		b.mini = mini
		b.lastTick = cfg.Now()
		b.redis = redis.NewClient(&redis.Options{Addr: mini.Addr()})
	}

	b.sessions = sessions.NewStore(b.redis, "as", cfg.SessionTTL)
	b.limiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: cfg.MaxLoginAttempts,
		Window:           cfg.RateWindow,
	})
	b.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Enabled:   true,
		Threshold: cfg.LockoutThreshold,
		Duration:  cfg.LockoutDuration,
		Now:       cfg.Now,
	})

	b.handler = logging.Middleware(b.logger)(b.routes())
	return b, nil
}

// Close releases the owned Redis, if any.
func (b *Backend) Close() error {
	if b.mini == nil {
		return nil
	}
	err := b.redis.Close()
	b.mini.Close()
	return err
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.tick()
	b.handler.ServeHTTP(w, r)
}

// tick advances the owned miniredis so key TTLs follow the configured clock.
func (b *Backend) tick() {
	if b.mini == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.cfg.Now()
	if d := now.Sub(b.lastTick); d > 0 {
		b.mini.FastForward(d)
		b.lastTick = now
	}
}

/* ==================================
   ========== CONTROLS ==============
   ================================== */

// AddUser registers an ACTIVE account.
func (b *Backend) AddUser(username, email, password, fullName string) (authapi.User, error) {
	hash, err := b.hasher.Hash(password)
	if err != nil {
		return authapi.User{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byName[normalize(username)]; ok {
		return authapi.User{}, fmt.Errorf("authtest: username %q taken", username)
	}
	if _, ok := b.byName[normalize(email)]; ok && email != "" {
		return authapi.User{}, fmt.Errorf("authtest: email %q taken", email)
	}

	id := b.ids.Generate().Int64()
	u := authapi.User{
		ID:        id,
		Email:     email,
		Username:  username,
		FullName:  fullName,
		Status:    authapi.StatusActive,
		CreatedAt: b.cfg.Now().UTC().Format(time.RFC3339),
	}
	b.users[id] = &userRecord{user: u, hash: hash}
	b.byName[normalize(username)] = id
	if email != "" {
		b.byName[normalize(email)] = id
	}
	return u, nil
}

// MustAddUser is AddUser that panics on error.
func (b *Backend) MustAddUser(username, email, password, fullName string) authapi.User {
	u, err := b.AddUser(username, email, password, fullName)
	if err != nil {
		panic(err)
	}
	return u
}

// SetUserStatus changes an account's status.
func (b *Backend) SetUserStatus(userID int64, status authapi.UserStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.users[userID]; ok {
		rec.user.Status = status
	}
}

// FailNext queues f as the response to the next request for path.
func (b *Backend) FailNext(path string, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[path] = append(b.failures[path], f)
}

// Lock locks userID until the given time.
func (b *Backend) Lock(ctx context.Context, userID int64, until time.Time) error {
	return b.lockout.Lock(ctx, idString(userID), until)
}

// ExpireAccessTokens makes every access token issued so far fail with 401.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for tok := range b.issued {
		b.revoked[tok] = struct{}{}
	}
	b.issued = make(map[string]struct{})
}

// RevokeSessions drops every session of userID, invalidating its refresh
// tokens.
func (b *Backend) RevokeSessions(ctx context.Context, userID int64) error {
	_, err := b.sessions.DeleteAllForUser(ctx, userID)
	return err
}

// Calls returns how many requests path has received.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// User returns the stored profile of userID.
func (b *Backend) User(userID int64) (authapi.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.users[userID]
	if !ok {
		return authapi.User{}, false
	}
	return rec.user, true
}

// AccessToken mints a valid access token for userID outside any session,
// for tests that need to seed a client.
func (b *Backend) AccessToken(userID int64) (string, error) {
	u, ok := b.User(userID)
	if !ok {
		return "", errors.New("authtest: unknown user")
	}
	return b.issueAccess(u, "")
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
