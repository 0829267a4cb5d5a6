package goSession

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/inactivity"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/observable"
	"github.com/MrEthical07/goSession/token"
	"github.com/MrEthical07/goSession/transport"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a Client. A Builder is single-use.
type Builder struct {
	config     Config
	storage    token.Storage
	redis      redis.UniversalClient
	navigator  Navigator
	logger     *zap.Logger
	clock      clockwork.Clock
	source     inactivity.Source
	auditSink  AuditSink
	httpClient *http.Client

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the refresh-token storage. It takes precedence over
// WithRedis.
func (b *Builder) WithStorage(s token.Storage) *Builder {
	b.storage = s
	return b
}

// WithRedis stores the refresh token in Redis, scoped per Config.Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces the clock driving inactivity timers and expiry checks.
func (b *Builder) WithClock(c clockwork.Clock) *Builder {
	b.clock = c
	return b
}

// WithActivitySource sets where user activity is read from. Without it the
// Client owns an inactivity.Bus reachable through Client.Activity.
func (b *Builder) WithActivitySource(src inactivity.Source) *Builder {
	b.source = src
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPClient sets the base client whose Transport, Jar and CheckRedirect
// the session client wraps.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client. Build does
// no network I/O; call Client.CheckInitialAuthentication to restore a
// session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gosession")

	clock := b.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	navigator := b.navigator
	if navigator == nil {
		navigator = noopNavigator{}
	}

	storage := b.storage
	if storage == nil && b.redis != nil {
		storage = token.NewRedisStorage(b.redis,
			token.WithPrefix(cfg.Redis.Prefix),
			token.WithScope(cfg.Redis.Scope),
			token.WithTTL(cfg.Redis.TTL),
		)
	}

	source := b.source
	if source == nil {
		source = &inactivity.Bus{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:           cfg,
		logger:        logger,
		clock:         clock,
		navigator:     navigator,
		tokens:        token.NewStore(storage, cfg.Token.RefreshKey),
		source:        source,
		metrics:       NewMetrics(cfg.Metrics),
		audit:         internalaudit.NewDispatcher(internalaudit.Config(cfg.Audit), b.auditSink),
		authenticated: observable.NewValue(false),
		user:          observable.NewValue[*User](nil),
		ctx:           ctx,
		cancel:        cancel,
	}
	if rs, ok := storage.(*token.RedisStorage); ok {
		c.redisScope = rs.Scope()
	}

	var base http.Client
	if b.httpClient != nil {
		base = *b.httpClient
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c.http = &http.Client{
		Transport: transport.Chain(rt,
			transport.BearerTransport{
				Tokens:       c.tokens,
				Refresher:    sessionRefresher{c: c},
				ExpiryBuffer: cfg.Token.ExpirationBuffer,
				Now:          clock.Now,
				Logger:       logger.Named("transport"),
			},
			transport.NormalizeTransport{Logger: logger.Named("transport")},
		),
		Jar:           base.Jar,
		CheckRedirect: base.CheckRedirect,
		Timeout:       cfg.API.Timeout,
	}
	c.api = authapi.New(cfg.API.BaseURL, c.http)

	c.monitor = inactivity.New(inactivity.Config{
		Timeout:        cfg.Inactivity.Timeout,
		DebounceWindow: cfg.Inactivity.DebounceWindow,
	}, source, inactivity.WithClock(clock), inactivity.WithLogger(logger.Named("inactivity")))
	c.startInactivityListener()

	b.built = true

	logger.Debug("session client built",
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("inactivity", cfg.Inactivity.Enabled),
		zap.Duration("expiry_buffer", cfg.Token.ExpirationBuffer),
		zap.Bool("redis", c.redisScope != ""),
	)
	return c, nil
}
