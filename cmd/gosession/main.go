// Command gosession is a terminal front end for a goSession backend.
//
// Every input line counts as keyboard activity for the inactivity monitor.
// The refresh token lives in Redis when REDIS_ADDR (or -redis-addr) is set,
// so a later run with the same -scope resumes the session. With -sql-dsn (or
// GOSESSION_SQL_DSN) it lives in a PostgreSQL or SQLite table instead, scoped
// the same way. Otherwise it is kept in memory for the life of the process.
//
// Run:
//
//	go run ./examples/mock-backend &
//	go run ./cmd/gosession -api http://localhost:8080
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/inactivity"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/token"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		envFile     = flag.String("env", ".env", "dotenv file to load; missing files are ignored")
		apiURL      = flag.String("api", "", "backend base URL; overrides GOSESSION_API_URL")
		redisAddr   = flag.String("redis-addr", "", "redis address for the refresh token; overrides REDIS_ADDR")
		scope       = flag.String("scope", "", "redis or sql scope to resume; overrides GOSESSION_REDIS_SCOPE")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
		otelOn      = flag.Bool("otel", false, "publish metrics through OpenTelemetry; the otel command prints a collection")
		sqlDriver   = flag.String("sql-driver", "", "database/sql driver for -sql-dsn: postgres or sqlite3; overrides GOSESSION_SQL_DRIVER")
		sqlDSN      = flag.String("sql-dsn", "", "keep the refresh token in this database; overrides GOSESSION_SQL_DSN")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(2)
	}

	logger, err := logging.Init(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := goSession.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *scope != "" {
		cfg.Redis.Scope = *scope
	}

	sqlCfg := sqlConfig{
		Driver: envOr("GOSESSION_SQL_DRIVER", "postgres"),
		DSN:    os.Getenv("GOSESSION_SQL_DSN"),
	}
	if *sqlDriver != "" {
		sqlCfg.Driver = *sqlDriver
	}
	if *sqlDSN != "" {
		sqlCfg.DSN = *sqlDSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sqlCfg, logger, *metricsAddr, *otelOn); err != nil {
		logger.Error("gosession exited", zap.Error(err))
		os.Exit(1)
	}
}

type sqlConfig struct {
	Driver string
	DSN    string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, cfg goSession.Config, sqlCfg sqlConfig, logger *zap.Logger, metricsAddr string, otelOn bool) error {
	bus := &inactivity.Bus{}
	nav := &printNavigator{out: os.Stdout}

	b := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithNavigator(nav).
		WithActivitySource(bus)

	sqlScope := ""
	switch {
	case sqlCfg.DSN != "":
		db, err := sqlx.Open(sqlCfg.Driver, sqlCfg.DSN)
		if err != nil {
			return fmt.Errorf("open %s: %w", sqlCfg.Driver, err)
		}
		defer func() { _ = db.Close() }()
		storage := token.NewSQLStorage(db, token.WithSQLScope(cfg.Redis.Scope), token.WithSQLTTL(cfg.Redis.TTL))
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
		if n, err := storage.PurgeExpired(ctx); err != nil {
			logger.Warn("purging expired sessions failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("purged expired sessions", zap.Int64("rows", n))
		}
		sqlScope = storage.Scope()
		b.WithStorage(storage)
	case cfg.Redis.Addr != "":
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.Redis.Addr}})
		defer func() { _ = rdb.Close() }()
		b.WithRedis(rdb)
	}

	client, err := b.Build()
	if err != nil {
		return err
	}
	defer client.Close()

	if scope := client.RedisScope(); scope != "" {
		fmt.Printf("redis scope: %s (pass -scope %s to resume)\n", scope, scope)
	}
	if sqlScope != "" {
		fmt.Printf("sql scope: %s (pass -scope %s to resume)\n", sqlScope, sqlScope)
	}

	exporter := prometheus.NewPrometheusExporter(client)
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: exporter.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	var ov *otelView
	if otelOn {
		if ov, err = newOTelView(client); err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		defer func() { _ = ov.Close(context.Background()) }()
	}

	if err := client.CheckInitialAuthentication(ctx); err != nil {
		logger.Warn("initial authentication check failed", zap.Error(err))
	}

	sh := newShell(client, bus, nav, exporter, ov, os.Stdout, logger)
	defer sh.Close()
	return sh.run(ctx, os.Stdin)
}
