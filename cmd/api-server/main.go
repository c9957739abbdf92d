package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/api"
	"github.com/hackgods/opd-token-allocation/internal/config"
	"github.com/hackgods/opd-token-allocation/internal/db"
	"github.com/hackgods/opd-token-allocation/internal/journal"
	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/metrics"
	redisclient "github.com/hackgods/opd-token-allocation/internal/redis"
	"github.com/hackgods/opd-token-allocation/internal/roster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api-server stopped")
		os.Exit(1)
	}
}

// run owns every resource it opens, so deferred closes happen on both the
// error and the shutdown path.
func run(cfg config.Config, logger zerolog.Logger) error {
	logger.Info().
		Str("http_port", cfg.HTTPPort).
		Str("emergency_overflow", string(cfg.Overflow)).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	engine := allocation.NewEngine(
		allocation.WithOverflowPolicy(cfg.Overflow),
		allocation.WithLogger(logger.With().Str("component", "engine").Logger()),
		allocation.WithRecorder(m),
	)

	ros, err := loadRoster(cfg.RosterFile)
	if err != nil {
		return fmt.Errorf("load roster %q: %w", cfg.RosterFile, err)
	}
	if err := ros.Apply(engine); err != nil {
		return fmt.Errorf("apply roster: %w", err)
	}
	logger.Info().Int("doctors", len(ros.Doctors)).Int("slots", ros.SlotCount()).Msg("roster loaded")

	health := api.NewHealthHandler(cfg.Env, cfg.Version)
	var sinks []journal.Sink

	// Postgres journal
	if cfg.PostgresDSN != "" {
		pgPool, err := connectJournalPostgres(rootCtx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		sinks = append(sinks, journal.NewPgSink(pgPool))
		health.WithCheck("postgres", pgPool.Ping)
	}

	// Redis journal
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer closeRedis(rdb, logger)
		logger.Info().Str("channel", cfg.EventsChannel).Msg("connected to Redis")

		sinks = append(sinks, journal.NewRedisSink(rdb, cfg.EventsChannel))
		health.WithCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	j := journal.New(logger.With().Str("component", "journal").Logger(), sinks...)
	if !j.Enabled() {
		logger.Warn().Msg("no journal backend configured, token events are not recorded")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Engine:         engine,
			Journal:        j,
			Metrics:        m,
			Health:         health,
			Logger:         logger,
			Env:            cfg.Env,
			Version:        cfg.Version,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-rootCtx.Done():
	case serveErr = <-errCh:
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func loadRoster(path string) (roster.Roster, error) {
	if path == "" {
		return roster.Default(), nil
	}
	return roster.LoadFile(path)
}

func connectJournalPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, dsn)
	if err != nil {
		return nil, err
	}
	if err := journal.NewPgSink(pool).EnsureSchema(pgCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func closeRedis(rdb *redis.Client, logger zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing redis")
	}
}
