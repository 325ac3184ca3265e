// Package main provides the entry point for the session service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lexigame/session-service/internal/server"
	"github.com/lexigame/session-service/pkg/auth"
	"github.com/lexigame/session-service/pkg/config"
	"github.com/lexigame/session-service/pkg/database/migrate"
	"github.com/lexigame/session-service/pkg/health"
	"github.com/lexigame/session-service/pkg/report"
	redcache "github.com/lexigame/session-service/pkg/report/redis"
	"github.com/lexigame/session-service/pkg/session/postgres"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "config.yaml", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("session-service version %s\n", Version)
		return nil
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrate.Run(db); err != nil {
		return err
	}

	store := postgres.New(db)
	cache := newCache(ctx, cfg.Redis, log)
	reports := report.NewService(store, cache, log)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	checker := health.NewChecker()

	srv := server.New(cfg.Server, server.Deps{
		Store:    store,
		Reports:  reports,
		Verifier: verifier,
		Checker:  checker,
		Logger:   log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "address", cfg.Server.Address, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	checker.SetReady()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	checker.SetDraining()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// newCache builds the report cache. Redis being down at startup only
// costs the optimization: a configured backend is used regardless and
// every per-request failure degrades to a rebuild. Without a configured
// address the cache stays in-process.
func newCache(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) report.Cache {
	if cfg.Address == "" {
		log.Info("no redis address configured, using in-process report cache")
		return report.NewMemoryCache()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable at startup, report cache will degrade to miss", "error", err)
	}
	return redcache.New(rdb)
}
