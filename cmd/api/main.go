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

	"pocket-ledger/config"
	apidocs "pocket-ledger/docs/api"
	httpHandler "pocket-ledger/internal/adapter/http/handler"
	"pocket-ledger/internal/adapter/storage/memory"
	pgStorage "pocket-ledger/internal/adapter/storage/postgres"
	redisStorage "pocket-ledger/internal/adapter/storage/redis"
	"pocket-ledger/internal/core/ports"
	"pocket-ledger/internal/metrics"
	"pocket-ledger/internal/service"
	"pocket-ledger/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	metrics.Init()

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("lock_backend", cfg.Ledger.LockBackend).
		Msg("Starting Pocket Ledger")

	ctx := context.Background()

	var (
		walletRepo ports.WalletRepository
		entryRepo  ports.LedgerEntryRepository
		auditRepo  ports.AuditRepository
		checkers   []ports.HealthChecker
	)

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		log.Info().Msg("PostgreSQL connected")

		if cfg.Database.AutoMigrate {
			if err := pgStorage.RunMigrations(ctx, pool, log); err != nil {
				log.Fatal().Err(err).Msg("Failed to run migrations")
			}
		}

		walletRepo = pgStorage.NewWalletRepo(pool)
		entryRepo = pgStorage.NewLedgerEntryRepo(pool)
		auditRepo = pgStorage.NewAuditRepo(pool)
		checkers = append(checkers, pgStorage.NewSchemaCheck(pool))
	case config.DriverMemory:
		store := memory.NewStore()
		walletRepo = store
		entryRepo = store
		auditRepo = store.AuditRepository()
		checkers = append(checkers, ports.CheckFunc{Dependency: "memory", Fn: store.Ping})
		log.Warn().Msg("Using in-memory storage; balances are lost on restart")
	}

	// Initialize Redis client (optional)
	var (
		rdb            *goredis.Client
		idempCache     ports.IdempotencyCache
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		log.Info().Msg("Redis connected")

		idempCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, ports.CheckFunc{
			Dependency: "redis",
			Fn:         func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	var locker ports.UserLocker
	switch cfg.Ledger.LockBackend {
	case config.LockLocal:
		locker = memory.NewKeyedLocker()
	case config.LockRedis:
		locker = redisStorage.NewUserLock(rdb, cfg.Ledger.LockTTL, cfg.Ledger.LockWait)
	}

	// Initialize services
	ledgerSvc := service.NewLedgerService(walletRepo, entryRepo, idempCache, locker, service.LedgerOptions{
		EnforceNonNegative: cfg.Ledger.EnforceNonNegative,
		MaxRetries:         cfg.Ledger.MaxRetries,
		BackoffInitial:     cfg.Ledger.BackoffInitial,
		BackoffMax:         cfg.Ledger.BackoffMax,
		IdempotencyTTL:     cfg.Ledger.IdempotencyTTL,
		LockBackend:        cfg.Ledger.LockBackend,
	}, log)

	var tokenSvc ports.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	} else {
		log.Warn().Msg("auth.jwt_secret is empty; bearer identity checks are disabled")
	}
	if cfg.Auth.APIKey == "" {
		log.Warn().Msg("auth.api_key is empty; X-API-Key checks are disabled")
	}

	var auditSvc ports.AuditService
	var stopAudit func()
	if cfg.Audit.Enabled {
		svc := service.NewAuditService(auditRepo, cfg.Audit.Workers, log)
		auditSvc = svc
		stopAudit = svc.Stop
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		APIKey:         cfg.Auth.APIKey,
		RateLimitStore: rateLimitStore,
		HealthCheckers: checkers,
		APIDoc:         apidocs.OpenAPI,
		AuditSvc:       auditSvc,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpHandler.WithCORS(router, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if stopAudit != nil {
		stopAudit()
	}

	log.Info().Msg("Server exited")
}
