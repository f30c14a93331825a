package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openagora/agora/database/connect"
	"github.com/openagora/agora/internal/config"
	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/internal/server"
	"github.com/openagora/agora/internal/service/authz"
	"github.com/openagora/agora/internal/service/reviewable"
	"github.com/openagora/agora/pkg/events"
	"github.com/openagora/agora/pkg/logger"
	"github.com/openagora/agora/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		panic(err)
	}

	log := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := connect.ConnectPostgres(ctx, log, cfg)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	var cache *redis.Cache
	if cfg.RedisAddr != "" {
		opts := redis.DefaultOptions()
		opts.Addr = cfg.RedisAddr
		opts.Password = cfg.RedisPassword
		opts.DB = cfg.RedisDB
		opts.PoolSize = cfg.RedisPoolSize
		opts.MinIdleConns = cfg.RedisMinIdleConns
		opts.MaxRetries = cfg.RedisMaxRetries
		cache, err = redis.NewCache(opts, log)
		if err != nil {
			log.Fatal("failed to create redis cache", zap.Error(err))
		}
		defer func() { _ = cache.Close() }()
		if err := cache.Ping(ctx); err != nil {
			log.Warn("redis unreachable, continuing without cache", zap.Error(err))
			cache = nil
		}
	}

	var emitter events.Emitter = events.NopEmitter{}
	if cfg.EventSinkURL != "" {
		emitter = events.NewWebhookEmitter(cfg.EventSinkURL, log)
	}

	targets := repository.NewTargetRegistry()
	targets.Register(repository.TargetTypePost, repository.NewSQLTargetStore(db, log, repository.TargetTypePost))
	targets.Register(repository.TargetTypeTopic, repository.NewSQLTargetStore(db, log, repository.TargetTypeTopic))
	targets.Register(repository.TargetTypeUser, repository.NewSQLTargetStore(db, log, repository.TargetTypeUser))

	catalog := reviewable.NewCatalog()
	reviewable.RegisterDefaults(catalog)

	store := reviewable.NewPostgresStore(db, log, targets)
	evaluator := authz.NewEvaluator(log)
	svc := reviewable.NewService(store, catalog, evaluator, targets, emitter, cache, log)

	reconciler := reviewable.NewReconciler(store, log)
	if err := reconciler.Start(cfg.ReconcileSchedule); err != nil {
		log.Fatal("failed to start score reconciler", zap.Error(err))
	}
	defer reconciler.Stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           server.NewServer(svc, cfg.JWTSecret, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("review engine listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
}
