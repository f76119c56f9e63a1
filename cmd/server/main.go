package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dapr "github.com/dapr/go-sdk/client"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"newsletter/internal/app"
	"newsletter/internal/cache"
	"newsletter/internal/config"
	"newsletter/internal/database"
	"newsletter/internal/email"
	"newsletter/internal/logging"
	"newsletter/internal/metrics"
	"newsletter/internal/repository"
	"newsletter/internal/telemetry"
)

func main() {
	configPath := flag.String("c", "", "path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, os.Stdout)

	tp, err := telemetry.InitTracing(cfg.App.ServiceName, cfg.App.ServiceVersion, os.Stdout)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := telemetry.ShutdownTracing(context.Background(), tp); err != nil {
			logger.Errorf("Error shutting down tracer provider: %v", err)
		}
	}()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	db, err := database.Open(startupCtx, cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	applied, err := database.Migrate(startupCtx, db.DB)
	if err != nil {
		logger.Fatalf("Failed to migrate the database: %v", err)
	}
	logger.WithField("applied", applied).Info("Database migrations are up to date")

	subscriberCache, closeCache := newCache(cfg.Cache, tp, logger)
	defer closeCache()

	sender, closeSender, err := newEmailSender(cfg.Email, tp)
	if err != nil {
		logger.Fatalf("Failed to configure email delivery: %v", err)
	}
	defer closeSender()

	application := app.Build(&app.Config{
		ServiceName:    cfg.App.ServiceName,
		ServiceVersion: cfg.App.ServiceVersion,
		Addr:           cfg.App.Addr(),
		Logger:         logger,
		TracerProvider: tp,
		GinMode:        cfg.App.GinMode,
		RequestTimeout: cfg.App.RequestTimeout,
		Repository:     repository.NewPostgresSubscriberRepository(db, tp),
		Cache:          subscriberCache,
		CacheTTL:       cfg.Cache.TTL,
		EmailSender:    sender,
		Metrics:        metrics.New(),
	})

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func newCache(cfg config.Cache, tp trace.TracerProvider, logger *logging.ContextLogger) (cache.Cache, func()) {
	switch cfg.Driver {
	case config.CacheDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.WithError(err).Warn("Redis is not reachable, lookups will fall through to Postgres")
		}
		c := cache.NewRedisCache(client, tp)
		return c, func() { _ = c.Close() }
	case config.CacheDriverMemory:
		c := cache.NewInMemoryCache(tp, time.Minute)
		return c, func() { _ = c.Close() }
	default:
		return nil, func() {}
	}
}

func newEmailSender(cfg config.Email, tp trace.TracerProvider) (email.Sender, func(), error) {
	switch cfg.Driver {
	case config.EmailDriverPostmark:
		client, err := email.NewClient(cfg.BaseURL, cfg.Sender, cfg.Token, cfg.Timeout, tp)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case config.EmailDriverDapr:
		client, err := dapr.NewClientWithAddress(cfg.DaprAddress)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to dapr sidecar: %w", err)
		}
		return email.NewDaprSender(client, cfg.DaprBinding, cfg.Sender), client.Close, nil
	default:
		return nil, func() {}, nil
	}
}
