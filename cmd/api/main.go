package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-guestlist/internal/application/notification"
	"github.com/go-guestlist/internal/config"
	"github.com/go-guestlist/internal/infrastructure/changefeed"
	"github.com/go-guestlist/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-guestlist/internal/infrastructure/jwt"
	"github.com/go-guestlist/internal/infrastructure/redisx"
	s3infra "github.com/go-guestlist/internal/infrastructure/s3"
	"github.com/go-guestlist/internal/infrastructure/sns"
	"github.com/go-guestlist/internal/pkg/telemetry"
	transporthttp "github.com/go-guestlist/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx := context.Background()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		fatal(logger, "dynamo client", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	// Redis (optional: without it rosters load once and never refresh).
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		if c, err := redisx.NewClient(ctx, cfg.RedisURL); err == nil {
			redisClient = c
			defer c.Close()
		} else {
			logger.Warn("redis not available", "err", err)
		}
	}

	// JWT verifier (optional, graceful fallback if the key is missing).
	var verifier *jwtinfra.Verifier
	if v, err := jwtinfra.NewVerifier(cfg.JWTPublicKeyPath); err == nil {
		verifier = v
	} else {
		logger.Warn("JWT verifier not available", "err", err)
	}

	// S3 store for guestlist exports.
	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		fatal(logger, "s3 client", err)
	}
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SNS push publisher (optional, graceful fallback).
	var push sns.PushPublisher
	if p, err := sns.NewPublisher(ctx, cfg); err == nil {
		push = p
	} else {
		logger.Warn("SNS push not available", "err", err)
	}

	signals := telemetry.NewLogSink(logger, 256)
	defer signals.Close()

	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications)
	sender := notification.NewSender(notification.SenderDeps{
		Store:   notificationRepo,
		Push:    push,
		Changes: changefeed.NewPublisher(redisClient, logger),
		Logger:  logger,
	})

	deps := &transporthttp.Deps{
		GuestRepo:        dynamo.NewGuestRepo(dynamoClient, cfg.DynamoTables.Guests),
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		EventRepo:        dynamo.NewEventRepo(dynamoClient, cfg.DynamoTables.Events),
		AccessRepo:       dynamo.NewAccessRepo(dynamoClient, cfg.DynamoTables.AccessibleEvents),
		UniversityRepo:   dynamo.NewUniversityRepo(dynamoClient, cfg.DynamoTables.Universities),
		NotificationRepo: notificationRepo,
		WatermarkRepo:    dynamo.NewWatermarkRepo(dynamoClient, cfg.DynamoTables.Watermarks),
		S3Store:          s3Store,
		Redis:            redisClient,
		Once:             redisx.NewOnceGuard(redisClient, "guestlist:notified:", cfg.NotifyDedupeTTL),
		Sender:           sender,
		Verifier:         verifier,
		Signals:          signals,
		Logger:           logger,
	}

	router := transporthttp.NewRouter(cfg, deps)

	// No WriteTimeout: roster streams are long-lived websockets.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "err", err)
	}
	// Let queued notifications finish before exiting.
	sender.Wait()
	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
