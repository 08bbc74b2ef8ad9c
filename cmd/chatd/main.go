package main

import (
	"context"
	"errors"
	"fmt"
	"gigchat/auth"
	"gigchat/domain/event"
	"gigchat/infrastructure/http/server"
	"gigchat/internal"
	"gigchat/ratelimit"
	"gigchat/repositories"
	"gigchat/runtime"
	"gigchat/runtime/workers"
	"gigchat/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatd terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so that deferred cleanups execute before exit.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	keySetURL, _ := config.KeySetURL()
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	users, err := repositories.NewUserRepository(db)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = users.Close() }()
	conversations, err := repositories.NewConversationRepository(db, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = conversations.Close() }()
	resetTokens := repositories.NewResetTokenRepository(db)

	// 4. Authentication
	keySet := auth.NewKeySet(logger, keySetURL,
		auth.WithKeySetTTL(config.JWKSTTL),
		auth.WithFetchTimeout(config.JWKSFetchTimeout),
		auth.WithMinRefreshInterval(config.JWKSMinRefreshInterval),
	)
	verifier := auth.NewTokenVerifier(keySet, auth.WithClockSkew(config.ClockSkew))
	gate := auth.NewGate(logger, verifier)

	// 5. Rate limiting
	store, closeStore, err := buildBucketStore(ctx, config)
	if err != nil {
		return exitRuntime, err
	}
	defer closeStore()
	limiter := ratelimit.NewLimiter(logger, store, config.ForgotLimitCount, config.ForgotLimitWindow)

	// 6. Services & live delivery
	events := make(chan event.DomainEvent, config.EventBufferSize)
	registry := runtime.NewRegistry()
	chatService := services.NewChatService(logger, conversations, events)
	resetService := services.NewPasswordResetService(logger, users, resetTokens, limiter,
		services.NewLogMailer(logger, config.ResetURL), config.ResetTokenTTL)

	sup := workers.NewSupervisor(logger, workers.WithRestartInterval(config.RestartInterval))
	sup.Add(
		workers.NewEventFanout(logger, events, registry, config.SinkTimeout),
		workers.NewKeySetRefresher(logger, keySet, keySet.TTL()),
		workers.NewResetTokenPurger(logger, resetService, config.ResetTokenPurgePeriod),
	)
	if config.RateLimitBackend == internal.RateLimitMemory {
		sup.Add(workers.NewBucketSweeper(logger, limiter, config.RateLimitSweepInterval))
	}
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		sup.Run(ctx)
	}()

	// 7. HTTP Server
	if !logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.NewServer(logger, chatService, resetService, users, gate, registry, config.ConnectionBufferSize).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC(), "jwks", keySetURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code, runErr := exitOK, error(nil)
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful Shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	stop()
	<-supervisorDone
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// buildBucketStore returns the configured limiter store and its cleanup.
func buildBucketStore(ctx context.Context, config internal.Config) (ratelimit.IBucketStore, func(), error) {
	if config.RateLimitBackend != internal.RateLimitRedis {
		store := ratelimit.NewMemoryStore(
			ratelimit.WithShards(config.RateLimitShards),
			ratelimit.WithMaxKeys(config.RateLimitMaxKeys),
		)
		return store, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis unreachable at %s: %w", config.RedisAddr, err)
	}
	return ratelimit.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}
