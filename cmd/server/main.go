package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/config"
	"github.com/stemsi/testlink-backend/internal/database"
	"github.com/stemsi/testlink-backend/internal/handler"
	"github.com/stemsi/testlink-backend/internal/logger"
	"github.com/stemsi/testlink-backend/internal/middleware"
	"github.com/stemsi/testlink-backend/internal/repository"
	"github.com/stemsi/testlink-backend/internal/router"
	"github.com/stemsi/testlink-backend/internal/service"
	"github.com/stemsi/testlink-backend/internal/validator"
	"github.com/stemsi/testlink-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting TestLink Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	testRepo := repository.NewTestRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	paperCache := repository.NewPaperCache(rdb, cfg.PaperCacheTTL)
	sessionCache := repository.NewSessionCache(rdb, cfg.SessionCacheTTL)

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.AttemptTokenGrace)
	testService := service.NewTestService(testRepo, questionRepo, attemptRepo, paperCache, log)
	questionService := service.NewQuestionService(testRepo, questionRepo, testService, cfg.MaxUploadBytes, log)
	attemptService := service.NewAttemptService(testRepo, questionRepo, attemptRepo, sessionCache, tokenService, cfg.AttemptTokenGrace, log)
	exportService := service.NewExportService(testRepo, questionRepo, attemptRepo, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	deps := map[string]handler.Pinger{
		"postgres": handler.PingFunc(pool.Ping),
		"redis":    handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	}
	handlers := &router.Handlers{
		Test:     handler.NewTestHandler(testService, attemptService, exportService),
		Question: handler.NewQuestionHandler(questionService),
		Attempt:  handler.NewAttemptHandler(testService, attemptService),
		WS:       handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		System:   handler.NewSystemHandler(deps, attemptService.Active, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	expiryWorker := worker.NewExpiryWorker(attemptService, worker.NewRedisLocker(rdb), cfg.ExpirySweepSchedule, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := expiryWorker.Start(workerCtx); err != nil {
			log.Error().Err(err).Msg("ExpiryWorker failed to start")
		}
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokenService, middleware.NewRedisCounter(rdb), handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop countdowns and close event streams so WebSocket handlers
	//    return. Open attempts resume on the next start or are closed by
	//    the expiry sweep.
	attemptService.Shutdown()

	// 2. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Stop the expiry worker and wait for a running sweep.
	workerCancel()
	<-workerDone

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
