package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/database"
	"github.com/aptiva/aptiva-backend/internal/external"
	"github.com/aptiva/aptiva-backend/internal/handler"
	"github.com/aptiva/aptiva-backend/internal/logger"
	"github.com/aptiva/aptiva-backend/internal/repository"
	"github.com/aptiva/aptiva-backend/internal/router"
	"github.com/aptiva/aptiva-backend/internal/service"
	"github.com/aptiva/aptiva-backend/internal/validator"
	"github.com/aptiva/aptiva-backend/internal/worker"
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
		Msg("Starting Aptiva Backend")

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
	questionRepo := repository.NewQuestionRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	assignmentRepo := repository.NewAssignmentRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── External Collaborators ───────────────────────────────────────
	audioStore := external.NewStaticAudioStore(cfg.AudioBaseURL)
	transcriber := external.NewHTTPTranscriber(cfg.TranscriberURL, cfg.ExternalTimeout)
	codeRunner := external.NewHTTPCodeRunner(cfg.CodeRunnerURL, cfg.ExternalTimeout)
	notifier := external.NewRedisNotifier(rdb, config.WorkerKey.NotifyEventsQueue, config.CacheKey.TestMonitorChannel, log)

	var dispatcher external.Dispatcher
	if cfg.NotifyWebhook != "" {
		dispatcher = external.NewWebhookDispatcher(cfg.NotifyWebhook, cfg.ExternalTimeout)
	} else {
		dispatcher = external.NewLogDispatcher(log)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	questionService := service.NewQuestionService(questionRepo)
	tracker := service.NewUsageTracker(questionRepo, log)
	allocService := service.NewAllocationService(tracker, log)
	assignmentService := service.NewAssignmentService(assignmentRepo, cfg, log)
	attemptService := service.NewAttemptService(attemptRepo, assignmentRepo, rdb, audioStore, notifier, log)
	gradingService := service.NewGradingService(attemptRepo, assignmentRepo, transcriber, codeRunner, audioStore, notifier, cfg.ExternalTimeout, log)
	testService := service.NewTestService(testRepo, attemptRepo, allocService, assignmentService, attemptService, cfg, log)
	audioService := service.NewAudioService(cfg)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Question: handler.NewQuestionHandler(questionService),
		Test:     handler.NewTestHandler(testService),
		Portal:   handler.NewPortalHandler(testService, attemptService, gradingService),
		Audio:    handler.NewAudioHandler(audioService),
		WS:       handler.NewWSHandler(rdb, testService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(pool, rdb, log)
	notifyWorker := worker.NewNotifyWorker(rdb, dispatcher, log)

	go autosaveWorker.Start(workerCtx)
	go notifyWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

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

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
