package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/catalog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/delivery"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/submission"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

const (
	janitorInterval = time.Minute
	eventSinkBuffer = 4096
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
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load proctoring policy")
	}
	log.Info().
		Int("tab_switch_limit", policy.TabSwitchLimit).
		Bool("fullscreen_required", policy.FullscreenRequired).
		Bool("enforce_focus_ratio", policy.EnforceFocusRatio).
		Msg("Proctoring policy loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Services ──────────────────────────────────────────
	catalogService := catalog.NewService(
		catalog.NewRepository(pool),
		catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		log,
	)
	consumer := delivery.NewRedisConsumer(rdb, cfg.SessionRetention, log)
	sink := delivery.NewRedisEventSink(rdb, eventSinkBuffer, log)
	proctor := service.NewProctorService(service.ProctorDeps{
		Catalog:   catalogService,
		Consumer:  consumer,
		Reports:   consumer,
		Sink:      sink,
		Signer:    submission.NewSigner(cfg.ReportSigningSecret),
		Policy:    policy,
		Retention: cfg.SessionRetention,
		Log:       log,
	})

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(proctor, cfg.CatalogURL, log),
		WS:      handler.NewWSHandler(proctor, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(rdb, log),
		System:  handler.NewSystemHandler(pool, rdb, proctor, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	sinkDone := make(chan struct{})
	go func() { defer close(sinkDone); sink.Run(sinkCtx) }()

	relay := worker.NewEventRelay(rdb, log)
	createLimiter := middleware.NewRateLimiter(cfg.SessionRateLimit, time.Minute)

	workers.Add(3)
	go func() { defer workers.Done(); relay.Start(workerCtx) }()
	go func() { defer workers.Done(); proctor.RunJanitor(workerCtx, janitorInterval) }()
	go func() { defer workers.Done(); createLimiter.RunCleanup(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every quiz into Redis before accepting traffic.
	if err := catalogService.Prewarm(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, createLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Stop session loops, flush the event sink, then let the relay
	// flush what it holds.
	proctor.Shutdown()
	sinkCancel()
	<-sinkDone
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
