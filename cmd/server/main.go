package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/moonrise/moonrise/internal/api/http"
	"github.com/moonrise/moonrise/internal/application/orchestrator"
	"github.com/moonrise/moonrise/internal/application/scheduler"
	"github.com/moonrise/moonrise/internal/config"
	"github.com/moonrise/moonrise/internal/domain/archive"
	"github.com/moonrise/moonrise/internal/domain/death"
	"github.com/moonrise/moonrise/internal/domain/phase"
	"github.com/moonrise/moonrise/internal/infrastructure/memory"
	"github.com/moonrise/moonrise/internal/infrastructure/narrator"
	"github.com/moonrise/moonrise/internal/infrastructure/postgres"
	"github.com/moonrise/moonrise/internal/infrastructure/sse"
	"github.com/moonrise/moonrise/internal/infrastructure/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rules, err := config.NewRulesHolder(cfg.RulesFile)
	if err != nil {
		log.Fatalf("rules error: %v", err)
	}
	if err := rules.Watch(ctx, logger); err != nil {
		logger.Warn().Err(err).Msg("rules hot reload disabled")
	}

	// archive
	var archiveRepo archive.Repository
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		archiveRepo = postgres.NewArchiveRepository(pool)
	} else {
		logger.Info().Msg("DATABASE_URL not set, game archive disabled")
	}

	// narrator
	var storyteller orchestrator.Narrator
	st, err := narrator.New(cfg.Narrator, logger)
	switch {
	case errors.Is(err, narrator.ErrDisabled):
	case err != nil:
		log.Fatalf("narrator error: %v", err)
	default:
		storyteller = st
	}

	// infrastructure
	hub := sse.NewHub(logger)
	store := memory.NewStore(cfg.SessionRetention, logger)
	store.OnEvict(hub.DropSession)
	timers := scheduler.New(logger)

	gameSvc := orchestrator.NewService(
		store,
		phase.NewMachine(),
		death.NewEngine(),
		timers,
		hub,
		rules,
		storyteller,
		archiveRepo,
		logger,
	)

	// API server
	wsHandler := ws.NewHandler(gameSvc, hub, cfg.AllowedOrigins, logger)
	apiServer := httpapi.NewServer(gameSvc, archiveRepo, hub, wsHandler, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	go store.Run(ctx, cfg.GCInterval)

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	timers.Stop()
	hub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	gameSvc.Wait()
	stop()
}
