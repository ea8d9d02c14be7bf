// Package main is the entry point for the arcade HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"arcade-backend/internal/auth"
	"arcade-backend/internal/config"
	"arcade-backend/internal/handler"
	"arcade-backend/internal/pkg/db"
	"arcade-backend/internal/pkg/retry"
	"arcade-backend/internal/pkg/telemetry"
	"arcade-backend/internal/repository"
	"arcade-backend/internal/reward"
	"arcade-backend/internal/server"
	"arcade-backend/internal/service"
	"arcade-backend/internal/shop"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	configureLogger(cfg.Log)

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	// Initialize database connection pool
	pools := db.NewPoolCache(nil)
	defer pools.Close()

	dbPool, err := pools.Get(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := dbPool.RegisterMetrics(); err != nil {
		log.Warn().Err(err).Msg("Failed to register pool metrics")
	}

	migrator := db.NewMigrator(dbPool.Pool)
	if cfg.Database.MigrateOnStart {
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
	}

	rules, err := reward.RulesFromConfig(cfg.Rewards)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid reward rules")
	}
	policy := retry.FromConfig(cfg.Retry)
	loc := cfg.Location()

	// Initialize repositories
	statsRepo := repository.NewStatsRepository(dbPool.Pool)
	legacyRepo := repository.NewLegacyRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	inventoryRepo := repository.NewInventoryRepository(dbPool.Pool)
	eventRepo := repository.NewEventRepository(dbPool.Pool)

	// Initialize services
	ledger := service.NewLedgerWriter(dbPool.Pool, statsRepo, txRepo, migrator, policy)
	reconciler := service.NewStatsReconciler(
		service.NewCanonicalSource(statsRepo, policy),
		service.NewLegacySource(legacyRepo, policy),
	)
	gameService := service.NewGameService(reward.NewCalculator(rules), ledger, reconciler)
	shopService := service.NewShopService(shop.DefaultCatalog(), ledger, txRepo, reconciler, inventoryRepo, policy)
	rewardService := service.NewRewardService(ledger, reconciler, cfg.Daily, loc)
	rankingService := service.NewRankingService(statsRepo, txRepo, policy, loc)
	analyticsService := service.NewAnalyticsService(eventRepo, migrator, policy).
		WithRewards(ledger, reconciler, service.EventRewardsFromConfig(cfg.Rewards.Events))

	log.Info().
		Strs("games", rules.Games()).
		Int("shop_items", len(shopService.Items())).
		Msg("Services initialized")

	srv := server.New(&server.Dependencies{
		Config:   cfg.Server,
		Verifier: auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Health:   dbPool,
		Account:  handler.NewAccountHandler(reconciler, service.NewHistoryService(txRepo, policy)),
		Game:     handler.NewGameHandler(gameService),
		Shop:     handler.NewShopHandler(shopService),
		Reward:   handler.NewRewardHandler(rewardService),
		Ranking:  handler.NewRankingHandler(rankingService),
		Events:   handler.NewEventHandler(analyticsService),
	})

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Telemetry shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

func configureLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
