// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"resetd/internal/config"
	"resetd/internal/interfaces"
	"resetd/internal/logger"
	"resetd/internal/reset"
	"resetd/internal/routes"
	"resetd/internal/security"
	"resetd/internal/services"
)

const (
	demoEmail    = "user@example.com"
	demoPassword = "SuperSecret123!"
)

func main() {
	log := logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("failed to open account store")
	}
	defer closeStore()

	notifier, closeNotifier, err := openNotifier(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("notifier", cfg.Notifier).Msg("failed to set up reset delivery")
	}
	dispatcher := services.NewDispatcher(services.DispatcherConfig{
		BufferSize:  cfg.NotifyBuffer,
		DropIfFull:  cfg.NotifyDropIfFull,
		SendTimeout: cfg.NotifySendTimeout,
	}, notifier, log)

	manager := reset.NewManager(
		store,
		security.NewBcryptHasher(cfg.BcryptCost),
		dispatcher,
		reset.Config{TTL: cfg.ResetTokenTTL, LinkBase: cfg.ResetLinkBase},
		reset.WithLogger(log),
	)

	if cfg.SeedDemoAccount {
		if _, err := manager.Register(ctx, demoEmail, demoPassword); err != nil && !errors.Is(err, interfaces.ErrAccountExists) {
			log.Fatal().Err(err).Msg("failed to seed demo account")
		}
		log.Info().Str("email", demoEmail).Msg("demo account ready")
	}

	if purger, ok := store.(interfaces.ExpiredResetPurger); ok && cfg.ResetSweepInterval > 0 {
		go reset.NewSweeper(purger, cfg.ResetSweepInterval, log).Run(ctx)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.SetupRoutes(cfg, manager, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Str("notifier", cfg.Notifier).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// Give in-flight requests 5 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	dispatcher.Close()
	closeNotifier()
	if dropped := dispatcher.Dropped(); dropped > 0 {
		log.Warn().Uint64("dropped", dropped).Msg("reset notices dropped")
	}

	log.Info().Msg("server exiting")
}
