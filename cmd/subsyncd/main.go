// Command subsyncd runs the subscription sync engine as a standalone HTTP
// server. Most deployments embed the engine instead (see pkg/subsync).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tidybook/subsync/internal/config"
	"github.com/tidybook/subsync/internal/logger"
	"github.com/tidybook/subsync/pkg/subsync"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (optional, env vars override)")
	flag.Parse()

	// .env is a development convenience; absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "subsyncd",
		Environment: cfg.Logging.Environment,
	})

	app, err := subsync.NewApp(cfg)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("assemble engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
		Handler:      app.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("store", cfg.Store.Backend).
			Str("cache", cfg.Cache.Backend).
			Msg("server starting")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error().Err(err).Msg("http shutdown")
	}
	if err := app.Close(); err != nil {
		appLogger.Error().Err(err).Msg("engine shutdown")
	}
	appLogger.Info().Msg("bye")
}
