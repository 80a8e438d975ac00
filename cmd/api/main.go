package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"hostbill/internal/infrastructure"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, logger)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	logger.Info().Msg("hostbill is running")

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}

	logger.Info().Msg("shutdown complete")
}
