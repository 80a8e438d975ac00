package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"hostbill/internal/config"
	"hostbill/internal/repository"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Usage: migrate [command]")
		fmt.Println("Commands: up, down, status, redo")
		os.Exit(1)
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger.Info().Str("command", command).Msg("starting migration")

	if err := repository.RunMigrations(ctx, cfg.DSN(), command); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	logger.Info().Msg("migration finished")
}
