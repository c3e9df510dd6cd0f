// Command league-fetcher fetches the classic league memberships of every FPL
// entry in the input file and writes them as one flat JSON array.
//
// Usage:
//
//	league-fetcher [config.yaml]
//
// The config path may also be given through FPL_CONFIG. Every option can be
// overridden with an FPL_* environment variable.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/fpl-league-fetcher/pkg/config"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/logging"
	"github.com/Sternrassler/fpl-league-fetcher/pkg/run"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:], os.Stderr))
}

// execute runs the fetcher and returns the process exit code.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	configPath := getEnv("FPL_CONFIG", "")
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger := logging.Setup(logging.Config{Level: logging.LevelError, Output: stderr})
		logger.Error().Err(err).Str("config", configPath).Msg("Failed to load config")
		return 1
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: stderr,
	})

	coordinator, err := run.New(*cfg, run.WithLogger(logger.With().Str("component", "run").Logger()))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create run")
		return 1
	}

	if _, err := coordinator.Run(ctx); err != nil {
		return 1
	}
	return 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
