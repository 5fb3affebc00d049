package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/edge-cache/pkg/config"
	"github.com/Sternrassler/edge-cache/pkg/logging"
	"github.com/Sternrassler/edge-cache/pkg/metrics"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("edge-cache", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edge-cache: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	})

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start edge cache")
		os.Exit(1)
	}
	defer a.Close()

	metrics.Registry.MustRegister(a.counters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Edge cache stopped")
		a.Close()
		os.Exit(1)
	}
}
