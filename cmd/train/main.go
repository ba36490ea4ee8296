package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tunogya/augur/internal/di"
	"github.com/tunogya/augur/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults only when empty)")
	tickers := flag.String("tickers", "", "comma-separated tickers, overrides the config")
	models := flag.String("models", "", "comma-separated model types, overrides the config")
	flag.Parse()

	if err := run(*configPath, *tickers, *models); err != nil {
		fmt.Fprintf(os.Stderr, "train: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, tickers, models string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if tickers != "" {
		cfg.Tickers = config.SplitList(tickers)
	}
	if models != "" {
		cfg.Model.Types = config.SplitList(models)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Tickers) == 0 {
		return errors.New("no tickers configured, pass -tickers or set tickers in the config")
	}
	types, err := cfg.Model.ModelTypes()
	if err != nil {
		return err
	}

	runner, cleanup, err := di.InitializeRunner(cfg)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := runner.RunBatch(ctx, cfg.Tickers, types)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	if report.Completed == 0 {
		return errors.New("no run completed")
	}
	return nil
}
