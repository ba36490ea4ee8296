package main

import (
	"context"
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
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	app.Log.Info().
		Int("port", cfg.Server.Port).
		Str("data_source", cfg.Data.Source).
		Str("save_dir", cfg.Run.SaveDir).
		Msg("starting predict service")
	app.Server.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := app.Server.Stop(context.Background()); err != nil {
		app.Log.Error().Err(err).Msg("shutdown failed")
	}
}
