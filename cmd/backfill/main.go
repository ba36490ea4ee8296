package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/logger"
	"github.com/tunogya/augur/pkg/store/duckdb"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults only when empty)")
	csvDir := flag.String("csv-dir", "", "directory of {TICKER}.csv files, overrides data.csv_dir")
	tickers := flag.String("tickers", "", "comma-separated tickers; every CSV in the directory when empty")
	duckPath := flag.String("duckdb", "", "DuckDB file path, overrides store.duckdb_path")
	flag.Parse()

	if err := run(*configPath, *csvDir, *tickers, *duckPath); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, csvDir, tickerList, duckPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if csvDir != "" {
		cfg.Data.CSVDir = csvDir
	}
	if duckPath != "" {
		cfg.Store.DuckDBPath = duckPath
	}
	if cfg.Store.DuckDBPath == "" {
		return errors.New("no DuckDB path, pass -duckdb or set store.duckdb_path")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}

	tickers := config.SplitList(tickerList)
	if len(tickers) == 0 {
		tickers = cfg.Tickers
	}
	if len(tickers) == 0 {
		if tickers, err = discover(cfg.Data.CSVDir); err != nil {
			return err
		}
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no CSV files found in %s", cfg.Data.CSVDir)
	}
	start, end, err := cfg.Data.Range()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := duckdb.NewClient(cfg.Store.DuckDBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to DuckDB: %w", err)
	}
	defer client.Close()
	repo := duckdb.NewBarRepo(client)

	log.Info().Str("csv_dir", cfg.Data.CSVDir).Str("duckdb", client.Path()).Strs("tickers", tickers).Msg("starting backfill")
	err = data.Backfill(ctx, data.NewCSVProvider(cfg.Data.CSVDir), repo, tickers, start, end, func(p data.BackfillProgress) {
		log.Info().
			Str("ticker", p.Ticker).
			Int("bars", p.Inserted).
			Time("first", p.First).
			Time("last", p.Last).
			Msg("stored bars")
	})
	if err != nil {
		return err
	}

	for _, tk := range tickers {
		n, err := repo.Count(ctx, tk)
		if err != nil {
			return err
		}
		log.Info().Str("ticker", tk).Int64("total_bars", n).Msg("ticker ready")
	}
	return nil
}

func discover(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(matches))
	for _, m := range matches {
		tickers = append(tickers, strings.ToUpper(strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))))
	}
	return tickers, nil
}
