package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/model"
)

// Writes synthetic {TICKER}.csv files so the CSV provider can be exercised offline.
func main() {
	tickers := flag.String("tickers", "AAPL,MSFT,NVDA", "comma-separated tickers")
	start := flag.String("start", "2020-01-02", "first bar date")
	days := flag.Int("days", 1000, "bars per ticker")
	seed := flag.Uint64("seed", 1, "base random seed")
	dir := flag.String("output", "data", "output directory")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	first, err := data.ParseDate(*start)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -start")
	}
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create output directory")
	}

	for i, tk := range config.SplitList(*tickers) {
		bars := data.GenerateBars(tk, first, *days, *seed+uint64(i))
		path := filepath.Join(*dir, fmt.Sprintf("%s.csv", tk))
		if err := writeFile(path, bars); err != nil {
			log.Fatal().Err(err).Str("ticker", tk).Msg("failed to write bars")
		}
		log.Info().Str("ticker", tk).Int("bars", len(bars)).Str("path", path).Msg("wrote bars")
	}
}

func writeFile(path string, bars []model.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := data.WriteBars(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
