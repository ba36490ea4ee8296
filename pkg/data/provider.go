package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// ErrNoData is returned when a provider has no bars for a ticker and range
var ErrNoData = errors.New("no data")

// BarProvider defines the interface for fetching historical daily bars
type BarProvider interface {
	// Fetch retrieves bars for ticker with dates in [start, end].
	// Zero bounds are open. Bars are ordered by date (oldest first).
	Fetch(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error)
}

// BarSink persists bars, e.g. when backfilling a store from CSV
type BarSink interface {
	InsertBatch(ctx context.Context, bars []model.Bar) error
}

// BackfillProgress tracks the progress of a backfill operation
type BackfillProgress struct {
	Ticker   string
	Loaded   int
	Inserted int
	First    time.Time
	Last     time.Time
}

// Backfill copies bars for each ticker from src into dst
func Backfill(ctx context.Context, src BarProvider, dst BarSink, tickers []string, start, end time.Time, progress func(BackfillProgress)) error {
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars, err := src.Fetch(ctx, ticker, start, end)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			continue
		}
		if err := dst.InsertBatch(ctx, bars); err != nil {
			return fmt.Errorf("failed to store %s: %w", ticker, err)
		}
		if progress != nil {
			progress(BackfillProgress{
				Ticker:   ticker,
				Loaded:   len(bars),
				Inserted: len(bars),
				First:    bars[0].Date,
				Last:     bars[len(bars)-1].Date,
			})
		}
	}
	return nil
}
