package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/model"
)

const upsertBar = `
	INSERT INTO bars (ticker, date, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ticker, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume
`

// BarRepo handles daily bar persistence. It serves as both a bar source
// and a backfill sink.
type BarRepo struct {
	client *Client
}

var (
	_ data.BarProvider = (*BarRepo)(nil)
	_ data.BarSink     = (*BarRepo)(nil)
)

// NewBarRepo creates a new bar repository
func NewBarRepo(client *Client) *BarRepo {
	return &BarRepo{client: client}
}

// Insert inserts a single bar
func (r *BarRepo) Insert(ctx context.Context, b *model.Bar) error {
	return r.client.Exec(ctx, upsertBar, barArgs(*b)...)
}

// InsertBatch inserts multiple bars in a transaction
func (r *BarRepo) InsertBatch(ctx context.Context, bars []model.Bar) error {
	return inBatch(ctx, r.client, upsertBar, bars, func(stmt *sql.Stmt, b model.Bar) error {
		if _, err := stmt.ExecContext(ctx, barArgs(b)...); err != nil {
			return fmt.Errorf("failed to insert bar %s %s: %w", b.Ticker, b.Date.Format("2006-01-02"), err)
		}
		return nil
	})
}

// barArgs binds a bar; missing prices are stored as NULL
func barArgs(b model.Bar) []any {
	return []any{b.Ticker, b.Date, nullFloat(b.Open), nullFloat(b.High), nullFloat(b.Low), nullFloat(b.Close), nullFloat(b.Volume)}
}

// Fetch retrieves bars for ticker in [start, end]; zero bounds are open
func (r *BarRepo) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	query := `
		SELECT ticker, date, open, high, low, close, volume
		FROM bars
		WHERE ticker = ?
	`
	args := []any{ticker}
	if !start.IsZero() {
		query += " AND date >= ?"
		args = append(args, start)
	}
	if !end.IsZero() {
		query += " AND date <= ?"
		args = append(args, end)
	}
	query += " ORDER BY date ASC"

	rows, err := r.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var open, high, low, closePrice, volume sql.NullFloat64
		if err := rows.Scan(&b.Ticker, &b.Date, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Open = nullable(open)
		b.High = nullable(high)
		b.Low = nullable(low)
		b.Close = nullable(closePrice)
		b.Volume = nullable(volume)
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s", data.ErrNoData, ticker)
	}
	return bars, nil
}

// Tickers lists the stored tickers in alphabetical order
func (r *BarRepo) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.client.Query(ctx, "SELECT DISTINCT ticker FROM bars ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// Count returns the total number of bars for a ticker
func (r *BarRepo) Count(ctx context.Context, ticker string) (int64, error) {
	var count int64
	row := r.client.QueryRow(ctx, "SELECT COUNT(*) FROM bars WHERE ticker = ?", ticker)
	err := row.Scan(&count)
	return count, err
}
