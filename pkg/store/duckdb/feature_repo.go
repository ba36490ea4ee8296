package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/augur/pkg/model"
)

const upsertFeature = `
	INSERT INTO features (
		ticker, date, open, high, low, close, volume,
		volume_yes, ma5, ma10, ma20, ma50, rsi, macd, vwap, upper_band, lower_band,
		atr, prev_close, adx, minus_di, plus_di, close_yes, open_yes, high_yes, low_yes, obv
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (ticker, date) DO UPDATE SET
		open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		close = EXCLUDED.close, volume = EXCLUDED.volume,
		volume_yes = EXCLUDED.volume_yes, ma5 = EXCLUDED.ma5, ma10 = EXCLUDED.ma10,
		ma20 = EXCLUDED.ma20, ma50 = EXCLUDED.ma50, rsi = EXCLUDED.rsi, macd = EXCLUDED.macd,
		vwap = EXCLUDED.vwap, upper_band = EXCLUDED.upper_band, lower_band = EXCLUDED.lower_band,
		atr = EXCLUDED.atr, prev_close = EXCLUDED.prev_close, adx = EXCLUDED.adx,
		minus_di = EXCLUDED.minus_di, plus_di = EXCLUDED.plus_di, close_yes = EXCLUDED.close_yes,
		open_yes = EXCLUDED.open_yes, high_yes = EXCLUDED.high_yes, low_yes = EXCLUDED.low_yes,
		obv = EXCLUDED.obv
`

// FeatureRepo caches computed indicator tables
type FeatureRepo struct {
	client *Client
}

// NewFeatureRepo creates a new feature repository
func NewFeatureRepo(client *Client) *FeatureRepo {
	return &FeatureRepo{client: client}
}

// InsertBatch stores indicator rows for a ticker in a transaction
func (r *FeatureRepo) InsertBatch(ctx context.Context, ticker string, rows []model.FeatureRow) error {
	return inBatch(ctx, r.client, upsertFeature, rows, func(stmt *sql.Stmt, f model.FeatureRow) error {
		_, err := stmt.ExecContext(ctx,
			ticker, f.Date, f.Open, f.High, f.Low, f.Close, f.Volume,
			f.VolumeYes, f.MA5, f.MA10, f.MA20, f.MA50, f.RSI, f.MACD, f.VWAP, f.UpperBand, f.LowerBand,
			f.ATR, f.PrevClose, f.ADX, f.MinusDI, f.PlusDI, f.CloseYes, f.OpenYes, f.HighYes, f.LowYes, f.OBV,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feature row: %w", err)
		}
		return nil
	})
}

// GetByTicker retrieves the cached indicator table of a ticker in date order
func (r *FeatureRepo) GetByTicker(ctx context.Context, ticker string) ([]model.FeatureRow, error) {
	query := `
		SELECT date, open, high, low, close, volume,
			volume_yes, ma5, ma10, ma20, ma50, rsi, macd, vwap, upper_band, lower_band,
			atr, prev_close, adx, minus_di, plus_di, close_yes, open_yes, high_yes, low_yes, obv
		FROM features
		WHERE ticker = ?
		ORDER BY date ASC
	`
	rows, err := r.client.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query features: %w", err)
	}
	defer rows.Close()

	var out []model.FeatureRow
	for rows.Next() {
		var f model.FeatureRow
		err := rows.Scan(
			&f.Date, &f.Open, &f.High, &f.Low, &f.Close, &f.Volume,
			&f.VolumeYes, &f.MA5, &f.MA10, &f.MA20, &f.MA50, &f.RSI, &f.MACD, &f.VWAP, &f.UpperBand, &f.LowerBand,
			&f.ATR, &f.PrevClose, &f.ADX, &f.MinusDI, &f.PlusDI, &f.CloseYes, &f.OpenYes, &f.HighYes, &f.LowYes, &f.OBV,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		f.Date = f.Date.UTC()
		f.Year = float64(f.Date.Year())
		f.Month = float64(f.Date.Month())
		f.Day = float64(f.Date.Day())
		out = append(out, f)
	}
	return out, rows.Err()
}
