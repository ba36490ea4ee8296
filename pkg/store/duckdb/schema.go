package duckdb

import (
	"context"
	"fmt"
)

// CreateBarsTable creates the daily bars fact table
const CreateBarsTable = `
CREATE TABLE IF NOT EXISTS bars (
    ticker VARCHAR NOT NULL,
    date DATE NOT NULL,
    open DOUBLE,
    high DOUBLE,
    low DOUBLE,
    close DOUBLE,
    volume DOUBLE,
    PRIMARY KEY (ticker, date)
);
`

// CreateFeaturesTable creates the indicator table cache
const CreateFeaturesTable = `
CREATE TABLE IF NOT EXISTS features (
    ticker VARCHAR NOT NULL,
    date DATE NOT NULL,
    open DOUBLE,
    high DOUBLE,
    low DOUBLE,
    close DOUBLE,
    volume DOUBLE,
    volume_yes DOUBLE,
    ma5 DOUBLE,
    ma10 DOUBLE,
    ma20 DOUBLE,
    ma50 DOUBLE,
    rsi DOUBLE,
    macd DOUBLE,
    vwap DOUBLE,
    upper_band DOUBLE,
    lower_band DOUBLE,
    atr DOUBLE,
    prev_close DOUBLE,
    adx DOUBLE,
    minus_di DOUBLE,
    plus_di DOUBLE,
    close_yes DOUBLE,
    open_yes DOUBLE,
    high_yes DOUBLE,
    low_yes DOUBLE,
    obv DOUBLE,
    PRIMARY KEY (ticker, date)
);
`

// CreateRunsTable creates the training run table
const CreateRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    run_id VARCHAR PRIMARY KEY,
    ticker VARCHAR NOT NULL,
    model_type VARCHAR NOT NULL,
    n_steps INTEGER NOT NULL,
    epochs INTEGER NOT NULL,
    rmse DOUBLE,
    mae DOUBLE,
    accuracy DOUBLE,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_ticker_model ON runs(ticker, model_type);
`

// CreateEpochLossesTable creates the per-epoch loss table
const CreateEpochLossesTable = `
CREATE TABLE IF NOT EXISTS epoch_losses (
    run_id VARCHAR NOT NULL,
    epoch INTEGER NOT NULL,
    train_loss DOUBLE,
    val_loss DOUBLE,
    PRIMARY KEY (run_id, epoch)
);
`

// CreatePredictionsTable creates the prediction table. The latest run of a
// (ticker, model_type) pair owns each date.
const CreatePredictionsTable = `
CREATE TABLE IF NOT EXISTS predictions (
    ticker VARCHAR NOT NULL,
    model_type VARCHAR NOT NULL,
    date DATE NOT NULL,
    run_id VARCHAR NOT NULL,
    predicted_price DOUBLE,
    predicted_return_pct DOUBLE,
    actual_return_pct DOUBLE,
    actual_price DOUBLE,
    PRIMARY KEY (ticker, model_type, date)
);
`

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	schemas := []string{
		CreateBarsTable,
		CreateFeaturesTable,
		CreateRunsTable,
		CreateEpochLossesTable,
		CreatePredictionsTable,
	}

	for _, schema := range schemas {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with caution)
func DropAllTables(ctx context.Context, c *Client) error {
	tables := []string{"predictions", "epoch_losses", "runs", "features", "bars"}
	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
