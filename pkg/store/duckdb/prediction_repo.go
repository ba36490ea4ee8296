package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/augur/pkg/model"
)

// PredictionRepo handles prediction persistence
type PredictionRepo struct {
	client *Client
}

// NewPredictionRepo creates a new prediction repository
func NewPredictionRepo(client *Client) *PredictionRepo {
	return &PredictionRepo{client: client}
}

// InsertBatch stores a run's predictions, replacing earlier runs on the same dates
func (r *PredictionRepo) InsertBatch(ctx context.Context, runID, ticker string, mt model.ModelType, records []model.PredictionRecord) error {
	query := `
		INSERT INTO predictions (ticker, model_type, date, run_id, predicted_price, predicted_return_pct, actual_return_pct, actual_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, model_type, date) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			predicted_price = EXCLUDED.predicted_price,
			predicted_return_pct = EXCLUDED.predicted_return_pct,
			actual_return_pct = EXCLUDED.actual_return_pct,
			actual_price = EXCLUDED.actual_price
	`
	return inBatch(ctx, r.client, query, records, func(stmt *sql.Stmt, p model.PredictionRecord) error {
		_, err := stmt.ExecContext(ctx, ticker, string(mt), p.Date, runID,
			p.PredictedPrice, p.PredictedReturnPct, p.ActualReturnPct, p.ActualPrice)
		if err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
		return nil
	})
}

// GetByTicker retrieves the stored predictions of a (ticker, model) pair in date order
func (r *PredictionRepo) GetByTicker(ctx context.Context, ticker string, mt model.ModelType) ([]model.PredictionRecord, error) {
	query := `
		SELECT date, predicted_price, predicted_return_pct, actual_return_pct, actual_price
		FROM predictions
		WHERE ticker = ? AND model_type = ?
		ORDER BY date ASC
	`
	rows, err := r.client.Query(ctx, query, ticker, string(mt))
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []model.PredictionRecord
	for rows.Next() {
		var p model.PredictionRecord
		if err := rows.Scan(&p.Date, &p.PredictedPrice, &p.PredictedReturnPct, &p.ActualReturnPct, &p.ActualPrice); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.Date = p.Date.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored predictions for a (ticker, model) pair
func (r *PredictionRepo) Count(ctx context.Context, ticker string, mt model.ModelType) (int64, error) {
	var count int64
	row := r.client.QueryRow(ctx, "SELECT COUNT(*) FROM predictions WHERE ticker = ? AND model_type = ?", ticker, string(mt))
	err := row.Scan(&count)
	return count, err
}
