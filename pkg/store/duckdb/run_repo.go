package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/tunogya/augur/pkg/metrics"
	"github.com/tunogya/augur/pkg/model"
)

// RunRepo handles training run persistence
type RunRepo struct {
	client *Client
}

// NewRunRepo creates a new run repository
func NewRunRepo(client *Client) *RunRepo {
	return &RunRepo{client: client}
}

// Insert stores a run; re-inserting the same run ID is a no-op
func (r *RunRepo) Insert(ctx context.Context, run *model.RunRecord) error {
	query := `
		INSERT INTO runs (run_id, ticker, model_type, n_steps, epochs, rmse, mae, accuracy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`
	return r.client.Exec(ctx, query,
		run.RunID, run.Ticker, string(run.ModelType), run.NSteps, run.Epochs,
		nullFloat(run.Metrics.RMSE), nullFloat(run.Metrics.MAE), nullFloat(run.Metrics.Accuracy), run.CreatedAt,
	)
}

// InsertLosses stores a run's per-epoch losses
func (r *RunRepo) InsertLosses(ctx context.Context, runID string, losses []model.EpochLoss) error {
	query := `
		INSERT INTO epoch_losses (run_id, epoch, train_loss, val_loss)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, epoch) DO UPDATE SET
			train_loss = EXCLUDED.train_loss,
			val_loss = EXCLUDED.val_loss
	`
	return inBatch(ctx, r.client, query, losses, func(stmt *sql.Stmt, l model.EpochLoss) error {
		if _, err := stmt.ExecContext(ctx, runID, l.Epoch, nullFloat(l.TrainLoss), nullFloat(l.ValLoss)); err != nil {
			return fmt.Errorf("failed to insert epoch loss: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a run by ID
func (r *RunRepo) GetByID(ctx context.Context, runID string) (*model.RunRecord, error) {
	query := `
		SELECT run_id, ticker, model_type, n_steps, epochs, rmse, mae, accuracy, created_at
		FROM runs
		WHERE run_id = ?
	`
	row := r.client.QueryRow(ctx, query, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return run, err
}

// Losses retrieves a run's per-epoch losses in epoch order
func (r *RunRepo) Losses(ctx context.Context, runID string) ([]model.EpochLoss, error) {
	rows, err := r.client.Query(ctx, "SELECT epoch, train_loss, val_loss FROM epoch_losses WHERE run_id = ? ORDER BY epoch", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query losses: %w", err)
	}
	defer rows.Close()

	var out []model.EpochLoss
	for rows.Next() {
		var l model.EpochLoss
		var train, val sql.NullFloat64
		if err := rows.Scan(&l.Epoch, &train, &val); err != nil {
			return nil, err
		}
		l.TrainLoss = nullable(train)
		l.ValLoss = nullable(val)
		out = append(out, l)
	}
	return out, rows.Err()
}

// LatestMetrics builds a metrics table from the most recent run of each
// ticker for a model type, in ticker order
func (r *RunRepo) LatestMetrics(ctx context.Context, mt model.ModelType, tickers []string) (*metrics.Table, error) {
	query := `
		SELECT run_id, ticker, model_type, n_steps, epochs, rmse, mae, accuracy, created_at
		FROM runs
		WHERE ticker = ? AND model_type = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	table := metrics.NewTable(tickers...)
	for _, t := range tickers {
		run, err := scanRun(r.client.QueryRow(ctx, query, t, string(mt)))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		table.Put(t, run.Metrics)
	}
	return table, nil
}

func scanRun(row *sql.Row) (*model.RunRecord, error) {
	var run model.RunRecord
	var mt string
	var rmse, mae, acc sql.NullFloat64
	err := row.Scan(&run.RunID, &run.Ticker, &mt, &run.NSteps, &run.Epochs, &rmse, &mae, &acc, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.ModelType = model.ModelType(mt)
	run.Metrics = model.Metrics{RMSE: nullable(rmse), MAE: nullable(mae), Accuracy: nullable(acc)}
	return &run, nil
}

// nullFloat stores non-finite values as NULL
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// nullable reads NULL back as NaN
func nullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
