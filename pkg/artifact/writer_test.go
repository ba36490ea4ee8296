package artifact

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/metrics"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/trading"
)

func sampleRecords() []model.PredictionRecord {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []model.PredictionRecord{
		{Date: day, PredictedPrice: 101, PredictedReturnPct: 1, ActualReturnPct: 0.5, ActualPrice: 100.5},
		{Date: day.AddDate(0, 0, 3), PredictedPrice: 99, PredictedReturnPct: -1.5, ActualReturnPct: -1, ActualPrice: 99.5},
	}
}

func TestWritePredictions(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	if err := w.WritePredictions("AAPL", model.ModelGRU, sampleRecords()); err != nil {
		t.Fatalf("write: %v", err)
	}
	paths := w.Paths("AAPL", model.ModelGRU)
	if !strings.HasSuffix(paths.PredictionMap, filepath.Join("predictions", "AAPL_GRU_predictions.json")) {
		t.Fatalf("unexpected path %s", paths.PredictionMap)
	}

	returns, err := ReadPredictionMap(paths.PredictionMap)
	if err != nil {
		t.Fatalf("read map: %v", err)
	}
	if len(returns) != 2 || math.Abs(returns["2024-03-04"]+0.015) > 1e-12 {
		t.Fatalf("unexpected mapping %v", returns)
	}

	rows, err := parquet.ReadFile[predictionRow](paths.PredictionTable)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 2 || rows[0].Date != "2024-03-01" || rows[1].ActualPrice != 99.5 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestWriteMetrics(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	if err := w.WriteMetrics("MSFT", model.ModelLSTM, model.Metrics{RMSE: 1.23456789, MAE: 0.5, Accuracy: 0.981234567}); err != nil {
		t.Fatalf("write: %v", err)
	}
	paths := w.Paths("MSFT", model.ModelLSTM)

	csvData, err := os.ReadFile(paths.MetricsCSV)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.HasPrefix(string(csvData), ",rmse,mae,accuracy\nMSFT,1.23456789,0.5,") {
		t.Fatalf("unexpected csv %q", csvData)
	}

	summary, err := os.ReadFile(paths.Summary)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	want := "Average Accuracy: 98.1235\nBest Stock: MSFT\nWorst Stock: MSFT\nAverage RMSE: 1.2346\nAverage MAE: 0.5\n"
	if string(summary) != want {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestWriteBatchSummary(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	table := metrics.NewTable("A", "B")
	if err := w.WriteBatchSummary(model.ModelGRU, table); err != nil {
		t.Fatalf("empty table should be skipped, got %v", err)
	}
	if _, err := os.Stat(w.BatchSummary(model.ModelGRU)); !os.IsNotExist(err) {
		t.Fatalf("expected no summary for an empty table")
	}

	table.Put("B", model.Metrics{RMSE: 2, MAE: 1, Accuracy: 0.9})
	table.Put("A", model.Metrics{RMSE: 4, MAE: 3, Accuracy: math.NaN()})
	if err := w.WriteBatchSummary(model.ModelGRU, table); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(w.BatchSummary(model.ModelGRU))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "Best Stock: B\n") || !strings.Contains(string(data), "Average RMSE: 3\n") {
		t.Fatalf("unexpected summary:\n%s", data)
	}
}

func TestWriteSummaryWithoutAccuracy(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	if err := w.WriteMetrics("ZERO", model.ModelLSTM, model.Metrics{RMSE: 2, MAE: 1, Accuracy: math.NaN()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	summary, err := os.ReadFile(w.Paths("ZERO", model.ModelLSTM).Summary)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	want := "Average Accuracy: NaN\nBest Stock: n/a\nWorst Stock: n/a\nAverage RMSE: 2\nAverage MAE: 1\n"
	if string(summary) != want {
		t.Fatalf("unexpected summary:\n%s", summary)
	}
}

func TestWriteTransactions(t *testing.T) {
	w := NewWriter(t.TempDir(), zerolog.Nop())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txs := []trading.Transaction{
		{Date: day, Side: trading.SideBuy, Price: 99.5, Shares: 10, Cash: 5},
		{Date: day.AddDate(0, 0, 2), Side: trading.SideSell, Price: 101.25, Shares: 10, Cash: 1017.5},
	}
	if err := w.WriteTransactions("AAPL", model.ModelGRU, txs); err != nil {
		t.Fatalf("write: %v", err)
	}
	path := w.Paths("AAPL", model.ModelGRU).Transactions
	if !strings.HasSuffix(path, filepath.Join("transactions", "AAPL_GRU_transactions.csv")) {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "date,side,price,shares,cash\n2024-03-01,buy,99.5,10,5\n2024-03-03,sell,101.25,10,1017.5\n"
	if string(data) != want {
		t.Fatalf("unexpected transactions %q", data)
	}

	// an empty history still writes the header
	if err := w.WriteTransactions("MSFT", model.ModelLSTM, nil); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if data, _ := os.ReadFile(w.Paths("MSFT", model.ModelLSTM).Transactions); string(data) != "date,side,price,shares,cash\n" {
		t.Fatalf("unexpected empty transactions %q", data)
	}
}

func TestWriteFailureIsWrapped(t *testing.T) {
	dir := t.TempDir()
	// a regular file where the output directory should be
	if err := os.WriteFile(filepath.Join(dir, "output"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	w := NewWriter(dir, zerolog.Nop())
	err := w.WriteMetrics("X", model.ModelLSTM, model.Metrics{Accuracy: 1})
	if !errors.Is(err, ErrArtifactWrite) {
		t.Fatalf("expected ErrArtifactWrite, got %v", err)
	}
}

func TestRoundNonFinite(t *testing.T) {
	if round(math.NaN(), 2) != "NaN" {
		t.Fatalf("expected NaN to be spelled out")
	}
	if round(1.005, 2) != "1.01" {
		t.Fatalf("unexpected rounding %s", round(1.005, 2))
	}
}
