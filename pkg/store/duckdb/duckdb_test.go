package duckdb

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(":memory:")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewClientInMemory(t *testing.T) {
	for _, path := range []string{MemoryPath, ""} {
		c, err := NewClient(path)
		if err != nil {
			t.Fatalf("open %q: %v", path, err)
		}
		if c.Path() != path {
			t.Fatalf("path = %q, want %q", c.Path(), path)
		}
		var n int
		if err := c.QueryRow(context.Background(), "SELECT count(*) FROM runs").Scan(&n); err != nil {
			t.Fatalf("schema missing for %q: %v", path, err)
		}
		if n != 0 {
			t.Fatalf("fresh database has %d runs", n)
		}
		c.Close()
	}
}

var day0 = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

func TestBarRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewBarRepo(newTestClient(t))

	bars := data.GenerateBars("AAPL", day0, 10, 3)
	bars[4].Volume = math.NaN()
	if err := repo.InsertBatch(ctx, bars); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// upsert replaces
	bars[0].Close = 1
	if err := repo.Insert(ctx, &bars[0]); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.Fetch(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected 10 bars, got %d", len(got))
	}
	if got[0].Close != 1 || !got[0].Date.Equal(bars[0].Date) {
		t.Fatalf("unexpected first bar %+v", got[0])
	}
	if !math.IsNaN(got[4].Volume) {
		t.Fatalf("missing volume should read back as NaN, got %v", got[4].Volume)
	}

	ranged, err := repo.Fetch(ctx, "AAPL", bars[2].Date, bars[5].Date)
	if err != nil {
		t.Fatalf("fetch range: %v", err)
	}
	if len(ranged) != 4 {
		t.Fatalf("expected 4 bars in range, got %d", len(ranged))
	}

	if _, err := repo.Fetch(ctx, "MSFT", time.Time{}, time.Time{}); !errors.Is(err, data.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	tickers, err := repo.Tickers(ctx)
	if err != nil || len(tickers) != 1 || tickers[0] != "AAPL" {
		t.Fatalf("unexpected tickers %v (%v)", tickers, err)
	}
	if n, _ := repo.Count(ctx, "AAPL"); n != 10 {
		t.Fatalf("expected count 10, got %d", n)
	}
}

func TestFeatureRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewFeatureRepo(newTestClient(t))
	rows := []model.FeatureRow{
		{Date: day0, Close: 10, MA5: 9.5, RSI: 55, OBV: -100},
		{Date: day0.AddDate(0, 0, 1), Close: 11, MA5: 9.8, RSI: 60, OBV: 200},
	}
	if err := repo.InsertBatch(ctx, "IBM", rows); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := repo.GetByTicker(ctx, "IBM")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[1].RSI != 60 || got[0].OBV != -100 {
		t.Fatalf("unexpected rows %+v", got)
	}
	if got[0].Year != 2022 || got[0].Month != 6 || got[0].Day != 1 {
		t.Fatalf("calendar fields not restored: %v-%v-%v", got[0].Year, got[0].Month, got[0].Day)
	}
}

func TestPredictionRepoReplacesEarlierRuns(t *testing.T) {
	ctx := context.Background()
	repo := NewPredictionRepo(newTestClient(t))
	first := []model.PredictionRecord{
		{Date: day0, PredictedPrice: 100, PredictedReturnPct: 1, ActualReturnPct: 0.5, ActualPrice: 99.5},
		{Date: day0.AddDate(0, 0, 1), PredictedPrice: 101, PredictedReturnPct: 0.2, ActualReturnPct: 0.1, ActualPrice: 100},
	}
	if err := repo.InsertBatch(ctx, "run-1", "NVDA", model.ModelLSTM, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := []model.PredictionRecord{{Date: day0, PredictedPrice: 200}}
	if err := repo.InsertBatch(ctx, "run-2", "NVDA", model.ModelLSTM, second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetByTicker(ctx, "NVDA", model.ModelLSTM)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].PredictedPrice != 200 || got[1].PredictedPrice != 101 {
		t.Fatalf("unexpected predictions %+v", got)
	}
	if n, _ := repo.Count(ctx, "NVDA", model.ModelGRU); n != 0 {
		t.Fatalf("GRU predictions should be separate, got %d", n)
	}
}

func TestRunRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepo(newTestClient(t))

	older := &model.RunRecord{RunID: "a", Ticker: "T", ModelType: model.ModelGRU, NSteps: 30, Epochs: 10,
		Metrics: model.Metrics{RMSE: 1, MAE: 1, Accuracy: 0.9}, CreatedAt: day0}
	newer := &model.RunRecord{RunID: "b", Ticker: "T", ModelType: model.ModelGRU, NSteps: 30, Epochs: 10,
		Metrics: model.Metrics{RMSE: 2, MAE: 2, Accuracy: math.NaN()}, CreatedAt: day0.Add(time.Hour)}
	for _, r := range []*model.RunRecord{older, newer, older} {
		if err := repo.Insert(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := repo.GetByID(ctx, "b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ModelType != model.ModelGRU || !math.IsNaN(got.Metrics.Accuracy) || got.Metrics.RMSE != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if _, err := repo.GetByID(ctx, "missing"); err == nil {
		t.Fatalf("expected error for unknown run")
	}

	if err := repo.InsertLosses(ctx, "b", []model.EpochLoss{{Epoch: 2, TrainLoss: 0.2, ValLoss: 0.3}, {Epoch: 1, TrainLoss: 0.4, ValLoss: 0.5}}); err != nil {
		t.Fatalf("losses: %v", err)
	}
	losses, err := repo.Losses(ctx, "b")
	if err != nil || len(losses) != 2 || losses[0].Epoch != 1 || losses[1].ValLoss != 0.3 {
		t.Fatalf("unexpected losses %+v (%v)", losses, err)
	}

	table, err := repo.LatestMetrics(ctx, model.ModelGRU, []string{"T", "U"})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	m, ok := table.Get("T")
	if !ok || m.RMSE != 2 {
		t.Fatalf("expected newest run metrics, got %+v", m)
	}
	if table.Len() != 1 {
		t.Fatalf("expected one ticker, got %d", table.Len())
	}
}
