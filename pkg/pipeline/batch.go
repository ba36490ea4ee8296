package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tunogya/augur/pkg/chart"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/metrics"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/outcome"
)

// Failure is a (ticker, model) run that did not complete
type Failure struct {
	Ticker    string
	ModelType model.ModelType
	Err       error
}

// Report is the outcome of a batch
type Report struct {
	ModelTypes []model.ModelType
	Tables     map[model.ModelType]*metrics.Table
	Earnings   map[model.ModelType]outcome.AggregatedOutcome
	Failures   []Failure
	Completed  int
}

// Summary returns the metric summary for one model type
func (r *Report) Summary(mt model.ModelType) (metrics.Summary, bool) {
	t, ok := r.Tables[mt]
	if !ok {
		return metrics.Summary{}, false
	}
	return t.Summarize()
}

// RunBatch runs every model type on every ticker. Tickers are processed
// concurrently up to cfg.Run.Workers; model types run in order per ticker.
// A failing ticker is logged and recorded, and the batch moves on. Only
// cancellation of ctx aborts the batch.
func (r *Runner) RunBatch(ctx context.Context, tickers []string, types []model.ModelType) (*Report, error) {
	if len(tickers) == 0 {
		return nil, errors.New("no tickers to run")
	}
	if len(types) == 0 {
		return nil, errors.New("no model types to run")
	}

	report := &Report{
		ModelTypes: types,
		Tables:     make(map[model.ModelType]*metrics.Table, len(types)),
	}
	for _, mt := range types {
		report.Tables[mt] = metrics.NewTable(tickers...)
	}

	var (
		mu       sync.Mutex
		earnings []outcome.Result
	)
	workers := r.cfg.Run.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, ticker := range tickers {
		r.log.Info().Str("ticker", ticker).Int("index", i+1).Int("total", len(tickers)).Msg("queued ticker")
		g.Go(func() error {
			for _, mt := range types {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := r.RunTicker(gctx, ticker, mt)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					ev := r.log.Error()
					if errors.Is(err, data.ErrNoData) {
						ev = r.log.Warn()
					}
					ev.Err(err).Str("ticker", ticker).Str("model_type", string(mt)).Msg("skipping ticker")
					mu.Lock()
					report.Failures = append(report.Failures, Failure{Ticker: ticker, ModelType: mt, Err: err})
					mu.Unlock()
					continue
				}
				report.Tables[mt].Put(ticker, res.Metrics)
				mu.Lock()
				earnings = append(earnings, res.Earnings)
				report.Completed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(report.Failures, func(i, j int) bool {
		return indexOf(tickers, report.Failures[i].Ticker) < indexOf(tickers, report.Failures[j].Ticker)
	})
	report.Earnings = outcome.AggregateResults(earnings)

	if err := r.writeBatchArtifacts(tickers, report); err != nil {
		return report, err
	}
	r.logReport(report)
	return report, nil
}

func (r *Runner) writeBatchArtifacts(tickers []string, report *Report) error {
	for _, mt := range report.ModelTypes {
		if err := r.writer.WriteBatchSummary(mt, report.Tables[mt]); err != nil {
			return err
		}
	}
	if !r.cfg.Run.Charts || report.Completed == 0 {
		return nil
	}

	groups := make([]chart.AccuracyGroup, 0, len(report.ModelTypes))
	for _, mt := range report.ModelTypes {
		acc := make([]float64, len(tickers))
		for i, tk := range tickers {
			acc[i] = math.NaN()
			if m, ok := report.Tables[mt].Get(tk); ok {
				acc[i] = m.Accuracy * 100
			}
		}
		groups = append(groups, chart.AccuracyGroup{Label: string(mt), Accuracy: acc})
	}
	if err := chart.AccuracyComparison(r.writer.ComparisonPlot(), tickers, groups...); err != nil {
		return fmt.Errorf("accuracy comparison chart: %w", err)
	}
	return nil
}

func (r *Runner) logReport(report *Report) {
	for _, mt := range report.ModelTypes {
		s, ok := report.Summary(mt)
		if !ok {
			r.log.Warn().Str("model_type", string(mt)).Msg("no completed runs")
			continue
		}
		r.log.Info().
			Str("model_type", string(mt)).
			Int("tickers", s.Count).
			Float64("avg_accuracy", s.AverageAccuracy).
			Float64("avg_rmse", s.AverageRMSE).
			Float64("avg_mae", s.AverageMAE).
			Str("best", s.BestTicker()).
			Str("worst", s.WorstTicker()).
			Msg("batch summary")
		if agg, ok := report.Earnings[mt]; ok {
			r.log.Info().Msg(agg.String())
		}
	}
	r.log.Info().Int("completed", report.Completed).Int("failed", len(report.Failures)).Msg("batch finished")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return len(list)
}
