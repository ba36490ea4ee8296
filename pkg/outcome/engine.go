package outcome

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tunogya/augur/pkg/model"
)

// Engine replays a prediction series as a long-or-flat daily strategy and
// compares it with holding the stock every day
type Engine struct {
	config Config
}

// Config holds configuration for outcome calculation
type Config struct {
	// EntryThresholdPct is the predicted return (in percent) above which the
	// strategy holds the stock for the day
	EntryThresholdPct float64
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{EntryThresholdPct: 0}
}

// NewEngine creates a new outcome engine
func NewEngine(config Config) *Engine {
	return &Engine{config: config}
}

// Result holds earnings statistics for one prediction series. Returns are
// in percent; cumulative curves are running sums of daily returns.
type Result struct {
	Ticker    string
	ModelType model.ModelType
	Dates     []time.Time
	Naive     []float64 // cumulative actual return
	Strategy  []float64 // cumulative return on days the model is long
	DaysLong  int
	HitRate   float64 // share of days where predicted and actual moves agree in sign
	DailyMean float64 // mean strategy return per day
	DailyP10  float64
	DailyP50  float64
	DailyP90  float64
	MaxDD     float64 // largest peak-to-trough drop of the strategy curve
}

// NaiveTotal returns the final cumulative buy-and-hold return
func (r Result) NaiveTotal() float64 {
	return last(r.Naive)
}

// StrategyTotal returns the final cumulative strategy return
func (r Result) StrategyTotal() float64 {
	return last(r.Strategy)
}

// Calculate computes cumulative earnings for the records, which must be in date order
func (e *Engine) Calculate(ticker string, modelType model.ModelType, records []model.PredictionRecord) Result {
	res := Result{Ticker: ticker, ModelType: modelType}
	if len(records) == 0 {
		return res
	}

	res.Dates = make([]time.Time, len(records))
	res.Naive = make([]float64, len(records))
	res.Strategy = make([]float64, len(records))
	daily := make([]float64, len(records))

	var naive, strat float64
	hits := 0
	for i, rec := range records {
		naive += rec.ActualReturnPct
		if rec.PredictedReturnPct > e.config.EntryThresholdPct {
			daily[i] = rec.ActualReturnPct
			res.DaysLong++
		}
		strat += daily[i]
		if sameSign(rec.PredictedReturnPct, rec.ActualReturnPct) {
			hits++
		}
		res.Dates[i] = rec.Date
		res.Naive[i] = naive
		res.Strategy[i] = strat
	}

	sorted := make([]float64, len(daily))
	copy(sorted, daily)
	sort.Float64s(sorted)

	res.HitRate = float64(hits) / float64(len(records))
	res.DailyMean = mean(daily)
	res.DailyP10 = percentile(sorted, 10)
	res.DailyP50 = percentile(sorted, 50)
	res.DailyP90 = percentile(sorted, 90)
	res.MaxDD = maxDrawdown(res.Strategy)
	return res
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0) || (a == 0 && b == 0)
}

// maxDrawdown computes the largest drop from a running peak of an additive
// curve that starts at zero
func maxDrawdown(curve []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// percentile returns the empirical p-th percentile (p in 0-100) of sorted
// values: the smallest value covering at least p percent of the sample
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}

// AggregatedOutcome summarizes results across tickers for one model type
type AggregatedOutcome struct {
	ModelType        model.ModelType
	SampleCount      int
	MeanNaive        float64
	MeanStrategy     float64
	MeanHitRate      float64
	Outperformed     int // tickers where the strategy beat buy-and-hold
	MaxDrawdownWorst float64
}

// AggregateResults groups results by model type
func AggregateResults(results []Result) map[model.ModelType]AggregatedOutcome {
	byModel := make(map[model.ModelType][]Result)
	for _, r := range results {
		byModel[r.ModelType] = append(byModel[r.ModelType], r)
	}

	aggregated := make(map[model.ModelType]AggregatedOutcome)
	for mt, group := range byModel {
		naive := make([]float64, len(group))
		strat := make([]float64, len(group))
		hit := make([]float64, len(group))
		agg := AggregatedOutcome{ModelType: mt, SampleCount: len(group)}
		for i, r := range group {
			naive[i] = r.NaiveTotal()
			strat[i] = r.StrategyTotal()
			hit[i] = r.HitRate
			if strat[i] > naive[i] {
				agg.Outperformed++
			}
			agg.MaxDrawdownWorst = math.Max(agg.MaxDrawdownWorst, r.MaxDD)
		}
		agg.MeanNaive = mean(naive)
		agg.MeanStrategy = mean(strat)
		agg.MeanHitRate = mean(hit)
		aggregated[mt] = agg
	}
	return aggregated
}

// String returns a formatted string representation
func (a AggregatedOutcome) String() string {
	return fmt.Sprintf(
		"Model: %s | Samples: %d | Naive: %.2f%% | Strategy: %.2f%% | Hit: %.1f%% | Beat: %d | MDD: %.2f%%",
		a.ModelType, a.SampleCount, a.MeanNaive, a.MeanStrategy, a.MeanHitRate*100, a.Outperformed, a.MaxDrawdownWorst,
	)
}
