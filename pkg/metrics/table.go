package metrics

import (
	"math"
	"sync"

	"github.com/tunogya/augur/pkg/model"
)

// Entry is one ticker's metrics
type Entry struct {
	Ticker string
	model.Metrics
}

// Table collects per-ticker metrics for one model type and iterates them in
// the order tickers were first added. It is safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]model.Metrics
}

// NewTable creates a table. Passing the batch's ticker list reserves their
// positions so concurrent runs still report in input order.
func NewTable(tickers ...string) *Table {
	t := &Table{entries: make(map[string]model.Metrics)}
	for _, tk := range tickers {
		t.reserve(tk)
	}
	return t
}

func (t *Table) reserve(ticker string) {
	for _, tk := range t.order {
		if tk == ticker {
			return
		}
	}
	t.order = append(t.order, ticker)
}

// Put records metrics for a ticker, replacing any previous value
func (t *Table) Put(ticker string, m model.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reserve(ticker)
	t.entries[ticker] = m
}

// Get returns metrics for a ticker
func (t *Table) Get(ticker string) (model.Metrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.entries[ticker]
	return m, ok
}

// Entries returns recorded metrics in input order; reserved tickers without
// a result are skipped
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, tk := range t.order {
		if m, ok := t.entries[tk]; ok {
			out = append(out, Entry{Ticker: tk, Metrics: m})
		}
	}
	return out
}

// Len returns the number of recorded tickers
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Summary aggregates a table
type Summary struct {
	Count           int
	Ranked          int // entries with a defined accuracy
	AverageAccuracy float64
	AverageRMSE     float64
	AverageMAE      float64
	Best            Entry
	Worst           Entry
}

// Summarize computes averages and the best and worst tickers by accuracy.
// Ties resolve to the earliest ticker in input order. Entries with NaN
// accuracy are left out of the accuracy statistics but still count toward
// the error averages. It returns false when the table is empty.
func (t *Table) Summarize() (Summary, bool) {
	entries := t.Entries()
	if len(entries) == 0 {
		return Summary{}, false
	}

	s := Summary{Count: len(entries), AverageAccuracy: math.NaN()}
	var accSum float64
	haveBest := false
	for _, e := range entries {
		s.AverageRMSE += e.RMSE
		s.AverageMAE += e.MAE
		if math.IsNaN(e.Accuracy) {
			continue
		}
		accSum += e.Accuracy
		s.Ranked++
		if !haveBest {
			s.Best, s.Worst = e, e
			haveBest = true
			continue
		}
		if e.Accuracy > s.Best.Accuracy {
			s.Best = e
		}
		if e.Accuracy < s.Worst.Accuracy {
			s.Worst = e
		}
	}
	s.AverageRMSE /= float64(len(entries))
	s.AverageMAE /= float64(len(entries))
	if s.Ranked > 0 {
		s.AverageAccuracy = accSum / float64(s.Ranked)
	}
	return s, true
}

// Unranked labels best and worst when no entry has a defined accuracy
const Unranked = "n/a"

// BestTicker returns the ticker with the highest accuracy, or Unranked
func (s Summary) BestTicker() string {
	if s.Ranked == 0 {
		return Unranked
	}
	return s.Best.Ticker
}

// WorstTicker returns the ticker with the lowest accuracy, or Unranked
func (s Summary) WorstTicker() string {
	if s.Ranked == 0 {
		return Unranked
	}
	return s.Worst.Ticker
}
