package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// MemoryProvider implements BarProvider with in-memory storage
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]model.Bar
}

// NewMemoryProvider creates a new in-memory bar provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		bars: make(map[string][]model.Bar),
	}
}

// AddBars adds bars for ticker; callers keep them ordered by date
func (p *MemoryProvider) AddBars(ticker string, bars []model.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[ticker] = append(p.bars[ticker], bars...)
}

// InsertBatch stores bars keyed by their ticker
func (p *MemoryProvider) InsertBatch(ctx context.Context, bars []model.Bar) error {
	for _, b := range bars {
		p.AddBars(b.Ticker, []model.Bar{b})
	}
	return nil
}

// Fetch retrieves bars within the specified date range
func (p *MemoryProvider) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := model.FilterRange(p.bars[ticker], start, end)
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}
	return result, nil
}
