package model

import (
	"math"
	"time"
)

// Bar represents a single daily OHLCV record
type Bar struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ChangeFrom calculates the close-to-close return relative to prev
func (b *Bar) ChangeFrom(prev float64) float64 {
	if prev == 0 || math.IsNaN(prev) {
		return math.NaN()
	}
	return (b.Close - prev) / prev
}

// Range calculates the high-low range
func (b *Bar) Range() float64 {
	return b.High - b.Low
}

// IsValid returns true if the close price is a finite number
func (b *Bar) IsValid() bool {
	return !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0)
}

// Mask clears all price and volume fields
func (b *Bar) Mask() {
	nan := math.NaN()
	b.Open, b.High, b.Low, b.Close, b.Volume = nan, nan, nan, nan, nan
}

// FilterRange returns bars with dates in [start, end]. Zero bounds are open.
func FilterRange(bars []Bar, start, end time.Time) []Bar {
	var out []Bar
	for _, b := range bars {
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
