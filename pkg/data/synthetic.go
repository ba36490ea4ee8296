package data

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// GenerateBars produces a deterministic random-walk series of n business-day
// bars starting at start. Daily moves stay well inside the outlier threshold.
func GenerateBars(ticker string, start time.Time, n int, seed uint64) []model.Bar {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bars := make([]model.Bar, 0, n)
	price := 100.0
	date := start
	for len(bars) < n {
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			date = date.AddDate(0, 0, 1)
			continue
		}
		i := float64(len(bars))
		drift := 0.0004 + 0.01*math.Sin(i/9)
		change := drift + 0.015*(rng.Float64()*2-1)
		open := price
		price *= 1 + change
		spread := price * (0.004 + 0.01*rng.Float64())
		bars = append(bars, model.Bar{
			Ticker: ticker,
			Date:   date,
			Open:   open,
			High:   math.Max(open, price) + spread,
			Low:    math.Min(open, price) - spread,
			Close:  price,
			Volume: math.Round(1e6 * (1 + 0.5*rng.Float64())),
		})
		date = date.AddDate(0, 0, 1)
	}
	return bars
}
