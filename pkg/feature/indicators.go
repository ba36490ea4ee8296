package feature

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// ErrSchema is returned when the input bars cannot be turned into features
var ErrSchema = errors.New("invalid bar schema")

const (
	// OutlierThreshold is the absolute daily close change above which a bar is discarded
	OutlierThreshold = 0.30

	rsiPeriod       = 14
	atrPeriod       = 14
	bollingerPeriod = 20
	bollingerWidth  = 2.0
	macdFast        = 12
	macdSlow        = 26
)

// Table is the indicator-enriched bar table, free of missing values
type Table struct {
	Rows []model.FeatureRow
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Dates returns the row dates in order
func (t *Table) Dates() []time.Time {
	out := make([]time.Time, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Date
	}
	return out
}

// Closes returns the close column
func (t *Table) Closes() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Close
	}
	return out
}

// ComputeIndicators derives the lagged technical indicators for bars.
// Every indicator at row t only uses bars up to t-1.
func ComputeIndicators(bars []model.Bar) (*Table, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars", ErrSchema)
	}

	valid := 0
	for i := range bars {
		if i > 0 && !bars[i].Date.After(bars[i-1].Date) {
			return nil, fmt.Errorf("%w: dates not strictly ascending at %s", ErrSchema, bars[i].Date.Format(time.DateOnly))
		}
		if bars[i].IsValid() {
			valid++
		}
	}
	if valid == 0 {
		return nil, fmt.Errorf("%w: no usable close prices", ErrSchema)
	}

	cleaned := make([]model.Bar, len(bars))
	copy(cleaned, bars)
	maskOutliers(cleaned)

	n := len(cleaned)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	volume := make([]float64, n)
	for i, b := range cleaned {
		open[i], high[i], low[i], closes[i], volume[i] = b.Open, b.High, b.Low, b.Close, b.Volume
	}
	for _, col := range [][]float64{open, high, low, closes, volume} {
		ffill(col)
	}

	prevClose := shift(closes, 1)
	ma5 := rollingMean(prevClose, 5)
	ma10 := rollingMean(prevClose, 10)
	ma20 := rollingMean(prevClose, 20)
	ma50 := rollingMean(prevClose, 50)

	rsi := shift(relativeStrength(closes, rsiPeriod), 1)

	fast := ema(closes, macdFast)
	slow := ema(closes, macdSlow)
	macdRaw := make([]float64, n)
	for i := range macdRaw {
		macdRaw[i] = fast[i] - slow[i]
	}
	macd := shift(macdRaw, 1)

	vwap := shift(cumulativeVWAP(closes, volume), 1)

	sma := rollingMean(closes, bollingerPeriod)
	std := rollingStd(closes, bollingerPeriod)
	upperRaw := make([]float64, n)
	lowerRaw := make([]float64, n)
	for i := range sma {
		upperRaw[i] = sma[i] + bollingerWidth*std[i]
		lowerRaw[i] = sma[i] - bollingerWidth*std[i]
	}
	upper := shift(upperRaw, 1)
	lower := shift(lowerRaw, 1)

	obv := shift(onBalanceVolume(closes, volume), 1)

	atrRaw := rollingMean(trueRange(high, low, closes), atrPeriod)
	plusDIRaw, minusDIRaw := directionalIndex(high, low, atrRaw, atrPeriod)
	adxRaw := averageDirectional(plusDIRaw, minusDIRaw, atrPeriod)

	atr := shift(atrRaw, 1)
	plusDI := shift(plusDIRaw, 1)
	minusDI := shift(minusDIRaw, 1)
	adx := shift(adxRaw, 1)

	openYes := shift(open, 1)
	highYes := shift(high, 1)
	lowYes := shift(low, 1)
	volumeYes := shift(volume, 1)

	rows := make([]model.FeatureRow, 0, n)
	for i := 0; i < n; i++ {
		d := cleaned[i].Date
		row := model.FeatureRow{
			Date:      d,
			Open:      open[i],
			High:      high[i],
			Low:       low[i],
			Close:     closes[i],
			Volume:    volume[i],
			VolumeYes: volumeYes[i],
			Year:      float64(d.Year()),
			Month:     float64(d.Month()),
			Day:       float64(d.Day()),
			MA5:       ma5[i],
			MA10:      ma10[i],
			MA20:      ma20[i],
			MA50:      ma50[i],
			RSI:       rsi[i],
			MACD:      macd[i],
			VWAP:      vwap[i],
			UpperBand: upper[i],
			LowerBand: lower[i],
			ATR:       atr[i],
			PrevClose: prevClose[i],
			ADX:       adx[i],
			MinusDI:   minusDI[i],
			PlusDI:    plusDI[i],
			CloseYes:  prevClose[i],
			OpenYes:   openYes[i],
			HighYes:   highYes[i],
			LowYes:    lowYes[i],
			OBV:       obv[i],
		}
		if anyMissing(row.Values()) || anyMissing([]float64{row.Open, row.High, row.Low, row.Close, row.Volume}) {
			continue
		}
		rows = append(rows, row)
	}

	return &Table{Rows: rows}, nil
}

// maskOutliers clears bars whose close moved more than OutlierThreshold
// from the previous close. Changes are measured on the raw closes, with
// gaps padded by the last present close.
func maskOutliers(bars []model.Bar) {
	raw := make([]float64, len(bars))
	for i, b := range bars {
		raw[i] = b.Close
	}
	ffill(raw)

	for i := 1; i < len(bars); i++ {
		if isMissing(raw[i-1]) || isMissing(raw[i]) || raw[i-1] == 0 {
			continue
		}
		change := raw[i]/raw[i-1] - 1
		if math.Abs(change) > OutlierThreshold {
			bars[i].Mask()
		}
	}
}

func relativeStrength(closes []float64, period int) []float64 {
	delta := diff(closes)
	rise := make([]float64, len(delta))
	drop := make([]float64, len(delta))
	for i, d := range delta {
		switch {
		case math.IsNaN(d):
			rise[i], drop[i] = d, d
		case d > 0:
			rise[i] = d
		default:
			drop[i] = -d
		}
	}
	meanRise := rollingMean(rise, period)
	meanDrop := rollingMean(drop, period)

	out := nanSlice(len(closes))
	for i := range out {
		r, d := meanRise[i], meanDrop[i]
		switch {
		case math.IsNaN(r) || math.IsNaN(d):
		case d == 0 && r == 0:
		case d == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+r/d)
		}
	}
	return out
}

func cumulativeVWAP(closes, volume []float64) []float64 {
	out := nanSlice(len(closes))
	var pv, vol float64
	for i := range closes {
		if isMissing(closes[i]) || isMissing(volume[i]) {
			continue
		}
		pv += closes[i] * volume[i]
		vol += volume[i]
		if vol != 0 {
			out[i] = pv / vol
		}
	}
	return out
}

func onBalanceVolume(closes, volume []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volume[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// trueRange ignores the previous-close terms where no previous close exists
func trueRange(high, low, closes []float64) []float64 {
	out := nanSlice(len(high))
	for i := range high {
		best := math.NaN()
		candidates := []float64{high[i] - low[i]}
		if i > 0 {
			candidates = append(candidates,
				math.Abs(high[i]-closes[i-1]),
				math.Abs(low[i]-closes[i-1]),
			)
		}
		for _, c := range candidates {
			if math.IsNaN(c) {
				continue
			}
			if math.IsNaN(best) || c > best {
				best = c
			}
		}
		out[i] = best
	}
	return out
}

// directionalIndex uses the raw high difference for +DM and the absolute
// low difference for -DM
func directionalIndex(high, low, atr []float64, period int) (plus, minus []float64) {
	plusDM := diff(high)
	minusDM := diff(low)
	for i, v := range minusDM {
		minusDM[i] = math.Abs(v)
	}
	plusMean := rollingMean(plusDM, period)
	minusMean := rollingMean(minusDM, period)

	plus = nanSlice(len(high))
	minus = nanSlice(len(high))
	for i := range plus {
		plus[i] = 100 * plusMean[i] / atr[i]
		minus[i] = 100 * minusMean[i] / atr[i]
	}
	return plus, minus
}

func averageDirectional(plus, minus []float64, period int) []float64 {
	dx := make([]float64, len(plus))
	for i := range dx {
		dx[i] = math.Abs(plus[i]-minus[i]) / (plus[i] + minus[i])
	}
	adx := rollingMean(dx, period)
	for i := range adx {
		adx[i] *= 100
	}
	return adx
}
