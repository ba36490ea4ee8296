package feature

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tunogya/augur/pkg/window"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func isMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func anyMissing(values []float64) bool {
	for _, v := range values {
		if isMissing(v) {
			return true
		}
	}
	return false
}

// rollingApply evaluates fn over every full window of n values.
// Windows containing a missing value yield NaN.
func rollingApply(values []float64, n int, fn func([]float64) float64) []float64 {
	out := nanSlice(len(values))
	rb := window.NewRingBuffer[float64](n)
	for i, v := range values {
		rb.Push(v)
		if !rb.IsFull() {
			continue
		}
		win := rb.ToSlice()
		if anyMissing(win) {
			continue
		}
		out[i] = fn(win)
	}
	return out
}

func rollingMean(values []float64, n int) []float64 {
	return rollingApply(values, n, func(w []float64) float64 {
		return stat.Mean(w, nil)
	})
}

// rollingStd uses the sample (n-1) standard deviation
func rollingStd(values []float64, n int) []float64 {
	return rollingApply(values, n, func(w []float64) float64 {
		return stat.StdDev(w, nil)
	})
}

// shift moves values k periods later, padding the head with NaN
func shift(values []float64, k int) []float64 {
	out := nanSlice(len(values))
	for i := k; i < len(values); i++ {
		out[i] = values[i-k]
	}
	return out
}

func diff(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

// ema is an exponential moving average with alpha = 2/(span+1),
// seeded with the first present value and without bias adjustment
func ema(values []float64, span int) []float64 {
	alpha := 2 / (float64(span) + 1)
	out := nanSlice(len(values))
	prev := math.NaN()
	for i, v := range values {
		switch {
		case isMissing(v):
			out[i] = prev
			continue
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// ffill replaces missing values with the last present value and
// returns how many cells were filled. Leading gaps stay missing.
func ffill(values []float64) int {
	filled := 0
	last := math.NaN()
	for i, v := range values {
		if !isMissing(v) {
			last = v
			continue
		}
		if !math.IsNaN(last) {
			values[i] = last
			filled++
		}
	}
	return filled
}
