package feature

import (
	"fmt"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// Frame is the model-ready feature matrix and return target.
// Row j describes table row j+1: X[j] holds its features and Y[j] the
// close-to-close return into it.
type Frame struct {
	Columns   []string
	Dates     []time.Time
	X         [][]float64
	Y         []float64
	Close     []float64 // close on Dates[j]
	PrevClose []float64 // close of the preceding table row, the base of Y[j]
	FilledX   int       // cells of X forward-filled
	FilledY   int       // cells of Y forward-filled
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.Y)
}

// FormatFeature selects the fixed feature columns and computes the
// percentage-return target. The first table row has no return and is dropped.
func FormatFeature(t *Table) (*Frame, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil table", ErrSchema)
	}
	f := &Frame{Columns: append([]string(nil), model.FeatureColumns...)}
	if t.Len() < 2 {
		return f, nil
	}

	n := t.Len() - 1
	f.Dates = make([]time.Time, n)
	f.X = make([][]float64, n)
	f.Y = make([]float64, n)
	f.Close = make([]float64, n)
	f.PrevClose = make([]float64, n)

	for j := 0; j < n; j++ {
		prev := t.Rows[j]
		cur := t.Rows[j+1]
		f.Dates[j] = cur.Date
		f.X[j] = cur.Values()
		f.Close[j] = cur.Close
		f.PrevClose[j] = prev.Close
		f.Y[j] = cur.Close/prev.Close - 1
	}

	for c := range f.Columns {
		col := make([]float64, n)
		for j := range f.X {
			col[j] = f.X[j][c]
		}
		f.FilledX += fillColumn(col)
		for j := range f.X {
			f.X[j][c] = col[j]
		}
	}
	f.FilledY = fillColumn(f.Y)

	return f, nil
}

// fillColumn forward-fills a column; leading gaps fall back to zero
func fillColumn(col []float64) int {
	filled := ffill(col)
	for i, v := range col {
		if !isMissing(v) {
			break
		}
		col[i] = 0
		filled++
	}
	return filled
}
