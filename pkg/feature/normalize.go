package feature

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// MinMaxScaler scales each column to [0, 1] using statistics of the rows it was fit on
type MinMaxScaler struct {
	Min   []float64
	Range []float64 // max - min, or 1 for constant columns
}

// Fit computes per-column minimum and range. Only training rows may be passed here.
func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("cannot fit scaler on zero rows")
	}
	width := len(rows[0])
	s.Min = make([]float64, width)
	s.Range = make([]float64, width)

	col := make([]float64, len(rows))
	for c := 0; c < width; c++ {
		for i, r := range rows {
			if len(r) != width {
				return fmt.Errorf("row %d has %d columns, want %d", i, len(r), width)
			}
			col[i] = r[c]
		}
		lo, hi := floats.Min(col), floats.Max(col)
		rangeVal := hi - lo
		if rangeVal == 0 {
			rangeVal = 1
		}
		s.Min[c] = lo
		s.Range[c] = rangeVal
	}
	return nil
}

// FitVector fits a single-column scaler
func (s *MinMaxScaler) FitVector(values []float64) error {
	return s.Fit(asColumn(values))
}

// Transform returns scaled copies of rows. Values outside the fitted
// range map outside [0, 1]; nothing is clamped.
func (s *MinMaxScaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		scaled := make([]float64, len(r))
		for c, v := range r {
			scaled[c] = (v - s.Min[c]) / s.Range[c]
		}
		out[i] = scaled
	}
	return out
}

// TransformVector scales a single-column series
func (s *MinMaxScaler) TransformVector(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Min[0]) / s.Range[0]
	}
	return out
}

// Inverse maps a scaled value of column c back to its original units
func (s *MinMaxScaler) Inverse(c int, v float64) float64 {
	return v*s.Range[c] + s.Min[c]
}

// InverseRows maps scaled rows back to original units
func (s *MinMaxScaler) InverseRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		orig := make([]float64, len(r))
		for c, v := range r {
			orig[c] = s.Inverse(c, v)
		}
		out[i] = orig
	}
	return out
}

func asColumn(values []float64) [][]float64 {
	rows := make([][]float64, len(values))
	for i := range values {
		rows[i] = values[i : i+1]
	}
	return rows
}
