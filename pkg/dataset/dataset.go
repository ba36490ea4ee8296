package dataset

import (
	"errors"
	"fmt"
	"math"

	"github.com/tunogya/augur/pkg/feature"
	"github.com/tunogya/augur/pkg/window"
)

// ErrInsufficientData is returned when a split or window set would be empty
var ErrInsufficientData = errors.New("insufficient data")

// DefaultSplitRatio is the share of rows used for training
const DefaultSplitRatio = 0.8

// Partition is one side of a time-ordered split, already scaled
type Partition struct {
	X [][]float64
	Y []float64
}

// Split holds scaled train and validation partitions together with the
// scalers fit on the training rows
type Split struct {
	Index   int // first validation row in the frame
	Train   Partition
	Val     Partition
	ScalerX *feature.MinMaxScaler
	ScalerY *feature.MinMaxScaler
}

// Dataset is a split plus its sequence windows
type Dataset struct {
	*Split
	NSteps       int
	TrainWindows [][][]float64
	TrainTargets []float64
	ValWindows   [][][]float64
	ValTargets   []float64
}

// SplitIndex returns floor(ratio * n)
func SplitIndex(n int, ratio float64) int {
	return int(math.Floor(ratio * float64(n)))
}

// SplitAndScale partitions the frame at floor(ratio * N) and fits
// min-max scalers on the training rows only
func SplitAndScale(f *feature.Frame, ratio float64) (*Split, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("split ratio %v outside (0, 1)", ratio)
	}
	n := f.Len()
	k := SplitIndex(n, ratio)
	if k == 0 || k == n {
		return nil, fmt.Errorf("%w: %d rows cannot be split at %v", ErrInsufficientData, n, ratio)
	}

	scalerX := &feature.MinMaxScaler{}
	if err := scalerX.Fit(f.X[:k]); err != nil {
		return nil, fmt.Errorf("failed to fit feature scaler: %w", err)
	}
	scalerY := &feature.MinMaxScaler{}
	if err := scalerY.FitVector(f.Y[:k]); err != nil {
		return nil, fmt.Errorf("failed to fit target scaler: %w", err)
	}

	return &Split{
		Index: k,
		Train: Partition{
			X: scalerX.Transform(f.X[:k]),
			Y: scalerY.TransformVector(f.Y[:k]),
		},
		Val: Partition{
			X: scalerX.Transform(f.X[k:]),
			Y: scalerY.TransformVector(f.Y[k:]),
		},
		ScalerX: scalerX,
		ScalerY: scalerY,
	}, nil
}

// Build splits, scales and windows the frame. Train and validation
// partitions are windowed independently.
func Build(f *feature.Frame, ratio float64, nSteps int) (*Dataset, error) {
	if nSteps <= 0 {
		return nil, fmt.Errorf("n_steps must be positive, got %d", nSteps)
	}
	split, err := SplitAndScale(f, ratio)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Split: split, NSteps: nSteps}
	ds.TrainWindows, ds.TrainTargets = window.MakeWindows(split.Train.X, split.Train.Y, nSteps)
	ds.ValWindows, ds.ValTargets = window.MakeWindows(split.Val.X, split.Val.Y, nSteps)

	if len(ds.TrainWindows) == 0 {
		return nil, fmt.Errorf("%w: %d training rows for %d steps", ErrInsufficientData, len(split.Train.X), nSteps)
	}
	if len(ds.ValWindows) == 0 {
		return nil, fmt.Errorf("%w: %d validation rows for %d steps", ErrInsufficientData, len(split.Val.X), nSteps)
	}
	return ds, nil
}

// FrameIndex maps validation window i to its row in the frame
func (d *Dataset) FrameIndex(i int) int {
	return d.Index + d.NSteps + i
}

// Features returns the width of a window row
func (d *Dataset) Features() int {
	return len(d.TrainWindows[0][0])
}
