package dataset

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/feature"
)

func frame(t *testing.T, bars int) *feature.Frame {
	t.Helper()
	table, err := feature.ComputeIndicators(data.GenerateBars("X", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), bars, 21))
	if err != nil {
		t.Fatalf("indicators: %v", err)
	}
	f, err := feature.FormatFeature(table)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return f
}

func TestSplitIndex(t *testing.T) {
	cases := map[int]int{249: 199, 250: 200, 10: 8, 1: 0, 5: 4}
	for n, want := range cases {
		if got := SplitIndex(n, 0.8); got != want {
			t.Fatalf("SplitIndex(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	f := frame(t, 200)
	a, err := SplitAndScale(f, 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	b, err := SplitAndScale(f, 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if a.Index != b.Index || len(a.Train.X) != len(b.Train.X) {
		t.Fatalf("split not deterministic")
	}
	for i := range a.Val.X {
		for c := range a.Val.X[i] {
			if a.Val.X[i][c] != b.Val.X[i][c] {
				t.Fatalf("scaled values differ at %d,%d", i, c)
			}
		}
	}
	for c := range a.ScalerX.Min {
		if a.ScalerX.Min[c] != b.ScalerX.Min[c] || a.ScalerX.Range[c] != b.ScalerX.Range[c] {
			t.Fatalf("scaler statistics differ at column %d", c)
		}
	}
}

// Scaler statistics must depend on training rows only.
func TestScalerIgnoresValidation(t *testing.T) {
	f := frame(t, 200)
	base, err := SplitAndScale(f, 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	k := base.Index
	for j := k; j < f.Len(); j++ {
		for c := range f.X[j] {
			f.X[j][c] *= 10
		}
		f.Y[j] = 5
	}
	changed, err := SplitAndScale(f, 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for c := range base.ScalerX.Min {
		if base.ScalerX.Min[c] != changed.ScalerX.Min[c] || base.ScalerX.Range[c] != changed.ScalerX.Range[c] {
			t.Fatalf("column %d scaler changed with validation data", c)
		}
	}
	if base.ScalerY.Min[0] != changed.ScalerY.Min[0] || base.ScalerY.Range[0] != changed.ScalerY.Range[0] {
		t.Fatalf("target scaler changed with validation data")
	}
	for i := range base.Train.X {
		if base.Train.X[i][0] != changed.Train.X[i][0] {
			t.Fatalf("training rows changed")
		}
	}
}

func TestTrainScaledIntoUnitRange(t *testing.T) {
	s, err := SplitAndScale(frame(t, 200), 0.8)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for _, row := range s.Train.X {
		for _, v := range row {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("training value %v outside [0, 1]", v)
			}
		}
	}
}

func TestBuildWindowCounts(t *testing.T) {
	f := frame(t, 300)
	ds, err := Build(f, 0.8, 30)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	n := f.Len()
	k := SplitIndex(n, 0.8)
	if len(ds.TrainWindows) != k-30 {
		t.Fatalf("expected %d train windows, got %d", k-30, len(ds.TrainWindows))
	}
	if len(ds.ValWindows) != n-k-30 {
		t.Fatalf("expected %d validation windows, got %d", n-k-30, len(ds.ValWindows))
	}
	if ds.FrameIndex(0) != k+30 {
		t.Fatalf("unexpected frame index %d", ds.FrameIndex(0))
	}
	if ds.Features() != 23 {
		t.Fatalf("expected 23 features, got %d", ds.Features())
	}
}

func TestBuildInsufficientData(t *testing.T) {
	f := frame(t, 120) // 69 rows: 55 train, 14 validation
	if _, err := Build(f, 0.8, 30); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := SplitAndScale(&feature.Frame{}, 0.8); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData for empty frame, got %v", err)
	}
}
