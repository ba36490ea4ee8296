package train

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/dataset"
	"github.com/tunogya/augur/pkg/feature"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/nn"
)

func buildDataset(t *testing.T) (*dataset.Dataset, *feature.Frame) {
	t.Helper()
	bars := data.GenerateBars("TEST", time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), 300, 17)
	table, err := feature.ComputeIndicators(bars)
	if err != nil {
		t.Fatalf("indicators: %v", err)
	}
	f, err := feature.FormatFeature(table)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	ds, err := dataset.Build(f, dataset.DefaultSplitRatio, 30)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return ds, f
}

func newTrainer(t *testing.T, cfg Config, cell model.ModelType, inputs int) *Trainer {
	t.Helper()
	rt := nn.NewRuntime(42)
	m, err := nn.NewRegressor(nn.Config{InputSize: inputs, HiddenSize: 4, NumLayers: 2, Dropout: 0.2, Cell: cell}, rt)
	if err != nil {
		t.Fatalf("regressor: %v", err)
	}
	return NewTrainer(cfg, m, rt, zerolog.Nop())
}

func TestLearningRateSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[int]float64{0: 1e-3, 49: 1e-3, 50: 1e-4, 99: 1e-4}
	for epoch, want := range cases {
		if got := cfg.LearningRateAt(epoch); math.Abs(got-want) > 1e-15 {
			t.Fatalf("epoch %d: lr %v, want %v", epoch, got, want)
		}
	}
	cfg.StepSize = 0
	if cfg.LearningRateAt(500) != cfg.LearningRate {
		t.Fatalf("zero step size should keep the base rate")
	}
}

func TestFitAndEvaluate(t *testing.T) {
	ds, f := buildDataset(t)
	cfg := Config{Epochs: 3, BatchSize: 32, LearningRate: 1e-2, StepSize: 2, Gamma: 0.5}

	for _, cell := range []model.ModelType{model.ModelLSTM, model.ModelGRU} {
		t.Run(string(cell), func(t *testing.T) {
			tr := newTrainer(t, cfg, cell, ds.Features())

			var epochs []int
			tr.OnEpoch(func(epoch int, _, _ float64) { epochs = append(epochs, epoch) })

			history, err := tr.Fit(context.Background(), ds)
			if err != nil {
				t.Fatalf("fit: %v", err)
			}
			if len(history.TrainLoss) != 3 || len(history.ValLoss) != 3 || len(epochs) != 3 {
				t.Fatalf("expected 3 epochs of history, got %d/%d hooks %v", len(history.TrainLoss), len(history.ValLoss), epochs)
			}
			if tr.State() != StateEvaluating {
				t.Fatalf("expected evaluating state, got %s", tr.State())
			}

			eval, err := tr.Evaluate(context.Background(), ds, f)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if tr.State() != StateDone {
				t.Fatalf("expected done state, got %s", tr.State())
			}
			if len(eval.Records) != len(ds.ValWindows) {
				t.Fatalf("expected %d records, got %d", len(ds.ValWindows), len(eval.Records))
			}

			first := f.Dates[ds.Index+ds.NSteps]
			last := f.Dates[f.Len()-1]
			for i, rec := range eval.Records {
				if rec.Date.Before(first) || rec.Date.After(last) {
					t.Fatalf("record %d dated %v outside [%v, %v]", i, rec.Date, first, last)
				}
				j := ds.FrameIndex(i)
				if want := (1 + eval.Returns[i]) * f.PrevClose[j]; math.Abs(rec.PredictedPrice-want) > 1e-9 {
					t.Fatalf("record %d price %v, want %v", i, rec.PredictedPrice, want)
				}
				if rec.ActualPrice != f.Close[j] || rec.PrevClose != f.PrevClose[j] || math.Abs(rec.ActualReturnPct-f.Y[j]*100) > 1e-12 {
					t.Fatalf("record %d actuals misaligned", i)
				}
				if len(eval.Contexts[i]) != 8 {
					t.Fatalf("expected context of size 8, got %d", len(eval.Contexts[i]))
				}
			}
		})
	}
}

func TestFitIsDeterministic(t *testing.T) {
	ds, f := buildDataset(t)
	cfg := Config{Epochs: 2, BatchSize: 64, LearningRate: 1e-3, StepSize: 50, Gamma: 0.1}

	run := func() []model.PredictionRecord {
		tr := newTrainer(t, cfg, model.ModelGRU, ds.Features())
		if _, err := tr.Fit(context.Background(), ds); err != nil {
			t.Fatalf("fit: %v", err)
		}
		eval, err := tr.Evaluate(context.Background(), ds, f)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		return eval.Records
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("record %d differs between identical runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFitDiverges(t *testing.T) {
	ds, _ := buildDataset(t)
	targets := append([]float64(nil), ds.TrainTargets...)
	targets[3] = math.NaN()
	broken := *ds
	broken.TrainTargets = targets

	tr := newTrainer(t, Config{Epochs: 1, BatchSize: 16, LearningRate: 1e-3}, model.ModelLSTM, ds.Features())
	if _, err := tr.Fit(context.Background(), &broken); !errors.Is(err, ErrTrainingDiverged) {
		t.Fatalf("expected ErrTrainingDiverged, got %v", err)
	}
	if tr.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", tr.State())
	}
}

func TestFitCanceled(t *testing.T) {
	ds, _ := buildDataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := newTrainer(t, DefaultConfig(), model.ModelLSTM, ds.Features())
	if _, err := tr.Fit(ctx, ds); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", tr.State())
	}
}

func TestEvaluateBeforeFit(t *testing.T) {
	ds, f := buildDataset(t)
	tr := newTrainer(t, DefaultConfig(), model.ModelGRU, ds.Features())
	if _, err := tr.Evaluate(context.Background(), ds, f); err == nil {
		t.Fatalf("expected error evaluating an untrained model")
	}
}
