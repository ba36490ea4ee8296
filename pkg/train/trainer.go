package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/dataset"
	"github.com/tunogya/augur/pkg/feature"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/nn"
	"github.com/tunogya/augur/pkg/window"
)

// ErrTrainingDiverged is returned when a loss or prediction becomes non-finite
var ErrTrainingDiverged = errors.New("training diverged")

// State is the trainer lifecycle stage
type State int

const (
	StateInit State = iota
	StateTraining
	StateEvaluating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTraining:
		return "training"
	case StateEvaluating:
		return "evaluating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds optimization settings
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	StepSize     int     // epochs between learning-rate decays
	Gamma        float64 // learning-rate decay factor
}

// DefaultConfig returns 100 epochs of batch-64 Adam at 1e-3, decayed 10x every 50 epochs
func DefaultConfig() Config {
	return Config{
		Epochs:       100,
		BatchSize:    64,
		LearningRate: 1e-3,
		StepSize:     50,
		Gamma:        0.1,
	}
}

// LearningRateAt returns the step-decayed learning rate for a 0-based epoch
func (c Config) LearningRateAt(epoch int) float64 {
	if c.StepSize <= 0 {
		return c.LearningRate
	}
	return c.LearningRate * math.Pow(c.Gamma, float64(epoch/c.StepSize))
}

// History holds per-epoch mean batch losses
type History struct {
	TrainLoss []float64 `json:"train_loss"`
	ValLoss   []float64 `json:"val_loss"`
}

// EpochHook is called after every completed epoch
type EpochHook func(epoch int, trainLoss, valLoss float64)

// Evaluation is the inference output over the validation windows
type Evaluation struct {
	Records  []model.PredictionRecord
	Returns  []float64   // predicted return as a fraction, per record
	Contexts [][]float64 // attention context per record
}

// Trainer fits a regressor and runs inference on the validation windows
type Trainer struct {
	cfg   Config
	model *nn.Regressor
	opt   *nn.Adam
	rt    *nn.Runtime
	log   zerolog.Logger
	state State
	hook  EpochHook
}

// NewTrainer creates a trainer over m using the run's execution context rt
func NewTrainer(cfg Config, m *nn.Regressor, rt *nn.Runtime, log zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:   cfg,
		model: m,
		opt:   nn.NewAdam(m.Params(), cfg.LearningRate),
		rt:    rt,
		log:   log,
		state: StateInit,
	}
}

// OnEpoch registers a per-epoch callback
func (t *Trainer) OnEpoch(hook EpochHook) {
	t.hook = hook
}

// State returns the current lifecycle stage
func (t *Trainer) State() State {
	return t.state
}

func (t *Trainer) fail(err error) error {
	t.state = StateFailed
	return err
}

// Fit trains for the configured number of epochs. Batches are taken in
// time order without shuffling; the context is checked between batches.
func (t *Trainer) Fit(ctx context.Context, ds *dataset.Dataset) (*History, error) {
	if t.state != StateInit {
		return nil, fmt.Errorf("cannot fit in state %s", t.state)
	}
	if t.cfg.Epochs <= 0 || t.cfg.BatchSize <= 0 {
		return nil, t.fail(fmt.Errorf("invalid training config: epochs=%d batch_size=%d", t.cfg.Epochs, t.cfg.BatchSize))
	}
	t.state = StateTraining

	history := &History{}
	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		t.opt.LR = t.cfg.LearningRateAt(epoch)

		t.rt.Train()
		trainLoss, err := t.runEpoch(ctx, ds.TrainWindows, ds.TrainTargets, true)
		if err != nil {
			return history, t.fail(fmt.Errorf("epoch %d: %w", epoch+1, err))
		}

		t.rt.Eval()
		valLoss, err := t.runEpoch(ctx, ds.ValWindows, ds.ValTargets, false)
		if err != nil {
			return history, t.fail(fmt.Errorf("epoch %d: %w", epoch+1, err))
		}

		history.TrainLoss = append(history.TrainLoss, trainLoss)
		history.ValLoss = append(history.ValLoss, valLoss)
		t.log.Debug().
			Int("epoch", epoch+1).
			Float64("lr", t.opt.LR).
			Float64("train_loss", trainLoss).
			Float64("val_loss", valLoss).
			Msg("epoch complete")
		if t.hook != nil {
			t.hook(epoch, trainLoss, valLoss)
		}
	}

	t.state = StateEvaluating
	return history, nil
}

func (t *Trainer) runEpoch(ctx context.Context, windows [][][]float64, targets []float64, training bool) (float64, error) {
	batches := window.Batches(len(windows), t.cfg.BatchSize)
	if len(batches) == 0 {
		return 0, nil
	}

	total := 0.0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		size := float64(b[1] - b[0])
		if training {
			t.opt.ZeroGrad()
		}

		loss := 0.0
		for i := b[0]; i < b[1]; i++ {
			tape := t.model.Forward(t.rt, windows[i])
			diff := tape.Output - targets[i]
			loss += diff * diff
			if training {
				t.model.Backward(tape, 2*diff/size)
			}
		}
		loss /= size
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return loss, fmt.Errorf("%w: loss is %v", ErrTrainingDiverged, loss)
		}
		if training {
			t.opt.Step()
		}
		total += loss
	}
	return total / float64(len(batches)), nil
}

// Evaluate predicts every validation window one at a time. Window i targets
// frame row j = split + n_steps + i; the predicted return is inverse-scaled
// and applied to the close preceding row j.
func (t *Trainer) Evaluate(ctx context.Context, ds *dataset.Dataset, f *feature.Frame) (*Evaluation, error) {
	if t.state != StateEvaluating {
		return nil, fmt.Errorf("cannot evaluate in state %s", t.state)
	}
	t.rt.Eval()

	eval := &Evaluation{}
	for i, w := range ds.ValWindows {
		if err := ctx.Err(); err != nil {
			return nil, t.fail(err)
		}
		j := ds.FrameIndex(i)
		if j >= f.Len() {
			continue
		}

		scaled, tape := t.model.Predict(w)
		r := ds.ScalerY.Inverse(0, scaled)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, t.fail(fmt.Errorf("%w: prediction for %s is %v", ErrTrainingDiverged, f.Dates[j].Format("2006-01-02"), r))
		}

		eval.Records = append(eval.Records, model.PredictionRecord{
			Date:               f.Dates[j],
			PredictedPrice:     (1 + r) * f.PrevClose[j],
			PredictedReturnPct: r * 100,
			ActualReturnPct:    f.Y[j] * 100,
			ActualPrice:        f.Close[j],
			PrevClose:          f.PrevClose[j],
		})
		eval.Returns = append(eval.Returns, r)
		eval.Contexts = append(eval.Contexts, tape.Context())
	}

	t.state = StateDone
	return eval, nil
}
