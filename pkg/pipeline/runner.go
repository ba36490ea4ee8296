package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/artifact"
	"github.com/tunogya/augur/pkg/chart"
	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/dataset"
	"github.com/tunogya/augur/pkg/feature"
	"github.com/tunogya/augur/pkg/metrics"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/nn"
	"github.com/tunogya/augur/pkg/outcome"
	"github.com/tunogya/augur/pkg/telemetry"
	"github.com/tunogya/augur/pkg/train"
)

// Result is everything one (ticker, model) run produced
type Result struct {
	RunID     string
	Ticker    string
	ModelType model.ModelType
	NSteps    int
	CreatedAt time.Time
	Table     *feature.Table
	FilledX   int
	FilledY   int
	History   *train.History
	Records   []model.PredictionRecord
	Contexts  []*model.PredictionContext
	Metrics   model.Metrics
	Earnings  outcome.Result
	Paths     artifact.Paths
}

// Run converts the result into a run record
func (r *Result) Run() *model.RunRecord {
	epochs := 0
	if r.History != nil {
		epochs = len(r.History.TrainLoss)
	}
	return &model.RunRecord{
		RunID:     r.RunID,
		Ticker:    r.Ticker,
		ModelType: r.ModelType,
		NSteps:    r.NSteps,
		Epochs:    epochs,
		Metrics:   r.Metrics,
		CreatedAt: r.CreatedAt,
	}
}

// Losses returns the per-epoch losses
func (r *Result) Losses() []model.EpochLoss {
	if r.History == nil {
		return nil
	}
	out := make([]model.EpochLoss, len(r.History.TrainLoss))
	for i := range r.History.TrainLoss {
		out[i] = model.EpochLoss{Epoch: i + 1, TrainLoss: r.History.TrainLoss[i], ValLoss: r.History.ValLoss[i]}
	}
	return out
}

// Runner executes training runs
type Runner struct {
	cfg      *config.Config
	provider data.BarProvider
	writer   *artifact.Writer
	earnings *outcome.Engine
	sinks    []Sink
	recorder *telemetry.Recorder
	log      zerolog.Logger
	locks    keyedMutex
}

// Option configures a Runner
type Option func(*Runner)

// WithSinks adds optional result sinks
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithRecorder exports run metrics to Prometheus
func WithRecorder(rec *telemetry.Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// NewRunner creates a runner writing artifacts under cfg.Run.SaveDir
func NewRunner(cfg *config.Config, provider data.BarProvider, log zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		provider: provider,
		writer:   artifact.NewWriter(cfg.Run.SaveDir, log),
		earnings: outcome.NewEngine(outcome.DefaultConfig()),
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Override adjusts model settings for a single run
type Override func(*config.ModelConfig)

// Epochs overrides the epoch count when n > 0
func Epochs(n int) Override {
	return func(m *config.ModelConfig) {
		if n > 0 {
			m.Epochs = n
		}
	}
}

// BatchSize overrides the batch size when n > 0
func BatchSize(n int) Override {
	return func(m *config.ModelConfig) {
		if n > 0 {
			m.BatchSize = n
		}
	}
}

// LearningRate overrides the base learning rate when lr > 0
func LearningRate(lr float64) Override {
	return func(m *config.ModelConfig) {
		if lr > 0 {
			m.LearningRate = lr
		}
	}
}

// Writer returns the artifact writer
func (r *Runner) Writer() *artifact.Writer {
	return r.writer
}

// RunTicker trains and evaluates one model on one ticker. Runs on the same
// (ticker, model) pair are serialized since they write the same artifacts.
func (r *Runner) RunTicker(ctx context.Context, ticker string, mt model.ModelType, overrides ...Override) (*Result, error) {
	unlock := r.locks.lock(ticker + "|" + string(mt))
	defer unlock()

	if r.cfg.Run.TickerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Run.TickerTimeout)
		defer cancel()
	}

	mc := r.cfg.Model
	for _, o := range overrides {
		o(&mc)
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Ticker:    ticker,
		ModelType: mt,
		NSteps:    mc.NSteps,
		CreatedAt: time.Now().UTC(),
	}
	log := r.log.With().
		Str("ticker", ticker).
		Str("model_type", string(mt)).
		Str("run_id", res.RunID).
		Logger()

	started := time.Now()
	err := r.run(ctx, mc, res, log)
	switch {
	case err == nil:
		r.recorder.RecordRun(string(mt), telemetry.StatusOK, time.Since(started))
	case errors.Is(err, data.ErrNoData):
		r.recorder.RecordRun(string(mt), telemetry.StatusSkipped, time.Since(started))
	default:
		r.recorder.RecordRun(string(mt), telemetry.StatusFailed, time.Since(started))
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, mc config.ModelConfig, res *Result, log zerolog.Logger) error {
	start, end, err := r.cfg.Data.Range()
	if err != nil {
		return err
	}

	bars, err := r.provider.Fetch(ctx, res.Ticker, start, end)
	if err != nil {
		return fmt.Errorf("failed to fetch bars: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("%w: %s", data.ErrNoData, res.Ticker)
	}

	table, err := feature.ComputeIndicators(bars)
	if err != nil {
		return fmt.Errorf("failed to compute indicators: %w", err)
	}
	frame, err := feature.FormatFeature(table)
	if err != nil {
		return fmt.Errorf("failed to format features: %w", err)
	}
	res.Table = table
	res.FilledX, res.FilledY = frame.FilledX, frame.FilledY
	if frame.FilledX > 0 || frame.FilledY > 0 {
		log.Warn().Int("filled_x", frame.FilledX).Int("filled_y", frame.FilledY).Msg("forward-filled missing feature cells")
	}

	ds, err := dataset.Build(frame, mc.SplitRatio, mc.NSteps)
	if err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}
	log.Info().
		Int("bars", len(bars)).
		Int("rows", frame.Len()).
		Int("train_windows", len(ds.TrainWindows)).
		Int("val_windows", len(ds.ValWindows)).
		Msg("dataset ready")

	rt := nn.NewRuntime(mc.Seed)
	net, err := nn.NewRegressor(mc.Network(ds.Features(), res.ModelType), rt)
	if err != nil {
		return err
	}
	trainer := train.NewTrainer(mc.Training(), net, rt, log)
	trainer.OnEpoch(func(epoch int, trainLoss, valLoss float64) {
		r.recorder.RecordEpoch(res.Ticker, string(res.ModelType), trainLoss, valLoss)
		if (epoch+1)%10 == 0 {
			log.Info().Int("epoch", epoch+1).Float64("train_loss", trainLoss).Float64("val_loss", valLoss).Msg("training")
		}
	})

	res.History, err = trainer.Fit(ctx, ds)
	if err != nil {
		return fmt.Errorf("failed to train: %w", err)
	}
	eval, err := trainer.Evaluate(ctx, ds, frame)
	if err != nil {
		return fmt.Errorf("failed to evaluate: %w", err)
	}
	if len(eval.Records) == 0 {
		return fmt.Errorf("%w: no validation predictions", dataset.ErrInsufficientData)
	}
	res.Records = eval.Records

	res.Metrics, err = metrics.FromRecords(eval.Records)
	if errors.Is(err, metrics.ErrUndefinedAccuracy) {
		log.Warn().Err(err).Msg("accuracy undefined")
	} else if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	res.Contexts = make([]*model.PredictionContext, len(eval.Records))
	for i, rec := range eval.Records {
		res.Contexts[i] = model.NewPredictionContext(res.RunID, res.Ticker, res.ModelType, rec.Date, mc.NSteps, eval.Returns[i], eval.Contexts[i])
	}
	res.Earnings = r.earnings.Calculate(res.Ticker, res.ModelType, eval.Records)

	if err := r.writeArtifacts(res); err != nil {
		return err
	}
	r.recorder.RecordResult(res.Ticker, string(res.ModelType), res.Metrics.Accuracy, len(res.Records))

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, res); err != nil {
			r.recorder.RecordSinkError(sink.Name())
			log.Error().Err(err).Str("sink", sink.Name()).Msg("failed to write run to sink")
		}
	}

	log.Info().
		Float64("accuracy", res.Metrics.Accuracy).
		Float64("rmse", res.Metrics.RMSE).
		Float64("mae", res.Metrics.MAE).
		Float64("strategy_return", res.Earnings.StrategyTotal()).
		Float64("naive_return", res.Earnings.NaiveTotal()).
		Int("predictions", len(res.Records)).
		Msg("run complete")
	return nil
}

func (r *Runner) writeArtifacts(res *Result) error {
	res.Paths = r.writer.Paths(res.Ticker, res.ModelType)
	if err := r.writer.WritePredictions(res.Ticker, res.ModelType, res.Records); err != nil {
		return err
	}
	if err := r.writer.WriteMetrics(res.Ticker, res.ModelType, res.Metrics); err != nil {
		return err
	}
	if !r.cfg.Run.Charts {
		return nil
	}
	charts := []struct {
		name string
		draw func() error
	}{
		{"prediction", func() error { return chart.Predictions(res.Paths.PredictionPlot, res.Ticker, res.ModelType, res.Records) }},
		{"loss", func() error { return chart.Loss(res.Paths.LossPlot, res.Ticker, res.ModelType, res.History) }},
		{"earnings", func() error { return chart.Earnings(res.Paths.EarningsPlot, res.Earnings) }},
	}
	for _, c := range charts {
		if err := c.draw(); err != nil {
			return fmt.Errorf("%w: %s chart: %v", artifact.ErrArtifactWrite, c.name, err)
		}
	}
	return nil
}

// Safe runs RunTicker and converts any error or panic into a nil result,
// so boundary callers always get a well-formed response
func (r *Runner) Safe(ctx context.Context, ticker string, mt model.ModelType, overrides ...Override) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("ticker", ticker).Str("model_type", string(mt)).Msg("run panicked")
			res = nil
		}
	}()
	res, err := r.RunTicker(ctx, ticker, mt, overrides...)
	if err != nil {
		r.log.Error().Err(err).Str("ticker", ticker).Str("model_type", string(mt)).Msg("run failed")
		return nil
	}
	return res
}

// keyedMutex hands out one mutex per key
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
