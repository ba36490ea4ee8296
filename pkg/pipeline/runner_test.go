package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/queue/nats"
	"github.com/tunogya/augur/pkg/store/duckdb"
	"github.com/tunogya/augur/pkg/telemetry"
)

var start = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Run.SaveDir = t.TempDir()
	cfg.Run.Workers = 2
	cfg.Run.Charts = false
	cfg.Model.NSteps = 10
	cfg.Model.HiddenSize = 4
	cfg.Model.NumLayers = 1
	cfg.Model.Epochs = 3
	cfg.Model.BatchSize = 32
	return cfg
}

func testProvider(tickers ...string) *data.MemoryProvider {
	p := data.NewMemoryProvider()
	for i, tk := range tickers {
		p.AddBars(tk, data.GenerateBars(tk, start, 300, uint64(i+1)))
	}
	return p
}

type captureSink struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Write(_ context.Context, res *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return s.err
}

type capturePublisher struct {
	subjects []string
	payloads []any
}

func (p *capturePublisher) PublishJSON(_ context.Context, subject string, v any) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, v)
	return nil
}

type panicProvider struct{}

func (panicProvider) Fetch(context.Context, string, time.Time, time.Time) ([]model.Bar, error) {
	panic("boom")
}

func TestRunTickerProducesArtifacts(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Charts = true
	r := NewRunner(cfg, testProvider("AAA"), zerolog.Nop())

	res, err := r.RunTicker(context.Background(), "AAA", model.ModelLSTM)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if len(res.Records) == 0 || len(res.Contexts) != len(res.Records) {
		t.Fatalf("expected one context per record, got %d records and %d contexts", len(res.Records), len(res.Contexts))
	}
	if len(res.History.TrainLoss) != cfg.Model.Epochs {
		t.Fatalf("expected %d epochs of history, got %d", cfg.Model.Epochs, len(res.History.TrainLoss))
	}
	if len(res.Losses()) != cfg.Model.Epochs || res.Losses()[0].Epoch != 1 {
		t.Fatalf("unexpected losses %v", res.Losses())
	}
	if res.Run().NSteps != cfg.Model.NSteps {
		t.Fatalf("run record lost n_steps")
	}
	for i, rec := range res.Records {
		if i > 0 && !rec.Date.After(res.Records[i-1].Date) {
			t.Fatalf("records out of order at %d", i)
		}
		if res.Contexts[i].Embedding.Dim() != 2*cfg.Model.HiddenSize {
			t.Fatalf("context dim %d, want %d", res.Contexts[i].Embedding.Dim(), 2*cfg.Model.HiddenSize)
		}
	}

	for _, path := range []string{
		res.Paths.PredictionMap,
		res.Paths.PredictionTable,
		res.Paths.MetricsCSV,
		res.Paths.Summary,
		res.Paths.PredictionPlot,
		res.Paths.LossPlot,
		res.Paths.EarningsPlot,
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("missing artifact %s: %v", path, err)
		}
	}
}

func TestRunTickerMissingData(t *testing.T) {
	r := NewRunner(testConfig(t), testProvider(), zerolog.Nop())
	if _, err := r.RunTicker(context.Background(), "NOPE", model.ModelGRU); !errors.Is(err, data.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestRunBatchContinuesPastFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Charts = true
	r := NewRunner(cfg, testProvider("AAA", "BBB"), zerolog.Nop())

	tickers := []string{"AAA", "MISSING", "BBB"}
	types := []model.ModelType{model.ModelLSTM, model.ModelGRU}
	report, err := r.RunBatch(context.Background(), tickers, types)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if report.Completed != 4 {
		t.Fatalf("expected 4 completed runs, got %d", report.Completed)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %v", report.Failures)
	}
	for _, f := range report.Failures {
		if f.Ticker != "MISSING" || !errors.Is(f.Err, data.ErrNoData) {
			t.Fatalf("unexpected failure %+v", f)
		}
	}
	if report.Failures[0].ModelType != model.ModelLSTM {
		t.Fatalf("failures should keep model order")
	}

	for _, mt := range types {
		entries := report.Tables[mt].Entries()
		if len(entries) != 2 || entries[0].Ticker != "AAA" || entries[1].Ticker != "BBB" {
			t.Fatalf("%s: unexpected entries %v", mt, entries)
		}
		if _, ok := report.Summary(mt); !ok {
			t.Fatalf("%s: expected a summary", mt)
		}
		if _, err := os.Stat(r.Writer().BatchSummary(mt)); err != nil {
			t.Fatalf("%s: missing batch summary: %v", mt, err)
		}
		if agg, ok := report.Earnings[mt]; !ok || agg.SampleCount != 2 {
			t.Fatalf("%s: unexpected earnings aggregate %+v", mt, agg)
		}
	}
	if _, err := os.Stat(r.Writer().ComparisonPlot()); err != nil {
		t.Fatalf("missing comparison chart: %v", err)
	}
}

func TestRunBatchCanceled(t *testing.T) {
	r := NewRunner(testConfig(t), testProvider("AAA"), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RunBatch(ctx, []string{"AAA"}, []model.ModelType{model.ModelLSTM}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunBatchRejectsEmptyInput(t *testing.T) {
	r := NewRunner(testConfig(t), testProvider(), zerolog.Nop())
	if _, err := r.RunBatch(context.Background(), nil, []model.ModelType{model.ModelLSTM}); err == nil {
		t.Fatalf("expected error for empty ticker list")
	}
	if _, err := r.RunBatch(context.Background(), []string{"AAA"}, nil); err == nil {
		t.Fatalf("expected error for empty model list")
	}
}

func TestSinkFailureDoesNotFailRun(t *testing.T) {
	good := &captureSink{}
	bad := &captureSink{err: errors.New("unavailable")}
	rec := telemetry.New()
	r := NewRunner(testConfig(t), testProvider("AAA"), zerolog.Nop(), WithSinks(bad, good), WithRecorder(rec))

	res, err := r.RunTicker(context.Background(), "AAA", model.ModelGRU)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(good.results) != 1 || good.results[0] != res {
		t.Fatalf("expected the good sink to receive the run")
	}
	if len(bad.results) != 1 {
		t.Fatalf("expected the failing sink to be attempted")
	}
}

func TestNATSSinkPublishesBothSubjects(t *testing.T) {
	pub := &capturePublisher{}
	r := NewRunner(testConfig(t), testProvider("AAA"), zerolog.Nop(), WithSinks(NewNATSSink(pub)))

	res, err := r.RunTicker(context.Background(), "AAA", model.ModelLSTM)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.subjects) != 2 || pub.subjects[0] != nats.SubjectPredictionWrite || pub.subjects[1] != nats.SubjectContextWrite {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	batch, ok := pub.payloads[0].(nats.PredictionBatchMsg)
	if !ok {
		t.Fatalf("unexpected payload %T", pub.payloads[0])
	}
	if batch.Run.RunID != res.RunID || len(batch.Records) != len(res.Records) {
		t.Fatalf("prediction batch does not match the run")
	}
	ctxs, ok := pub.payloads[1].(nats.ContextBatchMsg)
	if !ok || len(ctxs.Contexts) != len(res.Contexts) {
		t.Fatalf("context batch does not match the run")
	}
}

func TestDuckDBSinkPersistsRun(t *testing.T) {
	client, err := duckdb.NewClient(":memory:")
	if err != nil {
		t.Fatalf("duckdb: %v", err)
	}
	defer client.Close()

	r := NewRunner(testConfig(t), testProvider("AAA"), zerolog.Nop(), WithSinks(NewDuckDBSink(client)))
	res, err := r.RunTicker(context.Background(), "AAA", model.ModelLSTM)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	ctx := context.Background()
	run, err := duckdb.NewRunRepo(client).GetByID(ctx, res.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Ticker != "AAA" || run.Epochs != len(res.History.TrainLoss) {
		t.Fatalf("unexpected run %+v", run)
	}
	n, err := duckdb.NewPredictionRepo(client).Count(ctx, "AAA", model.ModelLSTM)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if int(n) != len(res.Records) {
		t.Fatalf("expected %d predictions, got %d", len(res.Records), n)
	}
	rows, err := duckdb.NewFeatureRepo(client).GetByTicker(ctx, "AAA")
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	if len(rows) != res.Table.Len() {
		t.Fatalf("expected %d feature rows, got %d", res.Table.Len(), len(rows))
	}
}

func TestSafeSwallowsErrorsAndPanics(t *testing.T) {
	cfg := testConfig(t)
	if res := NewRunner(cfg, testProvider(), zerolog.Nop()).Safe(context.Background(), "NOPE", model.ModelLSTM); res != nil {
		t.Fatalf("expected nil result for missing data")
	}
	if res := NewRunner(cfg, panicProvider{}, zerolog.Nop()).Safe(context.Background(), "AAA", model.ModelLSTM); res != nil {
		t.Fatalf("expected nil result after panic")
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var k keyedMutex
	unlock := k.lock("AAA|LSTM")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		k.lock("AAA|LSTM")()
	}()
	other := k.lock("BBB|LSTM")
	other()

	select {
	case <-acquired:
		t.Fatalf("second lock on the same key acquired early")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestRunTickerOverrides(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, testProvider("AAA"), zerolog.Nop())
	res, err := r.RunTicker(context.Background(), "AAA", model.ModelGRU, Epochs(2), BatchSize(16), LearningRate(0.01), Epochs(0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.History.TrainLoss) != 2 {
		t.Fatalf("expected the epoch override to apply, got %d epochs", len(res.History.TrainLoss))
	}
	if cfg.Model.Epochs != 3 {
		t.Fatalf("override leaked into the shared config")
	}
}
