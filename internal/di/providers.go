package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/api"
	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/data"
	"github.com/tunogya/augur/pkg/logger"
	"github.com/tunogya/augur/pkg/pipeline"
	"github.com/tunogya/augur/pkg/queue/nats"
	"github.com/tunogya/augur/pkg/store/duckdb"
	"github.com/tunogya/augur/pkg/store/milvus"
	"github.com/tunogya/augur/pkg/telemetry"
	"github.com/tunogya/augur/pkg/trading"
)

const connectTimeout = 10 * time.Second

// App is the HTTP service
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Runner   *pipeline.Runner
	Server   *api.Server
	Recorder *telemetry.Recorder
}

// ProvideLogger builds the process logger
func ProvideLogger(cfg *config.Config) (zerolog.Logger, error) {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return zerolog.Nop(), err
	}
	return log.With().Str("env", cfg.Environment).Logger(), nil
}

// ProvideRecorder creates the Prometheus recorder; nil when metrics are disabled
func ProvideRecorder(cfg *config.Config) *telemetry.Recorder {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return telemetry.New()
}

// ProvideDuckDB opens the DuckDB store; nil when no path is configured and
// the bar source does not need it
func ProvideDuckDB(cfg *config.Config) (*duckdb.Client, func(), error) {
	if cfg.Store.DuckDBPath == "" {
		if cfg.Data.Source == "duckdb" {
			return nil, nil, fmt.Errorf("data.source duckdb requires store.duckdb_path")
		}
		return nil, func() {}, nil
	}
	c, err := duckdb.NewClient(cfg.Store.DuckDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("duckdb client: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideNATS connects to JetStream and ensures the stream; nil when no URL is configured
func ProvideNATS(cfg *config.Config) (*nats.Client, func(), error) {
	if cfg.NATS.URL == "" {
		return nil, func() {}, nil
	}
	c, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return nil, nil, fmt.Errorf("nats client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := c.CreateStream(ctx, nats.Subjects); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("nats stream: %w", err)
	}
	return c, c.Close, nil
}

// ProvideMilvus connects to Milvus and ensures the context collection; nil
// when no address is configured
func ProvideMilvus(cfg *config.Config) (*milvus.Client, func(), error) {
	if cfg.Milvus.Address == "" {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	c, err := milvus.NewClient(ctx, cfg.Milvus)
	if err != nil {
		return nil, nil, err
	}
	coll := milvus.DefaultCollectionConfig()
	coll.Name = cfg.Milvus.Collection
	coll.Dimension = 2 * cfg.Model.HiddenSize
	if err := c.CreateCollection(ctx, coll); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("milvus collection: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideBarProvider selects the bar source
func ProvideBarProvider(cfg *config.Config, duck *duckdb.Client) (data.BarProvider, error) {
	switch cfg.Data.Source {
	case "duckdb":
		if duck == nil {
			return nil, fmt.Errorf("data.source duckdb requires store.duckdb_path")
		}
		return duckdb.NewBarRepo(duck), nil
	default:
		return data.NewCSVProvider(cfg.Data.CSVDir), nil
	}
}

// ProvideSinks picks where finished runs go. With NATS configured runs are
// published and the writer service persists them; otherwise they are
// written to DuckDB and Milvus directly.
func ProvideSinks(duck *duckdb.Client, queue *nats.Client, vectors *milvus.Client, cfg *config.Config) []pipeline.Sink {
	if queue != nil {
		return []pipeline.Sink{pipeline.NewNATSSink(queue)}
	}
	var sinks []pipeline.Sink
	if duck != nil {
		sinks = append(sinks, pipeline.NewDuckDBSink(duck))
	}
	if vectors != nil {
		sinks = append(sinks, pipeline.NewMilvusSink(vectors, cfg.Milvus.Collection))
	}
	return sinks
}

// ProvideRunner creates the training runner
func ProvideRunner(cfg *config.Config, provider data.BarProvider, log zerolog.Logger, rec *telemetry.Recorder, sinks []pipeline.Sink) *pipeline.Runner {
	return pipeline.NewRunner(cfg, provider, log, pipeline.WithSinks(sinks...), pipeline.WithRecorder(rec))
}

// ProvideSimulator returns the trading simulator used by the predict endpoint
func ProvideSimulator() trading.Simulator {
	return trading.SignalSimulator{}
}

// ProvideServer creates the HTTP server
func ProvideServer(cfg *config.Config, runner *pipeline.Runner, sim trading.Simulator, rec *telemetry.Recorder, log zerolog.Logger) *api.Server {
	opts := []api.ServerOption{
		api.WithPort(cfg.Server.Port),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if rec != nil {
		opts = append(opts, api.WithMetrics(cfg.Metrics.Path, rec.Handler()))
	}
	predict := api.NewPredictHandler(runner, sim, log, api.WithTradeArtifacts(runner.Writer(), cfg.Run.Charts))
	return api.NewServer(log, []api.Handler{predict}, opts...)
}
