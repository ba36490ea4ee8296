package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/config"
	"github.com/tunogya/augur/pkg/logger"
	"github.com/tunogya/augur/pkg/queue/nats"
	"github.com/tunogya/augur/pkg/store/duckdb"
	"github.com/tunogya/augur/pkg/store/milvus"
)

func main() {
	configPath := flag.String("config", "", "config file path (defaults only when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "writer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if cfg.NATS.URL == "" || cfg.Store.DuckDBPath == "" {
		return fmt.Errorf("writer needs nats.url and store.duckdb_path")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	log = log.With().Str("service", "writer").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	duckClient, err := duckdb.NewClient(cfg.Store.DuckDBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to DuckDB: %w", err)
	}
	defer duckClient.Close()
	log.Info().Str("path", duckClient.Path()).Msg("duckdb ready")

	runRepo := duckdb.NewRunRepo(duckClient)
	predictionRepo := duckdb.NewPredictionRepo(duckClient)

	var vectors *milvus.Client
	if cfg.Milvus.Address != "" {
		vectors, err = milvus.NewClient(ctx, cfg.Milvus)
		if err != nil {
			return err
		}
		defer vectors.Close()
		coll := milvus.DefaultCollectionConfig()
		coll.Name = cfg.Milvus.Collection
		coll.Dimension = 2 * cfg.Model.HiddenSize
		if err := vectors.CreateCollection(ctx, coll); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		log.Info().Str("address", vectors.Address()).Str("collection", coll.Name).Msg("milvus ready")
	}

	natsClient, err := nats.NewClient(cfg.NATS)
	if err != nil {
		return err
	}
	defer natsClient.Close()
	if err := natsClient.CreateStream(ctx, nats.Subjects); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	predictions, err := natsClient.Subscribe(ctx, nats.SubjectPredictionWrite, "prediction-writer", func(msg jetstream.Msg) error {
		batch, err := nats.DecodePredictionBatch(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("failed to decode prediction batch")
			return err
		}
		run := batch.Run.Record()
		l := log.With().Str("run_id", run.RunID).Str("ticker", run.Ticker).Str("model_type", string(run.ModelType)).Logger()

		if err := runRepo.Insert(ctx, run); err != nil {
			l.Error().Err(err).Msg("failed to insert run")
			return err
		}
		if err := runRepo.InsertLosses(ctx, run.RunID, batch.Losses); err != nil {
			l.Error().Err(err).Msg("failed to insert losses")
			return err
		}
		if err := predictionRepo.InsertBatch(ctx, run.RunID, run.Ticker, run.ModelType, batch.Records); err != nil {
			l.Error().Err(err).Msg("failed to insert predictions")
			return err
		}
		l.Info().Int("predictions", len(batch.Records)).Int("epochs", len(batch.Losses)).Msg("stored run")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to predictions: %w", err)
	}
	defer predictions.Stop()

	contexts, err := natsClient.Subscribe(ctx, nats.SubjectContextWrite, "context-writer", contextHandler(ctx, vectors, cfg.Milvus.Collection, log))
	if err != nil {
		return fmt.Errorf("failed to subscribe to contexts: %w", err)
	}
	defer contexts.Stop()

	log.Info().Str("stream", cfg.NATS.StreamName).Msg("writer started, waiting for messages")
	<-ctx.Done()
	log.Info().Msg("shutting down writer")
	return nil
}

// contextHandler upserts context batches; without Milvus they are acknowledged and dropped
func contextHandler(ctx context.Context, vectors *milvus.Client, collection string, log zerolog.Logger) nats.MessageHandler {
	return func(msg jetstream.Msg) error {
		batch, err := nats.DecodeContextBatch(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("failed to decode context batch")
			return err
		}
		if vectors == nil || len(batch.Contexts) == 0 {
			return nil
		}
		if err := vectors.Upsert(ctx, collection, batch.Contexts); err != nil {
			log.Error().Err(err).Msg("failed to upsert contexts")
			return err
		}
		log.Info().Int("contexts", len(batch.Contexts)).Str("ticker", batch.Contexts[0].Ticker).Msg("stored contexts")
		return nil
	}
}
