package pipeline

import (
	"context"
	"fmt"

	"github.com/tunogya/augur/pkg/queue/nats"
	"github.com/tunogya/augur/pkg/store/duckdb"
	"github.com/tunogya/augur/pkg/store/milvus"
)

// Sink receives finished runs. Sink failures are logged, never fatal to a run.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *Result) error
}

// DuckDBSink persists runs, losses, predictions and features
type DuckDBSink struct {
	runs        *duckdb.RunRepo
	predictions *duckdb.PredictionRepo
	features    *duckdb.FeatureRepo
}

// NewDuckDBSink creates a sink over an open client
func NewDuckDBSink(c *duckdb.Client) *DuckDBSink {
	return &DuckDBSink{
		runs:        duckdb.NewRunRepo(c),
		predictions: duckdb.NewPredictionRepo(c),
		features:    duckdb.NewFeatureRepo(c),
	}
}

func (s *DuckDBSink) Name() string { return "duckdb" }

func (s *DuckDBSink) Write(ctx context.Context, res *Result) error {
	if err := s.runs.Insert(ctx, res.Run()); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := s.runs.InsertLosses(ctx, res.RunID, res.Losses()); err != nil {
		return fmt.Errorf("insert losses: %w", err)
	}
	if err := s.predictions.InsertBatch(ctx, res.RunID, res.Ticker, res.ModelType, res.Records); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	if res.Table != nil {
		if err := s.features.InsertBatch(ctx, res.Ticker, res.Table.Rows); err != nil {
			return fmt.Errorf("insert features: %w", err)
		}
	}
	return nil
}

// Publisher is the subset of the NATS client used to publish runs
type Publisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
}

// NATSSink hands runs to the writer service over JetStream
type NATSSink struct {
	pub Publisher
}

// NewNATSSink creates a sink publishing with pub
func NewNATSSink(pub Publisher) *NATSSink {
	return &NATSSink{pub: pub}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Write(ctx context.Context, res *Result) error {
	batch := nats.PredictionBatchMsg{
		Run:     nats.NewRunMsg(res.Run()),
		Records: res.Records,
		Losses:  res.Losses(),
	}
	if err := s.pub.PublishJSON(ctx, nats.SubjectPredictionWrite, batch); err != nil {
		return err
	}
	if len(res.Contexts) == 0 {
		return nil
	}
	return s.pub.PublishJSON(ctx, nats.SubjectContextWrite, nats.ContextBatchMsg{Contexts: res.Contexts})
}

// MilvusSink upserts attention contexts straight into the vector store
type MilvusSink struct {
	client     *milvus.Client
	collection string
}

// NewMilvusSink creates a sink writing to collection
func NewMilvusSink(c *milvus.Client, collection string) *MilvusSink {
	return &MilvusSink{client: c, collection: collection}
}

func (s *MilvusSink) Name() string { return "milvus" }

func (s *MilvusSink) Write(ctx context.Context, res *Result) error {
	if len(res.Contexts) == 0 {
		return nil
	}
	return s.client.Upsert(ctx, s.collection, res.Contexts)
}
