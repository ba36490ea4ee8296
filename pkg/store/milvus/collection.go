package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/tunogya/augur/pkg/model"
)

const (
	// DefaultCollectionName is the default collection name for prediction contexts
	DefaultCollectionName = "prediction_contexts"
)

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string
	Dimension int // twice the regressor hidden size
	Shards    int
}

// DefaultCollectionConfig returns default collection configuration
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Name:      DefaultCollectionName,
		Dimension: 100,
		Shards:    2,
	}
}

// CreateCollection creates the prediction context collection and its index
func (c *Client) CreateCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Attention contexts of daily return predictions",
		Fields: []*entity.Field{
			{
				Name:       "context_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(cfg.Dimension),
				},
			},
			{
				Name:     "run_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "ticker",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     "model_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8",
				},
			},
			{
				Name:     "date",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "predicted_return",
				DataType: entity.FieldTypeDouble,
			},
		},
	}

	if err := c.conn.CreateCollection(ctx, schema, int32(cfg.Shards)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := c.CreateIndex(ctx, cfg.Name, "embedding"); err != nil {
		return err
	}
	return c.LoadCollection(ctx, cfg.Name)
}

// toColumns converts contexts into insert columns
func toColumns(contexts []*model.PredictionContext) ([]entity.Column, error) {
	dim := contexts[0].Embedding.Dim()
	ids := make([]string, len(contexts))
	embeddings := make([][]float32, len(contexts))
	runIDs := make([]string, len(contexts))
	tickers := make([]string, len(contexts))
	modelTypes := make([]string, len(contexts))
	dates := make([]int64, len(contexts))
	returns := make([]float64, len(contexts))

	for i, pc := range contexts {
		if pc.Embedding.Dim() != dim {
			return nil, fmt.Errorf("context %s has dimension %d, want %d", pc.ContextID, pc.Embedding.Dim(), dim)
		}
		ids[i] = pc.ContextID
		embeddings[i] = pc.Embedding
		runIDs[i] = pc.RunID
		tickers[i] = pc.Ticker
		modelTypes[i] = string(pc.ModelType)
		dates[i] = pc.Date.Unix()
		returns[i] = pc.PredictedReturn
	}

	return []entity.Column{
		entity.NewColumnVarChar("context_id", ids),
		entity.NewColumnFloatVector("embedding", dim, embeddings),
		entity.NewColumnVarChar("run_id", runIDs),
		entity.NewColumnVarChar("ticker", tickers),
		entity.NewColumnVarChar("model_type", modelTypes),
		entity.NewColumnInt64("date", dates),
		entity.NewColumnDouble("predicted_return", returns),
	}, nil
}

// Upsert writes contexts; a re-run of the same (ticker, model, date) replaces the earlier vector
func (c *Client) Upsert(ctx context.Context, collectionName string, contexts []*model.PredictionContext) error {
	if len(contexts) == 0 {
		return nil
	}
	columns, err := toColumns(contexts)
	if err != nil {
		return err
	}
	if _, err := c.conn.Upsert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return nil
}

// SearchResult represents a single search result
type SearchResult struct {
	ContextID       string
	Score           float32
	RunID           string
	Ticker          string
	ModelType       model.ModelType
	Date            time.Time
	PredictedReturn float64
}

// Filter selects contexts by ticker, model type and an exclusive upper date
// bound. Empty or zero arguments are not constrained.
func Filter(ticker string, mt model.ModelType, before time.Time) string {
	var parts []string
	if ticker != "" {
		parts = append(parts, fmt.Sprintf("ticker == %q", ticker))
	}
	if mt != "" {
		parts = append(parts, fmt.Sprintf("model_type == %q", string(mt)))
	}
	if !before.IsZero() {
		parts = append(parts, fmt.Sprintf("date < %d", before.Unix()))
	}
	return strings.Join(parts, " && ")
}

// Search performs a TopK similarity search
func (c *Client) Search(ctx context.Context, collectionName string, embedding []float32, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(16) // nprobe
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	outputFields := []string{"context_id", "run_id", "ticker", "model_type", "date", "predicted_return"}

	results, err := c.conn.Search(
		ctx,
		collectionName,
		nil,
		filter,
		outputFields,
		vectors,
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	return parseResults(results[0]), nil
}

func parseResults(res client.SearchResult) []SearchResult {
	out := make([]SearchResult, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		r := SearchResult{Score: res.Scores[i]}
		for _, field := range res.Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case "context_id":
					r.ContextID = val
				case "run_id":
					r.RunID = val
				case "ticker":
					r.Ticker = val
				case "model_type":
					r.ModelType = model.ModelType(val)
				}
			case *entity.ColumnInt64:
				if col.Name() == "date" {
					val, _ := col.ValueByIdx(i)
					r.Date = time.Unix(val, 0).UTC()
				}
			case *entity.ColumnDouble:
				if col.Name() == "predicted_return" {
					r.PredictedReturn, _ = col.ValueByIdx(i)
				}
			}
		}
		out = append(out, r)
	}
	return out
}

// ErrContextNotFound is returned when no context matches an id
var ErrContextNotFound = errors.New("context not found")

// Embedding fetches the stored vector of one context
func (c *Client) Embedding(ctx context.Context, collectionName, contextID string) ([]float32, error) {
	rs, err := c.conn.Query(ctx, collectionName, nil, fmt.Sprintf("context_id == %q", contextID), []string{"embedding"})
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	col, ok := rs.GetColumn("embedding").(*entity.ColumnFloatVector)
	if !ok || col.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, contextID)
	}
	return col.Data()[0], nil
}

// Flush flushes the collection to ensure data persistence
func (c *Client) Flush(ctx context.Context, collectionName string) error {
	return c.conn.Flush(ctx, collectionName, false)
}
