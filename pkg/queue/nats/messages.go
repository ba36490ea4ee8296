package nats

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

// Subject constants
const (
	SubjectPredictionWrite = "augur.predictions.write"
	SubjectContextWrite    = "augur.contexts.write"
)

// Subjects lists every subject carried by the stream
var Subjects = []string{SubjectPredictionWrite, SubjectContextWrite}

// RunMsg describes a finished run. Accuracy is omitted when undefined.
type RunMsg struct {
	RunID     string    `json:"run_id"`
	Ticker    string    `json:"ticker"`
	ModelType string    `json:"model_type"`
	NSteps    int       `json:"n_steps"`
	Epochs    int       `json:"epochs"`
	RMSE      float64   `json:"rmse"`
	MAE       float64   `json:"mae"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PredictionBatchMsg carries a run's predictions and losses to the writer
type PredictionBatchMsg struct {
	Run     RunMsg                   `json:"run"`
	Records []model.PredictionRecord `json:"records"`
	Losses  []model.EpochLoss        `json:"losses"`
}

// ContextBatchMsg carries a run's attention contexts to the vector store
type ContextBatchMsg struct {
	Contexts []*model.PredictionContext `json:"contexts"`
}

// MessageID deduplicates republished batches of the same run
func (m PredictionBatchMsg) MessageID() string {
	return m.Run.RunID
}

// MessageID returns the run of the first context; batches never mix runs
func (m ContextBatchMsg) MessageID() string {
	if len(m.Contexts) == 0 {
		return ""
	}
	return m.Contexts[0].RunID
}

// NewRunMsg converts a run record into its wire form
func NewRunMsg(r *model.RunRecord) RunMsg {
	msg := RunMsg{
		RunID:     r.RunID,
		Ticker:    r.Ticker,
		ModelType: string(r.ModelType),
		NSteps:    r.NSteps,
		Epochs:    r.Epochs,
		RMSE:      r.Metrics.RMSE,
		MAE:       r.Metrics.MAE,
		CreatedAt: r.CreatedAt,
	}
	if acc := r.Metrics.Accuracy; !math.IsNaN(acc) && !math.IsInf(acc, 0) {
		msg.Accuracy = &acc
	}
	return msg
}

// Record converts the wire form back into a run record
func (m RunMsg) Record() *model.RunRecord {
	acc := math.NaN()
	if m.Accuracy != nil {
		acc = *m.Accuracy
	}
	return &model.RunRecord{
		RunID:     m.RunID,
		Ticker:    m.Ticker,
		ModelType: model.ModelType(m.ModelType),
		NSteps:    m.NSteps,
		Epochs:    m.Epochs,
		Metrics:   model.Metrics{RMSE: m.RMSE, MAE: m.MAE, Accuracy: acc},
		CreatedAt: m.CreatedAt,
	}
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePredictionBatch deserializes a PredictionBatchMsg from JSON bytes
func DecodePredictionBatch(data []byte) (*PredictionBatchMsg, error) {
	var msg PredictionBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Run.RunID == "" {
		return nil, fmt.Errorf("%w: missing run id", ErrMalformed)
	}
	return &msg, nil
}

// DecodeContextBatch deserializes a ContextBatchMsg from JSON bytes
func DecodeContextBatch(data []byte) (*ContextBatchMsg, error) {
	var msg ContextBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}
