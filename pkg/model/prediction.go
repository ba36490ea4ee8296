package model

import (
	"fmt"
	"strings"
	"time"
)

// ModelType selects the recurrent cell of the regressor
type ModelType string

const (
	ModelLSTM ModelType = "LSTM"
	ModelGRU  ModelType = "GRU"
)

// ParseModelType parses a case-insensitive model name
func ParseModelType(s string) (ModelType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ModelLSTM):
		return ModelLSTM, nil
	case string(ModelGRU):
		return ModelGRU, nil
	default:
		return "", fmt.Errorf("unknown model type %q", s)
	}
}

// PredictionRecord is one validation-day prediction
type PredictionRecord struct {
	Date               time.Time `json:"date"`
	PredictedPrice     float64   `json:"predicted_price"`
	PredictedReturnPct float64   `json:"predicted_return_pct"`
	ActualReturnPct    float64   `json:"actual_return_pct"`
	ActualPrice        float64   `json:"actual_price"`
	PrevClose          float64   `json:"prev_close"` // close the predicted return is measured from
}

// EntryPrice returns the close preceding Date. Records without PrevClose
// recover it from the actual price and return; zero when neither is usable.
func (r PredictionRecord) EntryPrice() float64 {
	if r.PrevClose > 0 {
		return r.PrevClose
	}
	if g := 1 + r.ActualReturnPct/100; g > 0 && r.ActualPrice > 0 {
		return r.ActualPrice / g
	}
	return 0
}

// Metrics summarizes prediction quality for one (ticker, model) run
type Metrics struct {
	RMSE     float64 `json:"rmse"`
	MAE      float64 `json:"mae"`
	Accuracy float64 `json:"accuracy"` // 1 - mean absolute percentage error of prices
}

// PredictedPrices returns the predicted price column
func PredictedPrices(records []PredictionRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.PredictedPrice
	}
	return out
}

// ActualPrices returns the actual price column
func ActualPrices(records []PredictionRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.ActualPrice
	}
	return out
}
