package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// PredictionContext is the attention context behind a single prediction
type PredictionContext struct {
	ContextID       string        `json:"context_id"`
	RunID           string        `json:"run_id"`
	Ticker          string        `json:"ticker"`
	ModelType       ModelType     `json:"model_type"`
	Date            time.Time     `json:"date"`
	PredictedReturn float64       `json:"predicted_return"`
	Embedding       ContextVector `json:"embedding"`
}

// GenerateContextID creates a deterministic context ID
// Format: hash(ticker|model|date|n_steps)
// Re-running the same ticker and model overwrites earlier contexts
func GenerateContextID(ticker string, modelType ModelType, date time.Time, nSteps int) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		ticker,
		modelType,
		date.Unix(),
		nSteps,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// NewPredictionContext creates a PredictionContext with generated ID
func NewPredictionContext(runID, ticker string, modelType ModelType, date time.Time, nSteps int, predictedReturn float64, embedding []float64) *PredictionContext {
	return &PredictionContext{
		ContextID:       GenerateContextID(ticker, modelType, date, nSteps),
		RunID:           runID,
		Ticker:          ticker,
		ModelType:       modelType,
		Date:            date,
		PredictedReturn: predictedReturn,
		Embedding:       FromFloat64(embedding),
	}
}
