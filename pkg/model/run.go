package model

import "time"

// RunRecord describes one completed (ticker, model) training run
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Ticker    string    `json:"ticker"`
	ModelType ModelType `json:"model_type"`
	NSteps    int       `json:"n_steps"`
	Epochs    int       `json:"epochs"`
	Metrics   Metrics   `json:"metrics"`
	CreatedAt time.Time `json:"created_at"`
}

// EpochLoss is the mean train and validation loss of one epoch
type EpochLoss struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
}
