package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tunogya/augur/pkg/artifact"
	"github.com/tunogya/augur/pkg/chart"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/pipeline"
	"github.com/tunogya/augur/pkg/trading"
)

// Predictor runs one (ticker, model) training run, returning nil on failure
type Predictor interface {
	Safe(ctx context.Context, ticker string, mt model.ModelType, overrides ...pipeline.Override) *pipeline.Result
}

// PredictRequest trains a model on one ticker and optionally trades its predictions
type PredictRequest struct {
	Ticker       string  `json:"ticker" validate:"required"`
	ModelType    string  `json:"model_type" default:"LSTM" validate:"required"`
	Epochs       int     `json:"epochs" validate:"gte=0"`
	BatchSize    int     `json:"batch_size" validate:"gte=0"`
	LearningRate float64 `json:"learning_rate" validate:"gte=0"`
	WindowSize   int     `json:"window_size" default:"10" validate:"gte=0"`
	InitialMoney float64 `json:"initial_money" default:"10000" validate:"gt=0"`
	Iterations   int     `json:"iterations" default:"500" validate:"min=1"`
}

// Images lists the chart paths of a run
type Images struct {
	Prediction string `json:"prediction,omitempty"`
	Loss       string `json:"loss,omitempty"`
	Earnings   string `json:"earnings,omitempty"`
	Trades     string `json:"trades,omitempty"`
}

// PredictResponse is the outcome of a predict call. Metric fields are null
// when the run failed or the value is undefined.
type PredictResponse struct {
	RunID         string          `json:"run_id"`
	Ticker        string          `json:"ticker"`
	ModelType     string          `json:"model_type"`
	Accuracy      *float64        `json:"accuracy"` // percent
	RMSE          *float64        `json:"rmse"`
	MAE           *float64        `json:"mae"`
	Predictions   int             `json:"predictions"`
	PredictionMap string          `json:"prediction_map,omitempty"`
	Images        Images          `json:"images"`
	Trading       *trading.Result `json:"trading"`
	Transactions  string          `json:"transactions,omitempty"`
}

// PredictHandler serves the predict endpoint
type PredictHandler struct {
	predictor Predictor
	simulator trading.Simulator
	writer    *artifact.Writer
	charts    bool
	log       zerolog.Logger
}

// PredictOption configures a PredictHandler
type PredictOption func(*PredictHandler)

// WithTradeArtifacts persists each simulation's transactions through w and,
// when charts is set, draws its trades chart
func WithTradeArtifacts(w *artifact.Writer, charts bool) PredictOption {
	return func(h *PredictHandler) {
		h.writer = w
		h.charts = charts
	}
}

// NewPredictHandler creates the handler; a nil simulator skips trading
func NewPredictHandler(p Predictor, sim trading.Simulator, log zerolog.Logger, opts ...PredictOption) *PredictHandler {
	h := &PredictHandler{predictor: p, simulator: sim, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PredictHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")
	g.POST("/predict", h.Predict)
}

// Predict trains, evaluates and optionally simulates trading. Any failure
// after validation yields an empty response body rather than an error.
func (h *PredictHandler) Predict(c echo.Context) error {
	req := &PredictRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	mt, err := model.ParseModelType(req.ModelType)
	if err != nil {
		return BadRequestResponse(c, []ValidationError{{Code: "ERR_ONEOF", Field: "ModelType", Message: err.Error()}})
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	empty := &PredictResponse{Ticker: ticker, ModelType: string(mt)}

	ctx := c.Request().Context()
	res := h.predictor.Safe(ctx, ticker, mt,
		pipeline.Epochs(req.Epochs),
		pipeline.BatchSize(req.BatchSize),
		pipeline.LearningRate(req.LearningRate),
	)
	if res == nil {
		return DataResponse(c, http.StatusUnprocessableEntity, empty)
	}

	out := &PredictResponse{
		RunID:         res.RunID,
		Ticker:        ticker,
		ModelType:     string(mt),
		Accuracy:      finite(res.Metrics.Accuracy * 100),
		RMSE:          finite(res.Metrics.RMSE),
		MAE:           finite(res.Metrics.MAE),
		Predictions:   len(res.Records),
		PredictionMap: res.Paths.PredictionMap,
		Images: Images{
			Prediction: res.Paths.PredictionPlot,
			Loss:       res.Paths.LossPlot,
			Earnings:   res.Paths.EarningsPlot,
		},
	}

	if h.simulator != nil {
		trades, err := h.simulator.Simulate(ctx, trading.Request{
			Ticker:       ticker,
			ModelType:    mt,
			WindowSize:   req.WindowSize,
			InitialMoney: req.InitialMoney,
			Iterations:   req.Iterations,
			Records:      res.Records,
		})
		if err != nil {
			h.log.Error().Err(err).Str("ticker", ticker).Str("model_type", string(mt)).Msg("trading simulation failed")
			return DataResponse(c, http.StatusUnprocessableEntity, empty)
		}
		out.Trading = trades
		if err := h.writeTrades(ticker, mt, res, trades, out); err != nil {
			h.log.Error().Err(err).Str("ticker", ticker).Str("model_type", string(mt)).Msg("failed to write trade artifacts")
			return DataResponse(c, http.StatusUnprocessableEntity, empty)
		}
	}
	return SuccessResponse(c, out)
}

// writeTrades stores the transaction table and trades chart, recording
// their paths on out
func (h *PredictHandler) writeTrades(ticker string, mt model.ModelType, res *pipeline.Result, trades *trading.Result, out *PredictResponse) error {
	if h.writer == nil {
		return nil
	}
	paths := h.writer.Paths(ticker, mt)
	if err := h.writer.WriteTransactions(ticker, mt, trades.Transactions); err != nil {
		return err
	}
	out.Transactions = paths.Transactions
	if !h.charts {
		return nil
	}
	if err := chart.Trades(paths.TradesPlot, ticker, mt, res.Records, trades); err != nil {
		return fmt.Errorf("%w: %v", artifact.ErrArtifactWrite, err)
	}
	out.Images.Trades = paths.TradesPlot
	return nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
