package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/tunogya/augur/pkg/model"
)

var (
	// ErrUndefinedAccuracy is returned when an actual price is zero or near zero
	ErrUndefinedAccuracy = errors.New("accuracy undefined for zero actual price")
	// ErrLengthMismatch is returned when the price series differ in length
	ErrLengthMismatch = errors.New("actual and predicted lengths differ")
)

const zeroPrice = 1e-12

// Compute returns RMSE, MAE and accuracy = 1 - mean(|p - a| / a).
// When any actual price is near zero, Accuracy is NaN and
// ErrUndefinedAccuracy is returned together with the other metrics.
func Compute(actual, predicted []float64) (model.Metrics, error) {
	if len(actual) != len(predicted) {
		return model.Metrics{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return model.Metrics{}, errors.New("no predictions to score")
	}

	sq := make([]float64, len(actual))
	abs := make([]float64, len(actual))
	rel := make([]float64, len(actual))
	undefined := false
	for i, a := range actual {
		d := predicted[i] - a
		sq[i] = d * d
		abs[i] = math.Abs(d)
		if math.Abs(a) < zeroPrice {
			undefined = true
			continue
		}
		rel[i] = abs[i] / a
	}

	m := model.Metrics{
		RMSE: math.Sqrt(stat.Mean(sq, nil)),
		MAE:  stat.Mean(abs, nil),
	}
	if undefined {
		m.Accuracy = math.NaN()
		return m, ErrUndefinedAccuracy
	}
	m.Accuracy = 1 - stat.Mean(rel, nil)
	return m, nil
}

// FromRecords scores a prediction series
func FromRecords(records []model.PredictionRecord) (model.Metrics, error) {
	return Compute(model.ActualPrices(records), model.PredictedPrices(records))
}
