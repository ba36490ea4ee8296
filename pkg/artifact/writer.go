package artifact

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tunogya/augur/pkg/metrics"
	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/trading"
)

// ErrArtifactWrite is returned when a file cannot be written after one retry
var ErrArtifactWrite = errors.New("artifact write failed")

const dateLayout = "2006-01-02"

// Paths lists every artifact produced for one (ticker, model) run
type Paths struct {
	PredictionMap   string
	PredictionTable string
	PredictionPlot  string
	LossPlot        string
	EarningsPlot    string
	TradesPlot      string
	Transactions    string
	MetricsCSV      string
	Summary         string
}

// Writer lays out run artifacts under a save directory
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a writer rooted at saveDir
func NewWriter(saveDir string, log zerolog.Logger) *Writer {
	return &Writer{dir: saveDir, log: log}
}

// Dir returns the save directory
func (w *Writer) Dir() string {
	return w.dir
}

// Paths returns artifact locations for a run
func (w *Writer) Paths(ticker string, mt model.ModelType) Paths {
	return Paths{
		PredictionMap:   filepath.Join(w.dir, "predictions", fmt.Sprintf("%s_%s_predictions.json", ticker, mt)),
		PredictionTable: filepath.Join(w.dir, "predictions", fmt.Sprintf("%s_%s_predictions.parquet", ticker, mt)),
		PredictionPlot:  filepath.Join(w.dir, "pic", "predictions", fmt.Sprintf("%s_%s_prediction.png", ticker, mt)),
		LossPlot:        filepath.Join(w.dir, "pic", "loss", fmt.Sprintf("%s_%s_loss.png", ticker, mt)),
		EarningsPlot:    filepath.Join(w.dir, "pic", "earnings", fmt.Sprintf("%s_%s_cumulative.png", ticker, mt)),
		TradesPlot:      filepath.Join(w.dir, "pic", "trades", fmt.Sprintf("%s_%s_trades.png", ticker, mt)),
		Transactions:    filepath.Join(w.dir, "transactions", fmt.Sprintf("%s_%s_transactions.csv", ticker, mt)),
		MetricsCSV:      filepath.Join(w.dir, "output", fmt.Sprintf("%s_prediction_metrics_%s_attention.csv", ticker, mt)),
		Summary:         filepath.Join(w.dir, "output", fmt.Sprintf("%s_prediction_summary_%s_attention.txt", ticker, mt)),
	}
}

// ComparisonPlot returns the location of the cross-model accuracy chart
func (w *Writer) ComparisonPlot() string {
	return filepath.Join(w.dir, "pic", "accuracy_comparison_grouped.png")
}

// BatchSummary returns the location of a model type's batch summary
func (w *Writer) BatchSummary(mt model.ModelType) string {
	return filepath.Join(w.dir, "output", fmt.Sprintf("prediction_summary_%s_attention.txt", mt))
}

// predictionRow is the parquet layout of a PredictionRecord
type predictionRow struct {
	Date               string  `parquet:"date"`
	PredictedPrice     float64 `parquet:"predicted_price"`
	PredictedReturnPct float64 `parquet:"predicted_return_pct"`
	ActualReturnPct    float64 `parquet:"actual_return_pct"`
	ActualPrice        float64 `parquet:"actual_price"`
	PrevClose          float64 `parquet:"prev_close"`
}

// WritePredictions writes the date to predicted-return mapping consumed by
// the trading simulator and the full prediction table
func (w *Writer) WritePredictions(ticker string, mt model.ModelType, records []model.PredictionRecord) error {
	paths := w.Paths(ticker, mt)

	returns := make(map[string]float64, len(records))
	rows := make([]predictionRow, len(records))
	for i, r := range records {
		day := r.Date.Format(dateLayout)
		returns[day] = r.PredictedReturnPct / 100
		rows[i] = predictionRow{
			Date:               day,
			PredictedPrice:     r.PredictedPrice,
			PredictedReturnPct: r.PredictedReturnPct,
			ActualReturnPct:    r.ActualReturnPct,
			ActualPrice:        r.ActualPrice,
			PrevClose:          r.PrevClose,
		}
	}

	if err := w.write(paths.PredictionMap, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(returns)
	}); err != nil {
		return err
	}
	return w.write(paths.PredictionTable, func(out io.Writer) error {
		return parquet.Write(out, rows)
	})
}

// ReadPredictionMap loads a date to predicted-return mapping
func ReadPredictionMap(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var returns map[string]float64
	if err := json.Unmarshal(data, &returns); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return returns, nil
}

// WriteMetrics writes the per-run metrics table and summary
func (w *Writer) WriteMetrics(ticker string, mt model.ModelType, m model.Metrics) error {
	table := metrics.NewTable(ticker)
	table.Put(ticker, m)

	paths := w.Paths(ticker, mt)
	if err := w.write(paths.MetricsCSV, func(out io.Writer) error {
		return writeMetricsCSV(out, table)
	}); err != nil {
		return err
	}
	return w.write(paths.Summary, func(out io.Writer) error {
		return writeSummary(out, table)
	})
}

// WriteBatchSummary writes the summary across every ticker of a model type
func (w *Writer) WriteBatchSummary(mt model.ModelType, table *metrics.Table) error {
	if table.Len() == 0 {
		w.log.Warn().Str("model_type", string(mt)).Msg("no successful runs, skipping batch summary")
		return nil
	}
	return w.write(w.BatchSummary(mt), func(out io.Writer) error {
		return writeSummary(out, table)
	})
}

// WriteTransactions writes the trade history of a simulation
func (w *Writer) WriteTransactions(ticker string, mt model.ModelType, txs []trading.Transaction) error {
	return w.write(w.Paths(ticker, mt).Transactions, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write([]string{"date", "side", "price", "shares", "cash"}); err != nil {
			return err
		}
		for _, tx := range txs {
			row := []string{
				tx.Date.Format(dateLayout),
				tx.Side,
				formatFloat(tx.Price),
				strconv.FormatInt(tx.Shares, 10),
				formatFloat(tx.Cash),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func writeMetricsCSV(out io.Writer, table *metrics.Table) error {
	cw := csv.NewWriter(out)
	if err := cw.Write([]string{"", "rmse", "mae", "accuracy"}); err != nil {
		return err
	}
	for _, e := range table.Entries() {
		if err := cw.Write([]string{e.Ticker, formatFloat(e.RMSE), formatFloat(e.MAE), formatFloat(e.Accuracy)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeSummary(out io.Writer, table *metrics.Table) error {
	s, ok := table.Summarize()
	if !ok {
		return errors.New("empty metrics table")
	}
	lines := [][2]string{
		{"Average Accuracy", round(s.AverageAccuracy*100, 4)},
		{"Best Stock", s.BestTicker()},
		{"Worst Stock", s.WorstTicker()},
		{"Average RMSE", round(s.AverageRMSE, 4)},
		{"Average MAE", round(s.AverageMAE, 4)},
	}
	bw := bufio.NewWriter(out)
	for _, l := range lines {
		if _, err := fmt.Fprintf(bw, "%s: %s\n", l[0], l[1]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// round formats v with places decimals; non-finite values are spelled out
func round(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatFloat(v)
	}
	return decimal.NewFromFloat(v).Round(places).String()
}

// write renders a file through a temporary sibling and renames it into
// place, retrying once on failure
func (w *Writer) write(path string, render func(io.Writer) error) error {
	err := writeAtomic(path, render)
	if err == nil {
		return nil
	}
	w.log.Warn().Err(err).Str("path", path).Msg("artifact write failed, retrying")
	if err := writeAtomic(path, render); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, path, err)
	}
	return nil
}

func writeAtomic(path string, render func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := render(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
