package chart

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/tunogya/augur/pkg/model"
	"github.com/tunogya/augur/pkg/outcome"
	"github.com/tunogya/augur/pkg/trading"
	"github.com/tunogya/augur/pkg/train"
)

var (
	red   = color.RGBA{R: 220, G: 40, B: 40, A: 255}
	blue  = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	green = color.RGBA{R: 30, G: 150, B: 70, A: 255}
	black = color.RGBA{A: 255}
)

// Series is one labelled line
type Series struct {
	Label string
	Color color.Color
	XYs   plotter.XYs
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	grid := plotter.NewGrid()
	dashes := []vg.Length{vg.Points(2), vg.Points(2)}
	grid.Horizontal.Dashes = dashes
	grid.Vertical.Dashes = dashes
	p.Add(grid)
	p.Legend.Top = true
	p.Legend.Left = true
	return p
}

func addLines(p *plot.Plot, series ...Series) error {
	for _, s := range series {
		if len(s.XYs) == 0 {
			continue
		}
		line, err := plotter.NewLine(s.XYs)
		if err != nil {
			return fmt.Errorf("failed to create line %q: %w", s.Label, err)
		}
		line.LineStyle.Color = s.Color
		p.Add(line)
		p.Legend.Add(s.Label, line)
	}
	return nil
}

func save(p *plot.Plot, width, height vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save plot (%s): %w", path, err)
	}
	return nil
}

func timeToFloat(t time.Time) float64 {
	return float64(t.Unix())
}

func dateXYs(dates []time.Time, values []float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		xys = append(xys, plotter.XY{X: timeToFloat(dates[i]), Y: v})
	}
	return xys
}

// Predictions plots actual against predicted prices over the validation period
func Predictions(path, ticker string, mt model.ModelType, records []model.PredictionRecord) error {
	if len(records) == 0 {
		return errors.New("no predictions to plot")
	}
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	p := newPlot(fmt.Sprintf("%s %s with attention", ticker, mt), "Date", "Price")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	if err := addLines(p,
		Series{Label: "Actual", Color: blue, XYs: dateXYs(dates, model.ActualPrices(records))},
		Series{Label: "Predicted", Color: red, XYs: dateXYs(dates, model.PredictedPrices(records))},
	); err != nil {
		return err
	}
	return save(p, 12*vg.Inch, 6*vg.Inch, path)
}

// Loss plots training and validation loss per epoch
func Loss(path, ticker string, mt model.ModelType, history *train.History) error {
	if history == nil || len(history.TrainLoss) == 0 {
		return errors.New("no loss history to plot")
	}
	epochs := func(values []float64) plotter.XYs {
		xys := make(plotter.XYs, 0, len(values))
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(i + 1), Y: v})
		}
		return xys
	}
	p := newPlot(fmt.Sprintf("%s %s loss", ticker, mt), "Epoch", "MSE")
	p.Legend.Left = false
	if err := addLines(p,
		Series{Label: "Train", Color: blue, XYs: epochs(history.TrainLoss)},
		Series{Label: "Validation", Color: red, XYs: epochs(history.ValLoss)},
	); err != nil {
		return err
	}
	return save(p, 8*vg.Inch, 4*vg.Inch, path)
}

// Earnings plots cumulative buy-and-hold returns against the model strategy
func Earnings(path string, res outcome.Result) error {
	if len(res.Dates) == 0 {
		return errors.New("no earnings to plot")
	}
	p := newPlot(fmt.Sprintf("%s %s cumulative earnings", res.Ticker, res.ModelType), "Date", "Cumulative return (%)")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	if err := addLines(p,
		Series{Label: "Naive", Color: blue, XYs: dateXYs(res.Dates, res.Naive)},
		Series{Label: "Model", Color: green, XYs: dateXYs(res.Dates, res.Strategy)},
	); err != nil {
		return err
	}
	return save(p, 12*vg.Inch, 6*vg.Inch, path)
}

// Trades plots the close over the traded period with a marker at every
// executed buy and sell
func Trades(path, ticker string, mt model.ModelType, records []model.PredictionRecord, res *trading.Result) error {
	if len(records) == 0 || res == nil {
		return errors.New("no trades to plot")
	}
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	p := newPlot(fmt.Sprintf("%s %s total gains $%.2f, total investment %.2f%%", ticker, mt, res.TotalGains, res.InvestmentReturn), "Date", "Price")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	if err := addLines(p, Series{Label: "Close", Color: red, XYs: dateXYs(dates, model.ActualPrices(records))}); err != nil {
		return err
	}

	var buys, sells plotter.XYs
	for _, tx := range res.Transactions {
		xy := plotter.XY{X: timeToFloat(tx.Date), Y: tx.Price}
		switch tx.Side {
		case trading.SideBuy:
			buys = append(buys, xy)
		case trading.SideSell:
			sells = append(sells, xy)
		}
	}
	markers := []struct {
		label string
		xys   plotter.XYs
		color color.Color
		shape draw.GlyphDrawer
	}{
		{"Buying signal", buys, green, draw.PyramidGlyph{}},
		{"Selling signal", sells, black, invertedPyramid{}},
	}
	for _, m := range markers {
		if len(m.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(m.xys)
		if err != nil {
			return fmt.Errorf("failed to create %s markers: %w", m.label, err)
		}
		sc.GlyphStyle.Shape = m.shape
		sc.GlyphStyle.Color = m.color
		sc.GlyphStyle.Radius = vg.Points(5)
		p.Add(sc)
		p.Legend.Add(m.label, sc)
	}
	return save(p, 15*vg.Inch, 5*vg.Inch, path)
}

// invertedPyramid draws a downward triangle
type invertedPyramid struct{}

func (invertedPyramid) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	c.SetColor(sty.Color)
	r := sty.Radius
	var path vg.Path
	path.Move(vg.Point{X: pt.X - r, Y: pt.Y + r})
	path.Line(vg.Point{X: pt.X + r, Y: pt.Y + r})
	path.Line(vg.Point{X: pt.X, Y: pt.Y - r})
	path.Close()
	c.Fill(path)
}

// AccuracyGroup is one bar series of the comparison chart
type AccuracyGroup struct {
	Label    string
	Accuracy []float64 // percent, aligned with the ticker list; NaN for missing
}

// AccuracyComparison draws grouped bars of accuracy per ticker, one group per model
func AccuracyComparison(path string, tickers []string, groups ...AccuracyGroup) error {
	if len(tickers) == 0 || len(groups) == 0 {
		return errors.New("nothing to compare")
	}
	p := newPlot("Prediction accuracy by model", "Ticker", "Accuracy (%)")
	p.Legend.Left = false
	p.NominalX(tickers...)

	width := vg.Points(10)
	palette := []color.Color{blue, red, green}
	lo := math.Inf(1)
	for gi, g := range groups {
		if len(g.Accuracy) != len(tickers) {
			return fmt.Errorf("group %q has %d values for %d tickers", g.Label, len(g.Accuracy), len(tickers))
		}
		values := make(plotter.Values, len(g.Accuracy))
		for i, v := range g.Accuracy {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values[i] = v
			lo = math.Min(lo, v)
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return fmt.Errorf("failed to create bar chart: %w", err)
		}
		bars.LineStyle.Width = 0
		bars.Color = palette[gi%len(palette)]
		bars.Offset = width * vg.Length(float64(gi)-float64(len(groups)-1)/2)
		p.Add(bars)
		p.Legend.Add(g.Label, bars)
	}
	if !math.IsInf(lo, 1) && lo > 5 {
		p.Y.Min = lo - 5
	}
	return save(p, vg.Length(math.Max(8, float64(len(tickers))*0.6))*vg.Inch, 5*vg.Inch, path)
}
