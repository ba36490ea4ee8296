package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tunogya/augur/pkg/model"
)

var dateLayouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006/01/02",
}

// CSVProvider implements BarProvider over a directory of {TICKER}.csv files
// with Date, Open, High, Low, Close, Volume columns
type CSVProvider struct {
	dir   string
	mu    sync.Mutex
	cache map[string][]model.Bar
}

// NewCSVProvider creates a new CSV-based bar provider
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{
		dir:   dir,
		cache: make(map[string][]model.Bar),
	}
}

// Path returns the file backing ticker
func (p *CSVProvider) Path(ticker string) string {
	return filepath.Join(p.dir, ticker+".csv")
}

// Fetch retrieves bars within the specified date range
func (p *CSVProvider) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]model.Bar, error) {
	bars, err := p.loadIfNeeded(ticker)
	if err != nil {
		return nil, err
	}
	result := model.FilterRange(bars, start, end)
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
	}
	return result, nil
}

// loadIfNeeded loads the ticker file if not already cached
func (p *CSVProvider) loadIfNeeded(ticker string) ([]model.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if bars, ok := p.cache[ticker]; ok {
		return bars, nil
	}

	file, err := os.Open(p.Path(ticker))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoData, ticker)
		}
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	bars, err := ReadBars(file, ticker)
	if err != nil {
		return nil, err
	}
	p.cache[ticker] = bars
	return bars, nil
}

// ReadBars parses bars from CSV. Rows with unparseable dates are skipped;
// unparseable prices are kept as missing values. The result is sorted by
// date with duplicate dates collapsed to the last occurrence.
func ReadBars(r io.Reader, ticker string) ([]model.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	dateCol, ok := colMap["date"]
	if !ok {
		if dateCol, ok = colMap["datetime"]; !ok {
			dateCol = 0
		}
	}
	for _, required := range []string{"open", "high", "low", "close", "volume"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("CSV header missing %q column", required)
		}
	}

	byDate := make(map[time.Time]model.Bar)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		bar, err := parseRecord(record, colMap, dateCol)
		if err != nil {
			continue // Skip invalid records
		}
		bar.Ticker = ticker
		byDate[bar.Date] = bar
	}

	bars := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars, nil
}

// parseRecord parses a CSV record into a Bar
func parseRecord(record []string, colMap map[string]int, dateCol int) (model.Bar, error) {
	getValue := func(name string) string {
		if idx, ok := colMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}
	getFloat := func(name string) float64 {
		v, err := strconv.ParseFloat(getValue(name), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	if dateCol >= len(record) {
		return model.Bar{}, fmt.Errorf("record has no date column")
	}
	date, err := ParseDate(record[dateCol])
	if err != nil {
		return model.Bar{}, err
	}

	return model.Bar{
		Date:   date,
		Open:   getFloat("open"),
		High:   getFloat("high"),
		Low:    getFloat("low"),
		Close:  getFloat("close"),
		Volume: getFloat("volume"),
	}, nil
}

// ParseDate parses a date in one of the supported layouts, normalized to UTC midnight
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// WriteBars writes bars as CSV with the header ReadBars expects
func WriteBars(w io.Writer, bars []model.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		record := []string{
			b.Date.Format(time.DateOnly),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
