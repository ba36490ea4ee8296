package model

import "time"

// FeatureColumns is the fixed feature contract fed to the regressor, in order
var FeatureColumns = []string{
	"Volume_yes", "Year", "Month", "Day",
	"MA5", "MA10", "MA20", "MA50",
	"RSI", "MACD", "VWAP", "Upper_band", "Lower_band",
	"ATR", "Prev_Close", "ADX", "-DI", "+DI",
	"Close_yes", "Open_yes", "High_yes", "Low_yes", "OBV",
}

// FeatureRow holds the bar of a date together with indicators
// computed only from bars strictly before that date
type FeatureRow struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`

	VolumeYes float64 `json:"volume_yes"`
	Year      float64 `json:"year"`
	Month     float64 `json:"month"`
	Day       float64 `json:"day"`
	MA5       float64 `json:"ma5"`
	MA10      float64 `json:"ma10"`
	MA20      float64 `json:"ma20"`
	MA50      float64 `json:"ma50"`
	RSI       float64 `json:"rsi"`
	MACD      float64 `json:"macd"`
	VWAP      float64 `json:"vwap"`
	UpperBand float64 `json:"upper_band"`
	LowerBand float64 `json:"lower_band"`
	ATR       float64 `json:"atr"`
	PrevClose float64 `json:"prev_close"`
	ADX       float64 `json:"adx"`
	MinusDI   float64 `json:"minus_di"`
	PlusDI    float64 `json:"plus_di"`
	CloseYes  float64 `json:"close_yes"`
	OpenYes   float64 `json:"open_yes"`
	HighYes   float64 `json:"high_yes"`
	LowYes    float64 `json:"low_yes"`
	OBV       float64 `json:"obv"`
}

// Values returns the feature fields in FeatureColumns order
func (r *FeatureRow) Values() []float64 {
	return []float64{
		r.VolumeYes, r.Year, r.Month, r.Day,
		r.MA5, r.MA10, r.MA20, r.MA50,
		r.RSI, r.MACD, r.VWAP, r.UpperBand, r.LowerBand,
		r.ATR, r.PrevClose, r.ADX, r.MinusDI, r.PlusDI,
		r.CloseYes, r.OpenYes, r.HighYes, r.LowYes, r.OBV,
	}
}

// ContextVector is a float32 attention context used for similarity search
type ContextVector []float32

// FromFloat64 creates a ContextVector from a float64 slice
func FromFloat64(data []float64) ContextVector {
	result := make(ContextVector, len(data))
	for i, v := range data {
		result[i] = float32(v)
	}
	return result
}

// Dim returns the dimension of the vector
func (v ContextVector) Dim() int {
	return len(v)
}
