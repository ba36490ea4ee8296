package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/tunogya/augur/pkg/store/milvus"
)

// TimeDecayConfig holds configuration for time decay reranking
type TimeDecayConfig struct {
	Lambda float64 // exponential decay rate per trading-calendar day

	UseSegments  bool
	RecentDays   float64
	MediumDays   float64
	RecentWeight float64
	MediumWeight float64
	OldWeight    float64
}

// DefaultTimeDecayConfig decays smoothly with a half-life of roughly a quarter
func DefaultTimeDecayConfig() TimeDecayConfig {
	return TimeDecayConfig{
		Lambda:       0.0075,
		RecentDays:   30,
		MediumDays:   180,
		RecentWeight: 1.0,
		MediumWeight: 0.7,
		OldWeight:    0.4,
	}
}

// SegmentConfig returns a configuration using step weights for
// the last month, the last half year and older contexts
func SegmentConfig() TimeDecayConfig {
	cfg := DefaultTimeDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// RankedResult is a search hit with its time-weighted score
type RankedResult struct {
	milvus.SearchResult
	AgeDays    float64
	TimeWeight float64
	FinalScore float64
}

// Reranker reorders similar prediction contexts so that recent market
// regimes outrank distant ones of equal similarity
type Reranker struct {
	config TimeDecayConfig
}

// NewReranker creates a new reranker with the given configuration
func NewReranker(config TimeDecayConfig) *Reranker {
	return &Reranker{config: config}
}

// Rerank scores results by age relative to asOf, most relevant first.
// Contexts dated after asOf are treated as age zero.
func (r *Reranker) Rerank(results []milvus.SearchResult, asOf time.Time) []RankedResult {
	ranked := make([]RankedResult, len(results))
	for i, result := range results {
		age := math.Max(0, asOf.Sub(result.Date).Hours()/24)

		var weight float64
		if r.config.UseSegments {
			weight = r.segmentWeight(age)
		} else {
			weight = math.Exp(-r.config.Lambda * age)
		}

		ranked[i] = RankedResult{
			SearchResult: result,
			AgeDays:      age,
			TimeWeight:   weight,
			FinalScore:   float64(result.Score) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked
}

func (r *Reranker) segmentWeight(ageDays float64) float64 {
	switch {
	case ageDays <= r.config.RecentDays:
		return r.config.RecentWeight
	case ageDays <= r.config.MediumDays:
		return r.config.MediumWeight
	default:
		return r.config.OldWeight
	}
}

// TopN returns the first n results after reranking
func (r *Reranker) TopN(results []milvus.SearchResult, asOf time.Time, n int) []RankedResult {
	ranked := r.Rerank(results, asOf)
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore keeps results whose final score reaches minScore
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// MeanPredictedReturn averages the predicted returns of ranked neighbours
// weighted by final score; it returns 0 when every weight is zero
func MeanPredictedReturn(results []RankedResult) float64 {
	var sum, weights float64
	for _, r := range results {
		sum += r.FinalScore * r.PredictedReturn
		weights += r.FinalScore
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}
