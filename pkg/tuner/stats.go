package tuner

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/llm-d-incubation/gemm-perf-model/pkg/analyzer"
)

// Distribution of predicted / actual runtime ratios over a set of records
type RatioStats struct {
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	GeoMean float64 `json:"geoMean"`
	StdDev  float64 `json:"stdDev"`
	Min     float64 `json:"min"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	Max     float64 `json:"max"`
}

// Summarize the ratios of records with a measured runtime
func Summarize(records []*analyzer.Record) RatioStats {
	ratios := make([]float64, 0, len(records))
	for _, r := range records {
		if r == nil || math.IsNaN(r.Ratio) || math.IsInf(r.Ratio, 0) {
			continue
		}
		ratios = append(ratios, r.Ratio)
	}
	if len(ratios) == 0 {
		return RatioStats{}
	}
	// quantiles need sorted input
	slices.Sort(ratios)

	s := RatioStats{
		Count: len(ratios),
		Mean:  stat.Mean(ratios, nil),
		Min:   ratios[0],
		P50:   stat.Quantile(0.5, stat.Empirical, ratios, nil),
		P90:   stat.Quantile(0.9, stat.Empirical, ratios, nil),
		Max:   ratios[len(ratios)-1],
	}
	if s.Min > 0 {
		s.GeoMean = stat.GeometricMean(ratios, nil)
	}
	if s.Count > 1 {
		s.StdDev = stat.StdDev(ratios, nil)
	}
	return s
}

func (s RatioStats) String() string {
	return fmt.Sprintf("{count=%d, mean=%.4f, geoMean=%.4f, stdDev=%.4f, min=%.4f, p50=%.4f, p90=%.4f, max=%.4f}",
		s.Count, s.Mean, s.GeoMean, s.StdDev, s.Min, s.P50, s.P90, s.Max)
}
