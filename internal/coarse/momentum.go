package coarse

import (
	"math"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
)

// momentumStats derives the statistics record for one frame. The caller
// decides retention via predicates; this only measures.
func momentumStats(cand contracts.Candidate, frame *contracts.Frame, cfg strategyconfig.MomentumFilter) MomentumStats {
	stats := MomentumStats{
		Code:     cand.Code,
		Industry: cand.Industry,
	}

	series := frame.Momentum
	needed := cfg.LongWindow
	if cfg.TrendWindow > needed {
		needed = cfg.TrendWindow
	}
	if len(series) < needed {
		return stats
	}
	stats.HasHistory = true

	stats.Short = tailMean(series, cfg.ShortWindow)
	stats.Long = tailMean(series, cfg.LongWindow)
	if stats.Long != 0 {
		stats.Growth = (stats.Short - stats.Long) / stats.Long
	}
	stats.Volatility = tailCV(series, cfg.StabilityWindow)

	trend := series[len(series)-cfg.TrendWindow:]
	for i := 1; i < len(trend); i++ {
		if trend[i] > trend[i-1] {
			stats.UpDays++
		}
	}
	stats.NetChange = trend[len(trend)-1] - trend[0]

	return stats
}

// retentionPredicate builds the full momentum rule set for the given
// growth threshold and trend requirement. Relaxation levels only vary
// those two inputs; everything else is fixed within a rebalance.
func retentionPredicate(cfg strategyconfig.MomentumFilter, growthThreshold float64, minUpDays int) Predicate {
	rangePass := Or(
		InCoreRange(cfg.CoreLow, cfg.CoreHigh),
		InBufferRange(
			cfg.CoreLow*cfg.BufferLowFactor,
			cfg.CoreHigh*cfg.BufferHighFactor,
			growthThreshold*cfg.BufferGrowthFactor,
		),
	)

	return And(
		HasHistory(),
		rangePass,
		GrowthAtLeast(growthThreshold),
		StableUnder(cfg.VolatilityCaps, cfg.DefaultVolCap),
		Trending(minUpDays),
	)
}

// tailMean averages the last window values of the series.
func tailMean(series []float64, window int) float64 {
	if len(series) == 0 || window <= 0 {
		return 0
	}
	start := len(series) - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range series[start:] {
		sum += v
	}
	return sum / float64(len(series)-start)
}

// tailCV is the coefficient of variation (stddev/mean) over the last
// window values, the stability measure the industry caps apply to.
func tailCV(series []float64, window int) float64 {
	start := len(series) - window
	if start < 0 {
		start = 0
	}
	tail := series[start:]
	if len(tail) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range tail {
		mean += v
	}
	mean /= float64(len(tail))
	if mean == 0 {
		return math.Inf(1)
	}

	variance := 0.0
	for _, v := range tail {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(tail))

	return math.Sqrt(variance) / math.Abs(mean)
}
