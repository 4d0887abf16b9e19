package coarse

import (
	"math"
	"sort"

	"github.com/wqlab/screener/internal/contracts"
)

// filterTurnover keeps stocks whose trailing mean turnover sits at or
// above the configured market-wide quantile, with a minimum number of
// valid observation days. Fails closed when turnover data is absent.
func (s *Stage) filterTurnover(fs *contracts.FrameSet) []contracts.Candidate {
	cfg := s.cfg.Turnover

	type turnoverStat struct {
		frame     *contracts.Frame
		mean      float64
		validDays int
	}

	stats := make([]turnoverStat, 0, len(fs.Frames))
	means := make([]float64, 0, len(fs.Frames))
	hasData := false

	for _, frame := range fs.Frames {
		mean, valid := trailingMean(frame.Turnover, cfg.Window)
		if valid > 0 {
			hasData = true
		}
		stats = append(stats, turnoverStat{frame: frame, mean: mean, validDays: valid})
		means = append(means, mean)
	}

	if !hasData {
		s.logger.Warn("Turnover filter: no turnover data in universe, failing closed")
		return nil
	}

	cutoff := quantile(means, cfg.Quantile)

	candidates := make([]contracts.Candidate, 0, len(stats))
	for _, st := range stats {
		if st.validDays < cfg.MinObsDays {
			continue
		}
		if st.mean < cutoff {
			continue
		}
		candidates = append(candidates, contracts.Candidate{
			Code:     st.frame.Code,
			Industry: st.frame.Industry,
			Stats:    contracts.FactorStats{MeanTurnover: st.mean},
		})
	}

	return candidates
}

// trailingMean averages the last window values, counting only positive
// observations as valid days. Returns (mean, validDays).
func trailingMean(series []float64, window int) (float64, int) {
	if len(series) == 0 {
		return 0, 0
	}

	start := len(series) - window
	if start < 0 {
		start = 0
	}

	sum := 0.0
	valid := 0
	for _, v := range series[start:] {
		if v > 0 && !math.IsNaN(v) {
			sum += v
			valid++
		}
	}

	if valid == 0 {
		return 0, 0
	}
	return sum / float64(valid), valid
}

// quantile returns the q-th quantile of values using linear interpolation.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}

	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
