package coarse

import (
	"sort"

	"github.com/wqlab/screener/internal/contracts"
)

// filterValuation keeps stocks whose trailing mean valuation ratio sits
// in (0, threshold] for an industry-specific threshold. The base
// threshold table is adjusted per industry against the industry's median
// ratio and clamped; if under MinSurvivors pass, every threshold is
// widened once by WidenFactor.
func (s *Stage) filterValuation(candidates []contracts.Candidate, fs *contracts.FrameSet) []contracts.Candidate {
	cfg := s.cfg.Valuation

	// Trailing mean ratio per candidate, grouped by industry for the
	// median adjustment.
	ratios := make(map[string]float64, len(candidates))
	byIndustry := make(map[string][]float64)
	for i := range candidates {
		frame, ok := fs.Frames[candidates[i].Code]
		if !ok {
			continue
		}
		mean, valid := trailingMean(frame.Valuation, cfg.Window)
		if valid == 0 {
			continue
		}
		ratios[candidates[i].Code] = mean
		byIndustry[candidates[i].Industry] = append(byIndustry[candidates[i].Industry], mean)
	}

	thresholds := make(map[string]float64, len(byIndustry))
	for industry, values := range byIndustry {
		thresholds[industry] = s.resolveThreshold(industry, values)
	}

	survivors := s.applyValuation(candidates, ratios, thresholds, 1.0)
	if len(survivors) >= cfg.MinSurvivors {
		return survivors
	}

	s.logger.WithFields(map[string]interface{}{
		"survivors":    len(survivors),
		"widen_factor": cfg.WidenFactor,
	}).Warn("Valuation filter under-filled, widening thresholds")

	return s.applyValuation(candidates, ratios, thresholds, cfg.WidenFactor)
}

func (s *Stage) applyValuation(candidates []contracts.Candidate, ratios map[string]float64, thresholds map[string]float64, widen float64) []contracts.Candidate {
	survivors := make([]contracts.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		ratio, ok := ratios[cand.Code]
		if !ok || ratio <= 0 {
			continue
		}
		if ratio > thresholds[cand.Industry]*widen {
			continue
		}
		cand.Stats.ValuationRatio = ratio
		survivors = append(survivors, cand)
	}
	return survivors
}

// resolveThreshold adjusts the base industry threshold against the
// observed median: raised when the whole industry trades rich, lowered
// when it trades cheap, always clamped to the configured band.
func (s *Stage) resolveThreshold(industry string, values []float64) float64 {
	cfg := s.cfg.Valuation

	base, ok := cfg.BaseThresholds[industry]
	if !ok {
		base = cfg.DefaultThreshold
	}

	threshold := base
	if len(values) > 0 {
		med := median(values)
		switch {
		case med > base*cfg.AdjustUpRatio:
			threshold = base * cfg.AdjustUpRatio
		case med < base*cfg.AdjustDownRatio:
			threshold = base * cfg.AdjustDownRatio
		}
	}

	if threshold < cfg.ClampMin {
		threshold = cfg.ClampMin
	}
	if threshold > cfg.ClampMax {
		threshold = cfg.ClampMax
	}
	return threshold
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
