package coarse

import (
	"github.com/wqlab/screener/internal/contracts"
)

// filterLiquidity requires minimum valid trading days, minimum average
// traded volume over the lookback window, and a bounded drawdown from
// the recent high. When fewer than MinSurvivors pass, the thresholds are
// relaxed exactly once (halved volume floor, wider drop tolerance), a
// bounded single-shot relaxation distinct from the momentum ladder.
func (s *Stage) filterLiquidity(candidates []contracts.Candidate, fs *contracts.FrameSet) []contracts.Candidate {
	cfg := s.cfg.Liquidity

	survivors := s.applyLiquidity(candidates, fs, cfg.MinAvgVolume, cfg.MaxDrop)
	if len(survivors) >= cfg.MinSurvivors {
		return survivors
	}

	relaxedVolume := cfg.MinAvgVolume * cfg.RelaxVolume
	relaxedDrop := cfg.MaxDrop * cfg.RelaxDrop

	s.logger.WithFields(map[string]interface{}{
		"survivors":      len(survivors),
		"min_survivors":  cfg.MinSurvivors,
		"relaxed_volume": relaxedVolume,
		"relaxed_drop":   relaxedDrop,
	}).Warn("Liquidity filter under-filled, relaxing once")

	return s.applyLiquidity(candidates, fs, relaxedVolume, relaxedDrop)
}

func (s *Stage) applyLiquidity(candidates []contracts.Candidate, fs *contracts.FrameSet, minVolume, maxDrop float64) []contracts.Candidate {
	cfg := s.cfg.Liquidity

	survivors := make([]contracts.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		frame, ok := fs.Frames[cand.Code]
		if !ok || frame.Days() < cfg.MinValidDays {
			continue
		}

		if avgVolume(frame) < minVolume {
			continue
		}

		high := recentHigh(frame, cfg.HighWindow)
		if high <= 0 {
			continue
		}
		if (frame.LastClose()-high)/high < -maxDrop {
			continue
		}

		survivors = append(survivors, cand)
	}

	return survivors
}

func avgVolume(frame *contracts.Frame) float64 {
	if frame.Days() == 0 {
		return 0
	}
	sum := 0.0
	for _, bar := range frame.Bars {
		sum += bar.Volume
	}
	return sum / float64(frame.Days())
}

func recentHigh(frame *contracts.Frame, window int) float64 {
	start := frame.Days() - window
	if start < 0 {
		start = 0
	}
	high := 0.0
	for _, bar := range frame.Bars[start:] {
		if bar.High > high {
			high = bar.High
		}
	}
	return high
}
