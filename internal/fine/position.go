package fine

import (
	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
)

// positionScore awards one point when the last close sits in the bottom
// part of its trailing range while the recent bars show a compressed
// range, the consolidation-near-support setup. Returns the point and the
// normalized position for diagnostics.
func positionScore(frame *contracts.Frame, cfg strategyconfig.PricePosition) (int, float64) {
	n := frame.Days()
	if n < cfg.RangeWindow {
		return 0, 0
	}

	lo, hi := rangeOf(frame.Bars[n-cfg.RangeWindow:])
	if hi <= lo {
		return 0, 0
	}
	quantile := (frame.LastClose() - lo) / (hi - lo)

	if quantile > cfg.MaxQuantile {
		return 0, quantile
	}
	if n < cfg.CompressWindow {
		return 0, quantile
	}

	recentLo, recentHi := rangeOf(frame.Bars[n-cfg.CompressWindow:])
	if recentLo <= 0 {
		return 0, quantile
	}
	if (recentHi-recentLo)/recentLo > cfg.MaxCompression {
		return 0, quantile
	}

	return 1, quantile
}

// rangeOf returns the lowest low and highest high across the bars.
func rangeOf(bars []contracts.DailyBar) (float64, float64) {
	lo, hi := bars[0].Low, bars[0].High
	for _, b := range bars[1:] {
		if b.Low < lo {
			lo = b.Low
		}
		if b.High > hi {
			hi = b.High
		}
	}
	return lo, hi
}
