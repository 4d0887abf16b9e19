package fine

import (
	"math"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
)

// maTrendScore awards up to two points. One for a tight, near-ascending
// moving-average stack (short MAs at or above longer MAs with a bounded
// spread), and one for the longest-but-one MA rising at a steepening
// angle. Returns the points plus the spread and slope for diagnostics.
func maTrendScore(frame *contracts.Frame, cfg strategyconfig.MATrend) (int, float64, float64) {
	if len(cfg.Windows) == 0 {
		return 0, 0, 0
	}
	closes := frame.Closes()

	longest := cfg.Windows[0]
	for _, w := range cfg.Windows {
		if w > longest {
			longest = w
		}
	}
	if len(closes) < longest {
		return 0, 0, 0
	}

	mas := make([]float64, len(cfg.Windows))
	for i, w := range cfg.Windows {
		mas[i] = meanOf(closes[len(closes)-w:])
	}

	points := 0

	spread := maSpread(mas)
	if spread <= cfg.MaxSpread && nearAscending(mas) {
		points++
	}

	// Slope of the trend MA (the 60-day in the default set), measured
	// now and roughly 40 sessions earlier.
	slope := 0.0
	if len(cfg.Windows) < 2 {
		return points, spread, slope
	}
	trendWindow := cfg.Windows[len(cfg.Windows)-2]
	series := smaSeries(closes, trendWindow)
	if len(series) >= cfg.SlopeWindow+cfg.SlopeCompareAgo {
		slope = slopeDegrees(series[len(series)-cfg.SlopeWindow:])
		prior := slopeDegrees(series[len(series)-cfg.SlopeWindow-cfg.SlopeCompareAgo : len(series)-cfg.SlopeCompareAgo])
		if slope >= cfg.MinSlopeDeg && slope > prior {
			points++
		}
	}

	return points, spread, slope
}

// maSpread is (max-min)/min across the MA set.
func maSpread(mas []float64) float64 {
	lo, hi := mas[0], mas[0]
	for _, m := range mas[1:] {
		if m < lo {
			lo = m
		}
		if m > hi {
			hi = m
		}
	}
	if lo <= 0 {
		return math.Inf(1)
	}
	return (hi - lo) / lo
}

// nearAscending requires each shorter MA to sit at or above the next
// longer one, assuming windows are listed shortest first.
func nearAscending(mas []float64) bool {
	for i := 1; i < len(mas); i++ {
		if mas[i-1] < mas[i] {
			return false
		}
	}
	return true
}

// smaSeries computes the simple moving average at every index where a
// full window is available.
func smaSeries(closes []float64, window int) []float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	out := make([]float64, 0, len(closes)-window+1)
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}

// slopeDegrees fits a least-squares line through the values, normalizes
// the per-day slope by the series mean so price scale cancels, and
// reports the angle in degrees with 1 degree near 0.0175% per day.
func slopeDegrees(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	mean := meanOf(values)
	if mean == 0 {
		return 0
	}

	xMean := float64(n-1) / 2
	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - mean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}

	perDay := num / den / mean
	return math.Atan(perDay*100) * 180 / math.Pi
}
