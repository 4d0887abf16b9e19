package fine

import (
	"math"

	"github.com/wqlab/screener/internal/contracts"
)

// tradingDaysPerYear is the A-share session count used to annualize.
const tradingDaysPerYear = 244

// relativeScore awards one point when the stock's annualized return over
// the frame window beats the benchmark's over the same window. Returns
// the point and the outperformance margin for diagnostics.
func relativeScore(frame *contracts.Frame, benchmark []float64) (int, float64) {
	closes := frame.Closes()

	stockAnn, ok := annualizedReturn(closes)
	if !ok {
		return 0, 0
	}
	benchAnn, ok := annualizedReturn(benchmark)
	if !ok {
		return 0, 0
	}

	outperf := stockAnn - benchAnn
	if outperf > 0 {
		return 1, outperf
	}
	return 0, outperf
}

// annualizedReturn compounds the window return to a yearly rate.
func annualizedReturn(closes []float64) (float64, bool) {
	if len(closes) < 2 {
		return 0, false
	}
	first, last := closes[0], closes[len(closes)-1]
	if first <= 0 || last <= 0 {
		return 0, false
	}
	days := float64(len(closes) - 1)
	return math.Pow(last/first, tradingDaysPerYear/days) - 1, true
}
