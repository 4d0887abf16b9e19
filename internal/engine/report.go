package engine

import (
	"math"

	"github.com/wqlab/screener/internal/contracts"
)

// PerformanceMetrics summarizes a backtest equity curve.
type PerformanceMetrics struct {
	CAGR        float64 `json:"cagr"`
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"` // fraction of rebalance periods with a positive return
	Periods     int     `json:"periods"`
}

const sessionsPerYear = 244

// computeMetrics derives the summary ratios from the daily equity curve
// and the rebalance audit log.
func computeMetrics(equity []EquityPoint, records []contracts.RebalanceRecord) PerformanceMetrics {
	var m PerformanceMetrics
	if len(equity) < 2 {
		return m
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, equity[i].TotalValue/prev-1)
	}

	first, last := equity[0].TotalValue, equity[len(equity)-1].TotalValue
	if first > 0 && last > 0 {
		years := float64(len(equity)) / sessionsPerYear
		if years > 0 {
			m.CAGR = math.Pow(last/first, 1/years) - 1
		}
	}

	m.Sharpe = annualizedRatio(returns, false)
	m.Sortino = annualizedRatio(returns, true)
	m.MaxDrawdown = maxDrawdown(equity)
	m.WinRate, m.Periods = winRate(equity, records)

	return m
}

// annualizedRatio is mean over deviation, scaled to a year. With
// downsideOnly set, only negative returns contribute to the deviation
// (Sortino); otherwise all do (Sharpe). Zero-deviation curves return 0.
func annualizedRatio(returns []float64, downsideOnly bool) float64 {
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	n := 0
	for _, r := range returns {
		if downsideOnly && r >= 0 {
			continue
		}
		d := r - mean
		if downsideOnly {
			d = r
		}
		variance += d * d
		n++
	}
	if downsideOnly {
		// Downside deviation still averages over all observations.
		n = len(returns)
	}
	if n == 0 {
		return 0
	}
	stddev := math.Sqrt(variance / float64(n))
	if stddev == 0 {
		return 0
	}

	return mean / stddev * math.Sqrt(sessionsPerYear)
}

func maxDrawdown(equity []EquityPoint) float64 {
	peak := equity[0].TotalValue
	worst := 0.0
	for _, p := range equity[1:] {
		if p.TotalValue > peak {
			peak = p.TotalValue
			continue
		}
		if peak > 0 {
			dd := (peak - p.TotalValue) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// winRate measures the fraction of rebalance-to-rebalance periods that
// ended above where they started.
func winRate(equity []EquityPoint, records []contracts.RebalanceRecord) (float64, int) {
	if len(records) < 2 {
		return 0, 0
	}

	valueAt := make(map[string]float64, len(equity))
	for _, p := range equity {
		valueAt[p.Date.Format("2006-01-02")] = p.TotalValue
	}

	wins, periods := 0, 0
	for i := 1; i < len(records); i++ {
		prev, okPrev := valueAt[records[i-1].Date.Format("2006-01-02")]
		cur, okCur := valueAt[records[i].Date.Format("2006-01-02")]
		if !okPrev || !okCur || prev <= 0 {
			continue
		}
		periods++
		if cur > prev {
			wins++
		}
	}
	if periods == 0 {
		return 0, 0
	}
	return float64(wins) / float64(periods), periods
}
