package regime

import (
	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Classifier derives the market regime from the benchmark index closes.
// Stateless: both trend and volatility are recomputed from scratch each
// rebalance.
type Classifier struct {
	cfg    strategyconfig.Regime
	logger *logger.Logger
}

// NewClassifier creates a market regime classifier.
func NewClassifier(cfg strategyconfig.Regime, log *logger.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: log}
}

// Classify maps the benchmark closes to a regime and its sizing
// parameters. Too little history for the long moving average falls back
// to NEUTRAL rather than guessing a trend.
func (c *Classifier) Classify(benchmark []float64) contracts.RegimeParams {
	label := contracts.RegimeNeutral

	if len(benchmark) >= c.cfg.LongMA {
		price := benchmark[len(benchmark)-1]
		shortMA := tailMean(benchmark, c.cfg.ShortMA)
		longMA := tailMean(benchmark, c.cfg.LongMA)
		volatile := c.isVolatile(benchmark)

		switch {
		case shortMA > longMA && price > shortMA:
			label = contracts.RegimeUptrendCalm
			if volatile {
				label = contracts.RegimeUptrendVolatile
			}
		case shortMA < longMA && price < shortMA:
			label = contracts.RegimeDowntrendCalm
			if volatile {
				label = contracts.RegimeDowntrendVolatile
			}
		}
	} else {
		c.logger.WithField("closes", len(benchmark)).Warn("Benchmark history too short, assuming neutral regime")
	}

	params := c.paramsFor(label)

	c.logger.WithFields(map[string]interface{}{
		"regime":         string(label),
		"max_positions":  params.MaxPositions,
		"max_cash_ratio": params.MaxCashRatio,
	}).Info("Market regime classified")

	return params
}

// isVolatile measures the trailing high-low range against the low.
func (c *Classifier) isVolatile(benchmark []float64) bool {
	window := c.cfg.RangeWindow
	if window > len(benchmark) {
		window = len(benchmark)
	}
	tail := benchmark[len(benchmark)-window:]

	lo, hi := tail[0], tail[0]
	for _, v := range tail[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo <= 0 {
		return true
	}
	return (hi-lo)/lo > c.cfg.HighVolCutoff
}

func (c *Classifier) paramsFor(label contracts.Regime) contracts.RegimeParams {
	sizing, ok := c.cfg.Params[string(label)]
	if !ok {
		sizing = c.cfg.Params[string(contracts.RegimeNeutral)]
	}
	return contracts.RegimeParams{
		Label:        label,
		MaxPositions: sizing.MaxPositions,
		MaxCashRatio: sizing.MaxCashRatio,
	}
}

func tailMean(series []float64, window int) float64 {
	start := len(series) - window
	if start < 0 {
		start = 0
	}
	tail := series[start:]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(len(tail))
}
