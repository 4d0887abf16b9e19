package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	return NewClassifier(strategyconfig.Default().Regime, logger.NewNop())
}

// rampBenchmark builds a series with a mild per-day drift. The drift
// keeps the 30-day range under the volatility cutoff at small rates and
// over it at large ones.
func rampBenchmark(n int, start, perDay float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + perDay*float64(i)
	}
	return out
}

func TestClassify_UptrendCalm(t *testing.T) {
	// +0.2/day on 1000: 30-day range ~0.6%, well under the 15% cutoff.
	params := newClassifier(t).Classify(rampBenchmark(120, 1000, 0.2))

	assert.Equal(t, contracts.RegimeUptrendCalm, params.Label)
	assert.Equal(t, 10, params.MaxPositions)
	assert.InDelta(t, 0.05, params.MaxCashRatio, 1e-12)
}

func TestClassify_UptrendVolatile(t *testing.T) {
	// +12/day on 1000: 30-day range ~17% of the low.
	params := newClassifier(t).Classify(rampBenchmark(120, 1000, 12))

	assert.Equal(t, contracts.RegimeUptrendVolatile, params.Label)
	assert.Equal(t, 7, params.MaxPositions)
}

func TestClassify_DowntrendCalm(t *testing.T) {
	params := newClassifier(t).Classify(rampBenchmark(120, 1000, -0.2))

	assert.Equal(t, contracts.RegimeDowntrendCalm, params.Label)
	assert.Equal(t, 4, params.MaxPositions)
	assert.InDelta(t, 0.35, params.MaxCashRatio, 1e-12)
}

func TestClassify_DowntrendVolatile(t *testing.T) {
	params := newClassifier(t).Classify(rampBenchmark(120, 2000, -8))

	assert.Equal(t, contracts.RegimeDowntrendVolatile, params.Label)
	assert.Equal(t, 3, params.MaxPositions)
	assert.InDelta(t, 0.50, params.MaxCashRatio, 1e-12)
}

func TestClassify_FlatIsNeutral(t *testing.T) {
	params := newClassifier(t).Classify(rampBenchmark(120, 1000, 0))

	assert.Equal(t, contracts.RegimeNeutral, params.Label)
	assert.Equal(t, 6, params.MaxPositions)
}

func TestClassify_ShortHistoryIsNeutral(t *testing.T) {
	params := newClassifier(t).Classify(rampBenchmark(20, 1000, 8))

	assert.Equal(t, contracts.RegimeNeutral, params.Label)
}

func TestClassify_RecentReversalIsNeutral(t *testing.T) {
	// Long uptrend but price has fallen back under the short MA: the
	// trend test is not met in either direction.
	series := rampBenchmark(120, 1000, 2)
	series[len(series)-1] = series[len(series)-2] - 50

	params := newClassifier(t).Classify(series)
	assert.Equal(t, contracts.RegimeNeutral, params.Label)
}
