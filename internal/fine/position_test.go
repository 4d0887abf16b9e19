package fine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wqlab/screener/internal/strategyconfig"
)

func positionCfg() strategyconfig.PricePosition {
	return strategyconfig.Default().Fine.Position
}

func TestPositionScore_ConsolidationNearLow(t *testing.T) {
	// Decline from 20 to 10, then twenty flat sessions at the low.
	closes := make([]float64, 150)
	for i := 0; i < 130; i++ {
		closes[i] = 20 - 10*float64(i)/129
	}
	for i := 130; i < 150; i++ {
		closes[i] = 10
	}

	points, quantile := positionScore(frameOf("600001", closes, 2.0), positionCfg())
	assert.Equal(t, 1, points)
	assert.LessOrEqual(t, quantile, 0.05)
}

func TestPositionScore_NearHighFails(t *testing.T) {
	closes := make([]float64, 150)
	for i := range closes {
		closes[i] = 10 + 10*float64(i)/149
	}

	points, quantile := positionScore(frameOf("600001", closes, 2.0), positionCfg())
	assert.Equal(t, 0, points)
	assert.Greater(t, quantile, 0.9)
}

func TestPositionScore_NoCompressionFails(t *testing.T) {
	// Sits at the range low but the last twenty sessions still swing
	// 20%: not a consolidation.
	closes := make([]float64, 150)
	for i := 0; i < 130; i++ {
		closes[i] = 15
	}
	for i := 130; i < 150; i++ {
		closes[i] = 12 - 2*float64(i-130)/19
	}

	points, quantile := positionScore(frameOf("600001", closes, 2.0), positionCfg())
	assert.Equal(t, 0, points)
	assert.InDelta(t, 0.0, quantile, 1e-9)
}

func TestPositionScore_InsufficientHistory(t *testing.T) {
	points, quantile := positionScore(frameOf("600001", flatCloses(60, 10), 2.0), positionCfg())
	assert.Equal(t, 0, points)
	assert.Equal(t, 0.0, quantile)
}

func TestPositionScore_FlatRange(t *testing.T) {
	// Degenerate zero-width range cannot be scored.
	points, quantile := positionScore(frameOf("600001", flatCloses(150, 10), 2.0), positionCfg())
	assert.Equal(t, 0, points)
	assert.Equal(t, 0.0, quantile)
}
