package coarse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// slowMomentum builds a series passing every rule except that growth is
// only ~5%: fails the strict 10% threshold, clears the relaxed 3%.
func slowMomentum() []float64 {
	series := make([]float64, 20)
	for i := 0; i < 15; i++ {
		series[i] = 98.3333333
	}
	copy(series[15:], []float64{103, 104, 105, 106, 107})
	return series
}

// choppyMomentum grows ~5% but shows only 2 of 4 up days: needs the
// level-C trend relaxation on top of the growth relaxation.
func choppyMomentum() []float64 {
	series := make([]float64, 20)
	for i := 0; i < 15; i++ {
		series[i] = 97.4533333
	}
	copy(series[15:], []float64{103, 104, 103.5, 105, 104.8})
	return series
}

func relaxFixture(t *testing.T, momentums map[string][]float64) ([]contracts.Candidate, *contracts.FrameSet) {
	t.Helper()

	candidates := make([]contracts.Candidate, 0, len(momentums))
	frames := make([]*contracts.Frame, 0, len(momentums))
	for code, series := range momentums {
		candidates = append(candidates, contracts.Candidate{Code: code, Industry: "电子"})
		frames = append(frames, makeFrame(code, "电子", frameOpts{turnover: 5, momentum: series}))
	}
	return candidates, newFrameSet(frames...)
}

func TestRelaxation_StrictIsEnough(t *testing.T) {
	cfg := strategyconfig.Default().Coarse.Momentum
	cfg.Relaxation.TriggerSmallUniverse = 1

	momentums := map[string][]float64{"600001": passingMomentum()}
	candidates, fs := relaxFixture(t, momentums)

	rc := NewRelaxationController(cfg, logger.NewNop())
	survivors, level := rc.Apply(candidates, fs, 500)

	assert.Equal(t, LevelStrict, level)
	require.Len(t, survivors, 1)
	assert.Equal(t, "600001", survivors[0].Code)
}

func TestRelaxation_CoreRangePassesStrict(t *testing.T) {
	// Range value inside the core band, growth 11% above the 10%
	// threshold, stable and trending: retained at level A.
	cfg := strategyconfig.Default().Coarse.Momentum

	candidates, fs := relaxFixture(t, map[string][]float64{"600519": passingMomentum()})
	stats := momentumStats(candidates[0], fs.Frames["600519"], cfg)

	assert.True(t, stats.HasHistory)
	assert.InDelta(t, 111.4, stats.RangeValue(), 0.5)
	assert.Greater(t, stats.Growth, cfg.GrowthThreshold)

	pred := retentionPredicate(cfg, cfg.GrowthThreshold, cfg.TrendMinUpDays)
	assert.True(t, pred(stats))
}

func TestRelaxation_GrowthRelaxGrowsSurvivors(t *testing.T) {
	// Large universe (>=3000 names): trigger 10. Only 4 candidates pass
	// the strict filter, so the controller steps to level B with the
	// growth threshold at 30% of its original value, and the survivor
	// set grows.
	cfg := strategyconfig.Default().Coarse.Momentum

	momentums := make(map[string][]float64)
	for _, code := range []string{"600001", "600002", "600003", "600004"} {
		momentums[code] = passingMomentum()
	}
	for _, code := range []string{"600011", "600012", "600013", "600014", "600015", "600016"} {
		momentums[code] = slowMomentum()
	}

	candidates, fs := relaxFixture(t, momentums)

	rc := NewRelaxationController(cfg, logger.NewNop())
	survivors, level := rc.Apply(candidates, fs, 5000)

	assert.Equal(t, LevelGrowthRelax, level)
	assert.Len(t, survivors, 10)
}

func TestRelaxation_TrendRelaxIsTerminal(t *testing.T) {
	// Nothing passes strictly, only choppy candidates exist: the ladder
	// ends at level C and returns whatever survives, even under-filled.
	cfg := strategyconfig.Default().Coarse.Momentum

	momentums := map[string][]float64{
		"600001": choppyMomentum(),
		"600002": choppyMomentum(),
	}
	candidates, fs := relaxFixture(t, momentums)

	rc := NewRelaxationController(cfg, logger.NewNop())
	survivors, level := rc.Apply(candidates, fs, 5000)

	assert.Equal(t, LevelTrendRelax, level)
	assert.Len(t, survivors, 2)
}

func TestRelaxation_OnlyLoosens(t *testing.T) {
	// Every stock retained at a stricter level is retained at every
	// looser level: the ladder can only grow the survivor set.
	cfg := strategyconfig.Default().Coarse.Momentum

	momentums := map[string][]float64{
		"600001": passingMomentum(),
		"600002": slowMomentum(),
		"600003": choppyMomentum(),
	}
	candidates, fs := relaxFixture(t, momentums)

	statsByCode := make(map[string]MomentumStats)
	for _, cand := range candidates {
		statsByCode[cand.Code] = momentumStats(cand, fs.Frames[cand.Code], cfg)
	}

	strict := retentionPredicate(cfg, cfg.GrowthThreshold, cfg.TrendMinUpDays)
	levelB := retentionPredicate(cfg, cfg.GrowthThreshold*cfg.Relaxation.GrowthFactor, cfg.TrendMinUpDays)
	levelC := retentionPredicate(cfg, cfg.GrowthThreshold*cfg.Relaxation.GrowthFactor, cfg.Relaxation.RelaxedMinUpDays)

	for code, stats := range statsByCode {
		if strict(stats) {
			assert.True(t, levelB(stats), "level B dropped %s retained at level A", code)
		}
		if levelB(stats) {
			assert.True(t, levelC(stats), "level C dropped %s retained at level B", code)
		}
	}

	// And the fixture actually exercises all three levels.
	assert.True(t, strict(statsByCode["600001"]))
	assert.False(t, strict(statsByCode["600002"]))
	assert.True(t, levelB(statsByCode["600002"]))
	assert.False(t, levelB(statsByCode["600003"]))
	assert.True(t, levelC(statsByCode["600003"]))
}

func TestRelaxation_TriggerDependsOnUniverseSize(t *testing.T) {
	cfg := strategyconfig.Default().Coarse.Momentum

	// 12 strict survivors: enough for the large-universe trigger (10),
	// not for the small-universe trigger (15).
	momentums := make(map[string][]float64)
	for i := 0; i < 12; i++ {
		momentums[string(rune('A'+i))] = passingMomentum()
	}
	candidates, fs := relaxFixture(t, momentums)

	rc := NewRelaxationController(cfg, logger.NewNop())

	_, level := rc.Apply(candidates, fs, 5000)
	assert.Equal(t, LevelStrict, level)

	_, level = rc.Apply(candidates, fs, 800)
	assert.NotEqual(t, LevelStrict, level)
}
