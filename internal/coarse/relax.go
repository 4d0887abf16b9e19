package coarse

import (
	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Relaxation ladder levels.
const (
	LevelStrict      = 0 // full momentum rule set
	LevelGrowthRelax = 1 // growth threshold lowered to GrowthFactor of original
	LevelTrendRelax  = 2 // additionally looser trend requirement
)

// RelaxationController applies the momentum filter and, when the
// survivor set is under-filled, walks a linear three-level loosening
// ladder. Thresholds only ever loosen within one call; the ladder never
// revisits a stricter level and never goes past level 2.
type RelaxationController struct {
	cfg    strategyconfig.MomentumFilter
	logger *logger.Logger
}

// NewRelaxationController creates the controller. It holds no state
// across rebalance calls.
func NewRelaxationController(cfg strategyconfig.MomentumFilter, log *logger.Logger) *RelaxationController {
	return &RelaxationController{cfg: cfg, logger: log}
}

// Apply runs the momentum filter over the candidates, relaxing as needed.
// Returns the surviving candidates (with momentum stats filled in) and
// the ladder level that produced them.
func (rc *RelaxationController) Apply(candidates []contracts.Candidate, fs *contracts.FrameSet, universeSize int) ([]contracts.Candidate, int) {
	relax := rc.cfg.Relaxation

	trigger := relax.TriggerSmallUniverse
	if universeSize >= relax.UniverseCutoff {
		trigger = relax.TriggerLargeUniverse
	}

	// Stats are computed once; only the predicate set changes per level.
	stats := make([]MomentumStats, len(candidates))
	for i := range candidates {
		frame, ok := fs.Frames[candidates[i].Code]
		if !ok {
			continue
		}
		stats[i] = momentumStats(candidates[i], frame, rc.cfg)
	}

	// Level A: strict.
	survivors := rc.retain(candidates, stats, rc.cfg.GrowthThreshold, rc.cfg.TrendMinUpDays)
	if len(survivors) >= trigger {
		return survivors, LevelStrict
	}

	// Level B: growth threshold lowered, all other conditions kept.
	relaxedGrowth := rc.cfg.GrowthThreshold * relax.GrowthFactor
	rc.logger.WithFields(map[string]interface{}{
		"survivors":        len(survivors),
		"trigger":          trigger,
		"growth_threshold": relaxedGrowth,
	}).Warn("Momentum filter under-filled, relaxing growth threshold")

	survivors = rc.retain(candidates, stats, relaxedGrowth, rc.cfg.TrendMinUpDays)
	if len(survivors) >= (trigger+1)/2 {
		return survivors, LevelGrowthRelax
	}

	// Level C: additionally loosen the trend requirement. This level is
	// terminal; whatever results is returned even if still under-filled.
	rc.logger.WithFields(map[string]interface{}{
		"survivors":   len(survivors),
		"min_up_days": relax.RelaxedMinUpDays,
	}).Warn("Momentum filter still under-filled, relaxing trend requirement")

	survivors = rc.retain(candidates, stats, relaxedGrowth, relax.RelaxedMinUpDays)
	return survivors, LevelTrendRelax
}

func (rc *RelaxationController) retain(candidates []contracts.Candidate, stats []MomentumStats, growthThreshold float64, minUpDays int) []contracts.Candidate {
	pred := retentionPredicate(rc.cfg, growthThreshold, minUpDays)

	survivors := make([]contracts.Candidate, 0, len(candidates))
	for i := range candidates {
		if !pred(stats[i]) {
			continue
		}
		cand := candidates[i]
		cand.Stats.MomShort = stats[i].Short
		cand.Stats.MomLong = stats[i].Long
		cand.Stats.MomGrowth = stats[i].Growth
		cand.Stats.MomVolatility = stats[i].Volatility
		survivors = append(survivors, cand)
	}
	return survivors
}
