package coarse

import (
	"context"
	"sort"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Stage reduces the full universe to a few hundred candidates using only
// market-wide statistics. It is a pure transform over the frame set: no
// I/O, no retained state between calls.
type Stage struct {
	cfg    strategyconfig.Coarse
	logger *logger.Logger
}

// Result carries the survivors plus per-filter diagnostics.
type Result struct {
	Candidates []contracts.Candidate
	RelaxLevel int            // momentum relaxation ladder level used (0..2)
	Counts     map[string]int // filter name -> survivor count
}

// NewStage creates a coarse filter stage.
func NewStage(cfg strategyconfig.Coarse, log *logger.Logger) *Stage {
	return &Stage{cfg: cfg, logger: log}
}

// Run applies the four filters in fixed order. An empty input or a frame
// set without factor data yields an empty result, never an error: the
// caller treats an empty candidate set as a terminal condition for the
// rebalance, not a failure of the pipeline.
func (s *Stage) Run(ctx context.Context, fs *contracts.FrameSet) Result {
	result := Result{Counts: make(map[string]int)}

	if fs == nil || len(fs.Frames) == 0 {
		s.logger.Warn("Coarse stage received empty universe")
		return result
	}

	universeSize := fs.UniverseSize()

	candidates := s.filterTurnover(fs)
	result.Counts["turnover"] = len(candidates)

	candidates = s.filterLiquidity(candidates, fs)
	result.Counts["liquidity"] = len(candidates)

	candidates = s.filterValuation(candidates, fs)
	result.Counts["valuation"] = len(candidates)

	controller := NewRelaxationController(s.cfg.Momentum, s.logger)
	candidates, level := controller.Apply(candidates, fs, universeSize)
	result.Counts["momentum"] = len(candidates)
	result.RelaxLevel = level

	// Deterministic output order regardless of map iteration.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Code < candidates[j].Code
	})

	result.Candidates = candidates

	s.logger.WithFields(map[string]interface{}{
		"universe":    universeSize,
		"turnover":    result.Counts["turnover"],
		"liquidity":   result.Counts["liquidity"],
		"valuation":   result.Counts["valuation"],
		"momentum":    result.Counts["momentum"],
		"relax_level": level,
	}).Info("Coarse filtering completed")

	return result
}
