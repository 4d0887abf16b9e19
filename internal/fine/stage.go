package fine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Stage runs the per-candidate deep evaluation across a bounded worker
// pool. Workers only read per-candidate frame slices; no shared state is
// written until the merge step on the calling goroutine.
type Stage struct {
	cfg    strategyconfig.Fine
	logger *logger.Logger
}

// NewStage creates a fine screening stage.
func NewStage(cfg strategyconfig.Fine, log *logger.Logger) *Stage {
	return &Stage{cfg: cfg, logger: log}
}

// task is one unit of work for the pool: a candidate plus the read-only
// slices it is scored against.
type task struct {
	cand  contracts.Candidate
	frame *contracts.Frame
	bench []float64
}

// outcome is the result of scoring one candidate. A non-nil err marks
// the candidate non-qualifying; it never aborts the batch.
type outcome struct {
	cand contracts.Candidate
	err  error
}

// Run scores every candidate and returns the qualified set ordered by
// score descending, code ascending. When fewer than MinQualified names
// clear the pass threshold out of at least MinEvaluated scored, the
// threshold is lowered to RelaxFactor of its value and the qualified set
// is re-derived from the already-computed scores, merged by code.
func (s *Stage) Run(ctx context.Context, candidates []contracts.Candidate, fs *contracts.FrameSet) []contracts.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	scored := s.scoreAll(candidates, fs)

	qualified := filterByScore(scored, s.cfg.PassScore)
	if len(qualified) < s.cfg.MinQualified && len(scored) >= s.cfg.MinEvaluated {
		relaxed := int(math.Round(float64(s.cfg.PassScore) * s.cfg.RelaxFactor))
		s.logger.WithFields(map[string]interface{}{
			"qualified":     len(qualified),
			"evaluated":     len(scored),
			"relaxed_score": relaxed,
		}).Warn("Fine stage under-filled, lowering pass threshold")

		qualified = mergeByCode(qualified, filterByScore(scored, relaxed))
	}

	sort.Slice(qualified, func(i, j int) bool {
		if qualified[i].Score != qualified[j].Score {
			return qualified[i].Score > qualified[j].Score
		}
		return qualified[i].Code < qualified[j].Code
	})

	s.logger.WithFields(map[string]interface{}{
		"evaluated": len(scored),
		"qualified": len(qualified),
	}).Info("Fine screening completed")

	return qualified
}

// scoreAll fans the candidates out to the worker pool and collects the
// results. Completion order does not matter: each outcome is independent
// and keyed by the candidate it carries.
func (s *Stage) scoreAll(candidates []contracts.Candidate, fs *contracts.FrameSet) []contracts.Candidate {
	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	tasks := make(chan task)
	outcomes := make(chan outcome, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				outcomes <- s.evaluate(t)
			}
		}()
	}

	go func() {
		for _, cand := range candidates {
			frame, ok := fs.Frames[cand.Code]
			if !ok {
				s.logger.WithField("code", cand.Code).Debug("No frame for candidate, excluding")
				continue
			}
			tasks <- task{cand: cand, frame: frame, bench: fs.Benchmark}
		}
		close(tasks)
		wg.Wait()
		close(outcomes)
	}()

	scored := make([]contracts.Candidate, 0, len(candidates))
	for out := range outcomes {
		if out.err != nil {
			s.logger.WithError(out.err).WithField("code", out.cand.Code).
				Warn("Candidate evaluation failed, marked non-qualifying")
			out.cand.Score = 0
		}
		scored = append(scored, out.cand)
	}
	return scored
}

// evaluate scores a single candidate. Panics inside any check are
// converted to an error so one bad frame cannot take down the batch.
func (s *Stage) evaluate(t task) (out outcome) {
	out.cand = t.cand

	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic scoring %s: %v", t.cand.Code, r)
		}
	}()

	score := s.cfg.BaseScore

	points, count := pulseScore(t.frame, s.cfg.Pulse)
	score += points
	out.cand.Diagnostics.PulseCount = count

	points, quantile := positionScore(t.frame, s.cfg.Position)
	score += points
	out.cand.Diagnostics.PriceQuantile = quantile

	points, spread, slope := maTrendScore(t.frame, s.cfg.MATrend)
	score += points
	out.cand.Diagnostics.MASpread = spread
	out.cand.Diagnostics.MA60Slope = slope

	points, outperf := relativeScore(t.frame, t.bench)
	score += points
	out.cand.Diagnostics.Outperformance = outperf

	out.cand.Score = score
	return out
}

func filterByScore(scored []contracts.Candidate, passScore int) []contracts.Candidate {
	out := make([]contracts.Candidate, 0, len(scored))
	for _, c := range scored {
		if c.Score >= passScore {
			out = append(out, c)
		}
	}
	return out
}

// mergeByCode unions two candidate lists, deduplicating by code. Entries
// from the first list win on conflict.
func mergeByCode(a, b []contracts.Candidate) []contracts.Candidate {
	seen := make(map[string]struct{}, len(a))
	out := make([]contracts.Candidate, 0, len(a)+len(b))
	for _, c := range a {
		seen[c.Code] = struct{}{}
		out = append(out, c)
	}
	for _, c := range b {
		if _, dup := seen[c.Code]; dup {
			continue
		}
		seen[c.Code] = struct{}{}
		out = append(out, c)
	}
	return out
}
