package execution

import (
	"time"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/portfolio"
)

// Phase is one step of the rebalance cycle state machine.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStopLoss Phase = "STOP_LOSS_CHECK"
	PhaseDrawdown Phase = "DRAWDOWN_CHECK"
	PhaseRegime   Phase = "REGIME_CLASSIFICATION"
	PhaseRanking  Phase = "RANKING"
	PhaseSell     Phase = "SELL_PHASE"
	PhaseBuy      Phase = "BUY_PHASE"
)

// CycleHooks plugs the screening side of the pipeline into the cycle:
// regime classification and the construction of the rebalance plan. Both
// run on the cycle's goroutine.
type CycleHooks struct {
	Classify func() contracts.RegimeParams
	Plan     func(params contracts.RegimeParams) portfolio.Plan
}

// CycleResult is everything one rebalance cycle produced.
type CycleResult struct {
	Params          contracts.RegimeParams
	Selected        []string
	Orders          []contracts.OrderIntent
	Exits           []contracts.ExitSignal
	DrawdownTripped bool
}

// enter logs the phase transition and returns the new phase.
func (s *Simulator) enter(phase Phase) Phase {
	s.logger.WithField("phase", string(phase)).Debug("Rebalance cycle phase")
	return phase
}

// RunCycle drives one full rebalance through the fixed phase order:
// stop-loss/take-profit checks, the drawdown breaker (terminal when
// tripped), regime classification, ranking, then the sell and buy
// phases. The exit checks always run first so a breached position never
// participates in the new selection's sizing.
func (s *Simulator) RunCycle(date time.Time, prices map[string]float64, hooks CycleHooks) CycleResult {
	var result CycleResult

	s.enter(PhaseIdle)
	s.MarkToMarket(prices)

	s.enter(PhaseStopLoss)
	exitIntents, signals := s.CheckExits(date, prices)
	result.Orders = append(result.Orders, exitIntents...)
	result.Exits = signals

	phase := s.enter(PhaseDrawdown)
	tripped, trims := s.CheckDrawdown(date, prices)
	if tripped {
		result.DrawdownTripped = true
		result.Orders = append(result.Orders, trims...)
		s.logger.WithField("phase", string(phase)).Warn("Rebalance cycle short-circuited by drawdown breaker")
		return result
	}

	s.enter(PhaseRegime)
	result.Params = hooks.Classify()

	s.enter(PhaseRanking)
	plan := hooks.Plan(result.Params)
	result.Selected = plan.Selected

	s.enter(PhaseSell)
	for _, sell := range plan.Sells {
		if s.ExecuteSell(sell) {
			result.Orders = append(result.Orders, sell)
		}
	}

	s.enter(PhaseBuy)
	for _, buy := range plan.Buys {
		if s.ExecuteBuy(buy) {
			result.Orders = append(result.Orders, buy)
		}
	}
	s.enter(PhaseIdle)

	s.logger.WithFields(map[string]interface{}{
		"orders":      len(result.Orders),
		"exits":       len(result.Exits),
		"total_value": s.pf.TotalValue,
	}).Info("Rebalance cycle completed")

	return result
}
