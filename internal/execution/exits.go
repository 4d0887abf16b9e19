package execution

import (
	"sort"
	"time"

	"github.com/wqlab/screener/internal/contracts"
)

// CheckExits applies the stop-loss and take-profit rules to every held
// position and liquidates breaches in full. Runs before any rebalance
// logic for the date. Returns the fills and the signals that caused
// them, ordered by code.
func (s *Simulator) CheckExits(date time.Time, prices map[string]float64) ([]contracts.OrderIntent, []contracts.ExitSignal) {
	var intents []contracts.OrderIntent
	var signals []contracts.ExitSignal

	for _, code := range s.heldCodes() {
		pos := s.pf.Positions[code]
		price, ok := prices[code]
		if !ok || price <= 0 || pos.AvgCost <= 0 {
			continue
		}

		ret := price/pos.AvgCost - 1

		var reason contracts.OrderReason
		switch {
		case ret <= -s.cfg.StopLoss:
			reason = contracts.ReasonStopLoss
		case ret >= s.cfg.TakeProfit:
			reason = contracts.ReasonTakeProfit
		default:
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"code":       code,
			"avg_cost":   pos.AvgCost,
			"last_price": price,
			"return_pct": ret,
			"reason":     string(reason),
		}).Info("Exit rule fired, liquidating position")

		signals = append(signals, contracts.ExitSignal{
			Date:      date,
			Code:      code,
			Reason:    reason,
			AvgCost:   pos.AvgCost,
			LastPrice: price,
			ReturnPct: ret,
		})
		intents = append(intents, s.liquidate(date, pos, price, reason))
	}

	return intents, signals
}

// CheckDrawdown trips the circuit breaker when the peak-to-current loss
// exceeds the cap, trimming every position toward the configured low
// target weight. A trip means the caller must skip the period's buy
// logic entirely.
func (s *Simulator) CheckDrawdown(date time.Time, prices map[string]float64) (bool, []contracts.OrderIntent) {
	if s.pf.Drawdown() <= s.cfg.DrawdownCap {
		return false, nil
	}

	s.logger.WithFields(map[string]interface{}{
		"drawdown": s.pf.Drawdown(),
		"cap":      s.cfg.DrawdownCap,
	}).Warn("Drawdown breaker tripped, trimming all positions")

	var intents []contracts.OrderIntent
	for _, code := range s.heldCodes() {
		pos := s.pf.Positions[code]
		price, ok := prices[code]
		if !ok || price <= 0 {
			continue
		}

		targetValue := s.cfg.TrimTargetWeight * s.pf.TotalValue
		keepShares := int64(targetValue/(price*contracts.LotSize)) * contracts.LotSize
		sellShares := pos.Shares - keepShares
		if sellShares <= 0 {
			continue
		}

		intent := contracts.OrderIntent{
			Date:        date,
			Code:        code,
			Side:        contracts.OrderSideSell,
			Shares:      sellShares,
			Price:       price,
			TargetValue: targetValue,
			Reason:      contracts.ReasonDrawdown,
		}
		s.ExecuteSell(intent)
		intents = append(intents, intent)
	}

	return true, intents
}

// heldCodes returns held position codes in deterministic order.
func (s *Simulator) heldCodes() []string {
	codes := make([]string, 0, len(s.pf.Positions))
	for code, pos := range s.pf.Positions {
		if pos.Shares > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
