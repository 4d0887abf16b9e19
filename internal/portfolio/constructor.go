package portfolio

import (
	"sort"
	"time"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Constructor turns a scored candidate list plus regime sizing into a
// concrete rebalance plan. It is a pure function of its inputs: the same
// screening result against the same portfolio always yields the same
// orders.
type Constructor struct {
	cfg    strategyconfig.Portfolio
	exec   strategyconfig.Execution
	logger *logger.Logger
}

// Plan is the target state for one rebalance: who is selected, which
// held names get liquidated, and the sized buy intents for new names.
type Plan struct {
	Selected []string
	Sells    []contracts.OrderIntent
	Buys     []contracts.OrderIntent
}

// NewConstructor creates a portfolio constructor.
func NewConstructor(cfg strategyconfig.Portfolio, exec strategyconfig.Execution, log *logger.Logger) *Constructor {
	return &Constructor{cfg: cfg, exec: exec, logger: log}
}

// Build ranks candidates by score, keeps the regime's position cap, and
// sizes buys for names not already held. Positions no longer selected
// are planned as full liquidations; positions still selected are left
// untouched. Buys are sized against cash as it would stand after the
// planned sells settle.
//
// The invested budget divides by the full selection count, not just the
// new names: a period that keeps positions reserves their slots rather
// than concentrating the freed budget into the few additions, keeping
// the aggregate cash ratio at its regime target.
func (c *Constructor) Build(date time.Time, candidates []contracts.Candidate, params contracts.RegimeParams, pf *contracts.Portfolio, prices map[string]float64) Plan {
	selected := rankAndCut(candidates, params.MaxPositions)

	plan := Plan{Selected: codesOf(selected)}

	selectedSet := make(map[string]struct{}, len(selected))
	for _, code := range plan.Selected {
		selectedSet[code] = struct{}{}
	}

	available := pf.Cash
	for _, code := range heldCodes(pf) {
		if _, keep := selectedSet[code]; keep {
			continue
		}
		pos := pf.Positions[code]
		price, ok := prices[code]
		if !ok || price <= 0 {
			price = pos.AvgCost
		}
		intent := contracts.OrderIntent{
			Date:   date,
			Code:   code,
			Side:   contracts.OrderSideSell,
			Shares: pos.Shares,
			Price:  price,
			Reason: contracts.ReasonDeselect,
		}
		plan.Sells = append(plan.Sells, intent)
		available += intent.Value() - Commission(intent.Value(), c.exec)
	}

	newNames := make([]contracts.Candidate, 0, len(selected))
	for _, cand := range selected {
		if !pf.Held(cand.Code) {
			newNames = append(newNames, cand)
		}
	}
	if len(newNames) == 0 {
		return plan
	}

	// The invested budget splits evenly across the whole selection;
	// each new name gets one slot's worth.
	budget := pf.TotalValue * (1 - params.MaxCashRatio)
	perName := budget / float64(len(plan.Selected))

	for _, cand := range newNames {
		price, ok := prices[cand.Code]
		if !ok || price <= 0 {
			c.logger.WithField("code", cand.Code).Warn("No price for selected candidate, skipping buy")
			continue
		}

		shares, commission := SizeLots(perName, price, c.exec)
		if shares == 0 {
			c.logger.WithFields(map[string]interface{}{
				"code":   cand.Code,
				"target": perName,
				"price":  price,
			}).Debug("Target too small for one lot, skipping buy")
			continue
		}

		required := float64(shares)*price + commission
		if required > available*(1+c.cfg.CashTolerance) {
			c.logger.WithFields(map[string]interface{}{
				"code":      cand.Code,
				"required":  required,
				"available": available,
			}).Warn("Insufficient cash for sized order, skipping buy")
			continue
		}

		plan.Buys = append(plan.Buys, contracts.OrderIntent{
			Date:        date,
			Code:        cand.Code,
			Side:        contracts.OrderSideBuy,
			Shares:      shares,
			Price:       price,
			TargetValue: perName,
			Reason:      contracts.ReasonRebalance,
		})
		available -= required
	}

	return plan
}

// rankAndCut orders by score descending, code ascending, and keeps the
// top maxPositions.
func rankAndCut(candidates []contracts.Candidate, maxPositions int) []contracts.Candidate {
	ranked := make([]contracts.Candidate, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Code < ranked[j].Code
	})
	if maxPositions > 0 && len(ranked) > maxPositions {
		ranked = ranked[:maxPositions]
	}
	return ranked
}

// SizeLots converts a target value into a lot-aligned share count whose
// estimated commission stays under the configured fraction of trade
// value, growing the order one lot at a time until it does. Returns zero
// shares when not even a grown order can satisfy the bound.
func SizeLots(targetValue, price float64, exec strategyconfig.Execution) (int64, float64) {
	if price <= 0 || targetValue <= 0 {
		return 0, 0
	}

	lots := int64(targetValue / (price * contracts.LotSize))
	if lots == 0 {
		return 0, 0
	}

	for {
		shares := lots * contracts.LotSize
		value := float64(shares) * price
		commission := Commission(value, exec)
		if commission <= exec.MaxCommissionPct*value {
			return shares, commission
		}
		// One more lot raises the value until the minimum fee fits
		// under the cap.
		lots++
		if float64(lots*contracts.LotSize)*price > targetValue*4 {
			return 0, 0
		}
	}
}

// Commission estimates the fee for a trade of the given value.
func Commission(value float64, exec strategyconfig.Execution) float64 {
	fee := exec.CommissionRate * value
	if fee < exec.MinCommission {
		fee = exec.MinCommission
	}
	return fee
}

func codesOf(candidates []contracts.Candidate) []string {
	codes := make([]string, len(candidates))
	for i, c := range candidates {
		codes[i] = c.Code
	}
	return codes
}

func heldCodes(pf *contracts.Portfolio) []string {
	codes := make([]string, 0, len(pf.Positions))
	for code, pos := range pf.Positions {
		if pos.Shares > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}
