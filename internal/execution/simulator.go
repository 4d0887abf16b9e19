package execution

import (
	"time"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/portfolio"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// Simulator owns the portfolio. All mutation happens here, on a single
// goroutine, after any parallel scoring has completed; nothing else
// holds a reference that writes.
type Simulator struct {
	cfg    strategyconfig.Execution
	pf     *contracts.Portfolio
	logger *logger.Logger
}

// NewSimulator creates a simulator over a fresh portfolio with the given
// starting cash.
func NewSimulator(cfg strategyconfig.Execution, startingCash float64, log *logger.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		pf:     contracts.NewPortfolio(startingCash),
		logger: log,
	}
}

// Portfolio exposes the simulated account for read access.
func (s *Simulator) Portfolio() *contracts.Portfolio {
	return s.pf
}

// MarkToMarket revalues every position at the given prices and advances
// the high-water mark. Positions without a quote keep their previous
// market value.
func (s *Simulator) MarkToMarket(prices map[string]float64) {
	for code, pos := range s.pf.Positions {
		price, ok := prices[code]
		if !ok || price <= 0 {
			continue
		}
		pos.MarketValue = float64(pos.Shares) * price
	}
	s.pf.Revalue()
}

// ExecuteBuy fills a buy intent against available cash. The commission
// is folded into the position's average cost. Returns false when the
// fill was skipped.
func (s *Simulator) ExecuteBuy(intent contracts.OrderIntent) bool {
	value := intent.Value()
	commission := portfolio.Commission(value, s.cfg)
	required := value + commission

	if required > s.pf.Cash {
		s.logger.WithFields(map[string]interface{}{
			"code":     intent.Code,
			"required": required,
			"cash":     s.pf.Cash,
		}).Warn("Buy skipped, insufficient cash at fill time")
		return false
	}

	s.pf.Cash -= required

	pos, ok := s.pf.Positions[intent.Code]
	if !ok {
		pos = &contracts.Position{Code: intent.Code}
		s.pf.Positions[intent.Code] = pos
	}
	totalCost := pos.AvgCost*float64(pos.Shares) + required
	pos.Shares += intent.Shares
	pos.AvgCost = totalCost / float64(pos.Shares)
	pos.MarketValue = float64(pos.Shares) * intent.Price

	s.pf.Revalue()
	return true
}

// ExecuteSell fills a sell intent, capping shares at the held amount.
// Returns false when nothing was held.
func (s *Simulator) ExecuteSell(intent contracts.OrderIntent) bool {
	pos, ok := s.pf.Positions[intent.Code]
	if !ok || pos.Shares == 0 {
		s.logger.WithField("code", intent.Code).Warn("Sell skipped, position not held")
		return false
	}

	shares := intent.Shares
	if shares > pos.Shares {
		shares = pos.Shares
	}

	value := float64(shares) * intent.Price
	commission := portfolio.Commission(value, s.cfg)
	if commission > value {
		// The minimum fee can exceed a tiny notional; cap it at the
		// proceeds so cash never drops on an exit.
		commission = value
	}
	s.pf.Cash += value - commission

	pos.Shares -= shares
	if pos.Shares == 0 {
		delete(s.pf.Positions, intent.Code)
	} else {
		pos.MarketValue = float64(pos.Shares) * intent.Price
	}

	s.pf.Revalue()
	return true
}

// liquidate builds and fills a full-exit sell for a held position.
func (s *Simulator) liquidate(date time.Time, pos *contracts.Position, price float64, reason contracts.OrderReason) contracts.OrderIntent {
	intent := contracts.OrderIntent{
		Date:   date,
		Code:   pos.Code,
		Side:   contracts.OrderSideSell,
		Shares: pos.Shares,
		Price:  price,
		Reason: reason,
	}
	s.ExecuteSell(intent)
	return intent
}
