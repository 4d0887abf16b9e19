package contracts

import "time"

// LotSize is the minimum tradable share increment.
const LotSize = 100

// Position is one holding. Owned exclusively by the execution simulator:
// created on buy, mutated on partial fills, removed when shares reach
// zero. Shares is always a non-negative multiple of LotSize.
type Position struct {
	Code        string  `json:"code"`
	Shares      int64   `json:"shares"`
	AvgCost     float64 `json:"avg_cost"`
	MarketValue float64 `json:"market_value"`
}

// Portfolio is the simulated account. Its lifetime spans the whole
// backtest; only the execution simulator mutates it.
type Portfolio struct {
	Cash          float64              `json:"cash"`
	Positions     map[string]*Position `json:"positions"`
	TotalValue    float64              `json:"total_value"`
	MaxTotalValue float64              `json:"max_total_value"` // drawdown high-water mark
}

// NewPortfolio creates a portfolio with the given starting cash.
func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		Cash:          cash,
		Positions:     make(map[string]*Position),
		TotalValue:    cash,
		MaxTotalValue: cash,
	}
}

// Revalue recomputes total value from cash plus position market values
// and advances the high-water mark.
func (p *Portfolio) Revalue() {
	total := p.Cash
	for _, pos := range p.Positions {
		total += pos.MarketValue
	}
	p.TotalValue = total
	if total > p.MaxTotalValue {
		p.MaxTotalValue = total
	}
}

// Drawdown returns the peak-to-current loss fraction (0 when at the peak).
func (p *Portfolio) Drawdown() float64 {
	if p.MaxTotalValue <= 0 {
		return 0
	}
	return (p.MaxTotalValue - p.TotalValue) / p.MaxTotalValue
}

// Held reports whether a stock is currently held.
func (p *Portfolio) Held(code string) bool {
	pos, ok := p.Positions[code]
	return ok && pos.Shares > 0
}

// Snapshot returns a deep copy for records and reporting.
func (p *Portfolio) Snapshot() PortfolioSnapshot {
	positions := make([]Position, 0, len(p.Positions))
	for _, pos := range p.Positions {
		positions = append(positions, *pos)
	}
	return PortfolioSnapshot{
		Cash:          p.Cash,
		TotalValue:    p.TotalValue,
		MaxTotalValue: p.MaxTotalValue,
		Positions:     positions,
	}
}

// PortfolioSnapshot is an immutable copy of portfolio state.
type PortfolioSnapshot struct {
	Cash          float64    `json:"cash"`
	TotalValue    float64    `json:"total_value"`
	MaxTotalValue float64    `json:"max_total_value"`
	Positions     []Position `json:"positions"`
}

// RebalanceRecord is one entry of the append-only audit log.
type RebalanceRecord struct {
	Date          time.Time         `json:"date"`
	SelectedCodes []string          `json:"selected_codes"`
	RelaxLevel    int               `json:"relax_level"`
	Regime        RegimeParams      `json:"regime"`
	Snapshot      PortfolioSnapshot `json:"snapshot"`
	Reason        string            `json:"reason,omitempty"` // set when the period was skipped or short-circuited
}
