package contracts

// Regime is the discrete market-state classification derived from the
// benchmark index (trend x volatility).
type Regime string

const (
	RegimeUptrendCalm       Regime = "UPTREND_CALM"
	RegimeUptrendVolatile   Regime = "UPTREND_VOLATILE"
	RegimeDowntrendCalm     Regime = "DOWNTREND_CALM"
	RegimeDowntrendVolatile Regime = "DOWNTREND_VOLATILE"
	RegimeNeutral           Regime = "NEUTRAL"
)

// RegimeParams are the portfolio sizing parameters a regime maps to.
// Recomputed each rebalance, never persisted across periods.
type RegimeParams struct {
	Label        Regime  `json:"label"`
	MaxPositions int     `json:"max_positions"`
	MaxCashRatio float64 `json:"max_cash_ratio"` // fraction of total value kept in cash
}
