package contracts

import "time"

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderReason tags why an order intent was produced.
type OrderReason string

const (
	ReasonRebalance  OrderReason = "REBALANCE"
	ReasonStopLoss   OrderReason = "STOP_LOSS"
	ReasonTakeProfit OrderReason = "TAKE_PROFIT"
	ReasonDrawdown   OrderReason = "DRAWDOWN_TRIM"
	ReasonDeselect   OrderReason = "DESELECTED"
)

// OrderIntent is what the engine exposes to the execution/reporting
// boundary: a desired trade, before any broker-level concerns.
type OrderIntent struct {
	Date        time.Time   `json:"date"`
	Code        string      `json:"code"`
	Side        OrderSide   `json:"side"`
	Shares      int64       `json:"shares"` // multiple of LotSize
	Price       float64     `json:"price"`  // reference price used for sizing
	TargetValue float64     `json:"target_value"`
	Reason      OrderReason `json:"reason"`
}

// Value returns the notional value of the intent.
func (o *OrderIntent) Value() float64 {
	return float64(o.Shares) * o.Price
}

// ExitSignal is emitted when a held position hits an exit rule. It is
// published to the reporting layer alongside the resulting sell intent.
type ExitSignal struct {
	Date      time.Time   `json:"date"`
	Code      string      `json:"code"`
	Reason    OrderReason `json:"reason"`
	AvgCost   float64     `json:"avg_cost"`
	LastPrice float64     `json:"last_price"`
	ReturnPct float64     `json:"return_pct"`
}
