package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/wqlab/screener/internal/contracts"
)

// EquityPoint is one mark-to-market observation of the backtest account.
type EquityPoint struct {
	Date       time.Time `json:"date"`
	TotalValue float64   `json:"total_value"`
}

// BacktestReport is the outcome of one backtest run.
type BacktestReport struct {
	Start        time.Time                   `json:"start"`
	End          time.Time                   `json:"end"`
	StartingCash float64                     `json:"starting_cash"`
	FinalValue   float64                     `json:"final_value"`
	Equity       []EquityPoint               `json:"equity"`
	Records      []contracts.RebalanceRecord `json:"records"`
	Metrics      PerformanceMetrics          `json:"metrics"`
}

// Backtest walks every session from start to end, rebalancing every
// RebalanceDays sessions and running the lightweight exit monitor on the
// days between. Loop state (session counter, last rebalance date) lives
// in locals; nothing survives the call except the report and the
// orchestrator's audit log.
func (o *Orchestrator) Backtest(ctx context.Context, start, end time.Time) (*BacktestReport, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("backtest end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	o.cache.Reset()
	startingCash := o.sim.Portfolio().TotalValue

	report := &BacktestReport{
		Start:        start,
		End:          end,
		StartingCash: startingCash,
	}

	session := 0
	var lastRebalance time.Time

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if !isTradingDay(date) {
			continue
		}

		if session%o.cfg.Data.RebalanceDays == 0 {
			if _, err := o.Rebalance(ctx, date); err != nil {
				return nil, fmt.Errorf("rebalance %s: %w", date.Format("2006-01-02"), err)
			}
			lastRebalance = date
		} else {
			if err := o.Monitor(ctx, date); err != nil {
				o.logger.WithError(err).WithField("date", date.Format("2006-01-02")).
					Warn("Daily monitoring failed, carrying previous marks")
			}
		}
		session++

		report.Equity = append(report.Equity, EquityPoint{
			Date:       date,
			TotalValue: o.sim.Portfolio().TotalValue,
		})
	}

	report.Records = o.records
	report.FinalValue = o.sim.Portfolio().TotalValue
	report.Metrics = computeMetrics(report.Equity, o.records)

	o.logger.WithFields(map[string]interface{}{
		"sessions":       session,
		"last_rebalance": lastRebalance.Format("2006-01-02"),
		"final_value":    report.FinalValue,
		"cagr":           report.Metrics.CAGR,
		"max_drawdown":   report.Metrics.MaxDrawdown,
	}).Info("Backtest completed")

	return report, nil
}

// isTradingDay excludes weekends. Exchange holidays are already absent
// from the feed, so a rebalance on one degrades to a skipped period.
func isTradingDay(date time.Time) bool {
	wd := date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
