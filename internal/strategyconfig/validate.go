package strategyconfig

import "fmt"

// Validate rejects parameter sets that would make the pipeline
// ill-defined. Threshold tuning is out of scope; this only checks shape.
func Validate(cfg *Config) error {
	if cfg.Data.LookbackDays <= 0 {
		return fmt.Errorf("data.lookback_days must be positive")
	}
	if cfg.Data.RebalanceDays <= 0 {
		return fmt.Errorf("data.rebalance_days must be positive")
	}

	c := cfg.Coarse
	if c.Turnover.Quantile < 0 || c.Turnover.Quantile >= 1 {
		return fmt.Errorf("coarse.turnover.quantile must be in [0,1)")
	}
	if c.Valuation.ClampMin >= c.Valuation.ClampMax {
		return fmt.Errorf("coarse.valuation clamp range is inverted")
	}
	if c.Momentum.CoreLow >= c.Momentum.CoreHigh {
		return fmt.Errorf("coarse.momentum core range is inverted")
	}
	if c.Momentum.ShortWindow >= c.Momentum.LongWindow {
		return fmt.Errorf("coarse.momentum short window must be below long window")
	}

	r := c.Momentum.Relaxation
	if r.GrowthFactor <= 0 || r.GrowthFactor >= 1 {
		return fmt.Errorf("relaxation.growth_factor must loosen, got %v", r.GrowthFactor)
	}
	if r.RelaxedMinUpDays >= c.Momentum.TrendMinUpDays {
		return fmt.Errorf("relaxation.relaxed_min_up_days must be below trend_min_up_days")
	}

	f := cfg.Fine
	if f.Workers <= 0 {
		return fmt.Errorf("fine.workers must be positive")
	}
	if f.PassScore <= f.BaseScore {
		return fmt.Errorf("fine.pass_score must exceed base_score")
	}
	if f.RelaxFactor <= 0 || f.RelaxFactor >= 1 {
		return fmt.Errorf("fine.relax_factor must loosen, got %v", f.RelaxFactor)
	}
	if len(f.MATrend.Windows) == 0 {
		return fmt.Errorf("fine.ma_trend.windows must not be empty")
	}

	if cfg.Regime.ShortMA >= cfg.Regime.LongMA {
		return fmt.Errorf("regime short MA must be below long MA")
	}
	if len(cfg.Regime.Params) == 0 {
		return fmt.Errorf("regime.params must not be empty")
	}
	for label, sizing := range cfg.Regime.Params {
		if sizing.MaxPositions <= 0 {
			return fmt.Errorf("regime %s: max_positions must be positive", label)
		}
		if sizing.MaxCashRatio < 0 || sizing.MaxCashRatio >= 1 {
			return fmt.Errorf("regime %s: max_cash_ratio must be in [0,1)", label)
		}
	}

	e := cfg.Execution
	if e.CommissionRate < 0 || e.MaxCommissionPct <= 0 {
		return fmt.Errorf("execution commission parameters are invalid")
	}
	if e.StopLoss <= 0 || e.TakeProfit <= 0 {
		return fmt.Errorf("execution exit thresholds must be positive")
	}
	if e.DrawdownCap <= 0 || e.DrawdownCap >= 1 {
		return fmt.Errorf("execution.drawdown_cap must be in (0,1)")
	}

	return nil
}
