package strategyconfig

// Config is the full, immutable strategy parameter set. It is constructed
// once (from YAML or Default) and passed by value into every stage; no
// stage reads thresholds from anywhere else.
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Data      Data      `yaml:"data" json:"data"`
	Coarse    Coarse    `yaml:"coarse" json:"coarse"`
	Fine      Fine      `yaml:"fine" json:"fine"`
	Regime    Regime    `yaml:"regime" json:"regime"`
	Portfolio Portfolio `yaml:"portfolio" json:"portfolio"`
	Execution Execution `yaml:"execution" json:"execution"`
}

// Meta identifies the strategy revision.
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
	Benchmark  string `yaml:"benchmark" json:"benchmark"` // index code, e.g. 000300
}

// Data bounds the factor window fetched per rebalance.
type Data struct {
	LookbackDays  int `yaml:"lookback_days" json:"lookback_days"`
	RebalanceDays int `yaml:"rebalance_days" json:"rebalance_days"`
}

// Coarse holds the market-wide filter thresholds.
type Coarse struct {
	Turnover  TurnoverFilter  `yaml:"turnover" json:"turnover"`
	Liquidity LiquidityFilter `yaml:"liquidity" json:"liquidity"`
	Valuation ValuationFilter `yaml:"valuation" json:"valuation"`
	Momentum  MomentumFilter  `yaml:"momentum" json:"momentum"`
}

// TurnoverFilter keeps stocks above a market-wide turnover quantile.
type TurnoverFilter struct {
	Window     int     `yaml:"window" json:"window"`     // trailing mean window (days)
	Quantile   float64 `yaml:"quantile" json:"quantile"` // keep at or above this quantile
	MinObsDays int     `yaml:"min_obs_days" json:"min_obs_days"`
}

// LiquidityFilter enforces traded volume and bounded drawdown from the
// recent high, with one bounded relaxation when fewer than MinSurvivors
// pass.
type LiquidityFilter struct {
	MinValidDays int     `yaml:"min_valid_days" json:"min_valid_days"`
	MinAvgVolume float64 `yaml:"min_avg_volume" json:"min_avg_volume"` // shares/day
	MaxDrop      float64 `yaml:"max_drop" json:"max_drop"`             // from recent high, e.g. 0.25
	HighWindow   int     `yaml:"high_window" json:"high_window"`       // recent-high lookback
	MinSurvivors int     `yaml:"min_survivors" json:"min_survivors"`
	RelaxVolume  float64 `yaml:"relax_volume" json:"relax_volume"` // volume floor multiplier on relax
	RelaxDrop    float64 `yaml:"relax_drop" json:"relax_drop"`     // drop tolerance multiplier on relax
}

// ValuationFilter keeps stocks whose trailing mean ratio sits under an
// industry-specific threshold.
type ValuationFilter struct {
	Window           int                `yaml:"window" json:"window"`
	BaseThresholds   map[string]float64 `yaml:"base_thresholds" json:"base_thresholds"` // industry -> threshold
	DefaultThreshold float64            `yaml:"default_threshold" json:"default_threshold"`
	AdjustUpRatio    float64            `yaml:"adjust_up_ratio" json:"adjust_up_ratio"`     // median > base*this: raise
	AdjustDownRatio  float64            `yaml:"adjust_down_ratio" json:"adjust_down_ratio"` // median < base*this: lower
	ClampMin         float64            `yaml:"clamp_min" json:"clamp_min"`
	ClampMax         float64            `yaml:"clamp_max" json:"clamp_max"`
	MinSurvivors     int                `yaml:"min_survivors" json:"min_survivors"`
	WidenFactor      float64            `yaml:"widen_factor" json:"widen_factor"`
}

// MomentumFilter is the CR-20 style filter feeding the relaxation ladder.
type MomentumFilter struct {
	ShortWindow        int                `yaml:"short_window" json:"short_window"`
	LongWindow         int                `yaml:"long_window" json:"long_window"`
	StabilityWindow    int                `yaml:"stability_window" json:"stability_window"`
	CoreLow            float64            `yaml:"core_low" json:"core_low"`
	CoreHigh           float64            `yaml:"core_high" json:"core_high"`
	BufferLowFactor    float64            `yaml:"buffer_low_factor" json:"buffer_low_factor"`       // core_low * this
	BufferHighFactor   float64            `yaml:"buffer_high_factor" json:"buffer_high_factor"`     // core_high * this
	BufferGrowthFactor float64            `yaml:"buffer_growth_factor" json:"buffer_growth_factor"` // growth must exceed threshold * this in buffer
	GrowthThreshold    float64            `yaml:"growth_threshold" json:"growth_threshold"`
	VolatilityCaps     map[string]float64 `yaml:"volatility_caps" json:"volatility_caps"` // industry -> cap
	DefaultVolCap      float64            `yaml:"default_vol_cap" json:"default_vol_cap"`
	TrendWindow        int                `yaml:"trend_window" json:"trend_window"`           // 5-day trend flag
	TrendMinUpDays     int                `yaml:"trend_min_up_days" json:"trend_min_up_days"` // of trend_window-1 day-over-day moves

	Relaxation Relaxation `yaml:"relaxation" json:"relaxation"`
}

// Relaxation parameterizes the three-level loosening ladder.
type Relaxation struct {
	TriggerLargeUniverse int     `yaml:"trigger_large_universe" json:"trigger_large_universe"` // trigger when universe >= UniverseCutoff
	TriggerSmallUniverse int     `yaml:"trigger_small_universe" json:"trigger_small_universe"`
	UniverseCutoff       int     `yaml:"universe_cutoff" json:"universe_cutoff"`
	GrowthFactor         float64 `yaml:"growth_factor" json:"growth_factor"`             // level B: threshold * this
	RelaxedMinUpDays     int     `yaml:"relaxed_min_up_days" json:"relaxed_min_up_days"` // level C
}

// Fine holds per-candidate scoring parameters.
type Fine struct {
	Workers      int     `yaml:"workers" json:"workers"`
	BaseScore    int     `yaml:"base_score" json:"base_score"`
	PassScore    int     `yaml:"pass_score" json:"pass_score"`
	RelaxFactor  float64 `yaml:"relax_factor" json:"relax_factor"` // re-run threshold multiplier
	MinQualified int     `yaml:"min_qualified" json:"min_qualified"`
	MinEvaluated int     `yaml:"min_evaluated" json:"min_evaluated"`

	Pulse    Pulse         `yaml:"pulse" json:"pulse"`
	Position PricePosition `yaml:"position" json:"position"`
	MATrend  MATrend       `yaml:"ma_trend" json:"ma_trend"`
}

// Pulse detects bounded turnover spikes with follow-through.
type Pulse struct {
	AvgWindow     int     `yaml:"avg_window" json:"avg_window"`         // 30-day turnover average
	SpikeMin      float64 `yaml:"spike_min" json:"spike_min"`           // 1.5x
	SpikeMax      float64 `yaml:"spike_max" json:"spike_max"`           // 3.5x
	MaxDayMove    float64 `yaml:"max_day_move" json:"max_day_move"`     // bounded same-day price move
	VolumeConfirm float64 `yaml:"volume_confirm" json:"volume_confirm"` // volume vs its own average
	FollowDays    int     `yaml:"follow_days" json:"follow_days"`       // follow-through window
	MaxPostRange  float64 `yaml:"max_post_range" json:"max_post_range"` // bounded post-pulse range
	Lookback      int     `yaml:"lookback" json:"lookback"`             // 40 days
	MinSpacing    int     `yaml:"min_spacing" json:"min_spacing"`       // 5 days between pulses
	RecentWindow  int     `yaml:"recent_window" json:"recent_window"`   // one pulse in last 15 days
}

// PricePosition scores consolidation near the bottom of the range.
type PricePosition struct {
	RangeWindow    int     `yaml:"range_window" json:"range_window"`       // 120 days
	MaxQuantile    float64 `yaml:"max_quantile" json:"max_quantile"`       // bottom 30%
	CompressWindow int     `yaml:"compress_window" json:"compress_window"` // 20 days
	MaxCompression float64 `yaml:"max_compression" json:"max_compression"` // <= 15% range
}

// MATrend scores moving-average alignment and MA60 slope.
type MATrend struct {
	Windows         []int   `yaml:"windows" json:"windows"` // 10/20/60/120
	MaxSpread       float64 `yaml:"max_spread" json:"max_spread"`
	SlopeWindow     int     `yaml:"slope_window" json:"slope_window"`           // regression window on MA60
	SlopeCompareAgo int     `yaml:"slope_compare_ago" json:"slope_compare_ago"` // ~40 days prior
	MinSlopeDeg     float64 `yaml:"min_slope_deg" json:"min_slope_deg"`
}

// Regime holds benchmark classification parameters and the per-regime
// sizing table.
type Regime struct {
	ShortMA       int     `yaml:"short_ma" json:"short_ma"`
	LongMA        int     `yaml:"long_ma" json:"long_ma"`
	RangeWindow   int     `yaml:"range_window" json:"range_window"`
	HighVolCutoff float64 `yaml:"high_vol_cutoff" json:"high_vol_cutoff"`

	Params map[string]RegimeSizing `yaml:"params" json:"params"` // regime label -> sizing
}

// RegimeSizing is a (max positions, max cash ratio) pair.
type RegimeSizing struct {
	MaxPositions int     `yaml:"max_positions" json:"max_positions"`
	MaxCashRatio float64 `yaml:"max_cash_ratio" json:"max_cash_ratio"`
}

// Portfolio holds construction parameters.
type Portfolio struct {
	CashTolerance float64 `yaml:"cash_tolerance" json:"cash_tolerance"` // skip order beyond available*(1+this)
}

// Execution holds simulated trading costs and exit rules.
type Execution struct {
	CommissionRate   float64 `yaml:"commission_rate" json:"commission_rate"`
	MinCommission    float64 `yaml:"min_commission" json:"min_commission"`
	MaxCommissionPct float64 `yaml:"max_commission_pct" json:"max_commission_pct"` // of trade value
	StopLoss         float64 `yaml:"stop_loss" json:"stop_loss"`                   // 0.10 = -10% from cost
	TakeProfit       float64 `yaml:"take_profit" json:"take_profit"`               // 0.60 = +60% from cost
	DrawdownCap      float64 `yaml:"drawdown_cap" json:"drawdown_cap"`             // 0.15 breaker
	TrimTargetWeight float64 `yaml:"trim_target_weight" json:"trim_target_weight"` // per-position weight after a breaker trip
}

// Default returns the documented baseline parameter set. Tuned values
// come from the YAML file; these are the fallbacks used by tests and the
// CLI when no file is given.
func Default() Config {
	return Config{
		Meta: Meta{
			StrategyID: "ashare_multifactor",
			Version:    "v1",
			Benchmark:  "000300",
		},
		Data: Data{
			LookbackDays:  150,
			RebalanceDays: 5,
		},
		Coarse: Coarse{
			Turnover: TurnoverFilter{
				Window:     20,
				Quantile:   0.40,
				MinObsDays: 10,
			},
			Liquidity: LiquidityFilter{
				MinValidDays: 20,
				MinAvgVolume: 2_000_000,
				MaxDrop:      0.25,
				HighWindow:   60,
				MinSurvivors: 10,
				RelaxVolume:  0.5,
				RelaxDrop:    1.5,
			},
			Valuation: ValuationFilter{
				Window: 20,
				BaseThresholds: map[string]float64{
					"银行":   0.8,
					"房地产":  0.9,
					"医药生物": 1.5,
					"计算机":  1.8,
					"电子":   1.6,
					"食品饮料": 1.4,
				},
				DefaultThreshold: 1.2,
				AdjustUpRatio:    1.5,
				AdjustDownRatio:  0.7,
				ClampMin:         0.5,
				ClampMax:         3.0,
				MinSurvivors:     10,
				WidenFactor:      1.5,
			},
			Momentum: MomentumFilter{
				ShortWindow:        5,
				LongWindow:         20,
				StabilityWindow:    5,
				CoreLow:            60,
				CoreHigh:           140,
				BufferLowFactor:    0.9,
				BufferHighFactor:   1.1,
				BufferGrowthFactor: 1.2,
				GrowthThreshold:    0.10,
				VolatilityCaps: map[string]float64{
					"银行":   0.12,
					"食品饮料": 0.15,
					"计算机":  0.22,
					"电子":   0.20,
				},
				DefaultVolCap:  0.18,
				TrendWindow:    5,
				TrendMinUpDays: 3,
				Relaxation: Relaxation{
					TriggerLargeUniverse: 10,
					TriggerSmallUniverse: 15,
					UniverseCutoff:       3000,
					GrowthFactor:         0.3,
					RelaxedMinUpDays:     2,
				},
			},
		},
		Fine: Fine{
			Workers:      8,
			BaseScore:    2,
			PassScore:    5,
			RelaxFactor:  0.8,
			MinQualified: 3,
			MinEvaluated: 10,
			Pulse: Pulse{
				AvgWindow:     30,
				SpikeMin:      1.5,
				SpikeMax:      3.5,
				MaxDayMove:    0.05,
				VolumeConfirm: 1.2,
				FollowDays:    3,
				MaxPostRange:  0.08,
				Lookback:      40,
				MinSpacing:    5,
				RecentWindow:  15,
			},
			Position: PricePosition{
				RangeWindow:    120,
				MaxQuantile:    0.30,
				CompressWindow: 20,
				MaxCompression: 0.15,
			},
			MATrend: MATrend{
				Windows:         []int{10, 20, 60, 120},
				MaxSpread:       0.08,
				SlopeWindow:     10,
				SlopeCompareAgo: 40,
				MinSlopeDeg:     1.0,
			},
		},
		Regime: Regime{
			ShortMA:       20,
			LongMA:        60,
			RangeWindow:   30,
			HighVolCutoff: 0.15,
			Params: map[string]RegimeSizing{
				"UPTREND_CALM":       {MaxPositions: 10, MaxCashRatio: 0.05},
				"UPTREND_VOLATILE":   {MaxPositions: 7, MaxCashRatio: 0.15},
				"NEUTRAL":            {MaxPositions: 6, MaxCashRatio: 0.20},
				"DOWNTREND_CALM":     {MaxPositions: 4, MaxCashRatio: 0.35},
				"DOWNTREND_VOLATILE": {MaxPositions: 3, MaxCashRatio: 0.50},
			},
		},
		Portfolio: Portfolio{
			CashTolerance: 0.05,
		},
		Execution: Execution{
			CommissionRate:   0.0003,
			MinCommission:    5.0,
			MaxCommissionPct: 0.01,
			StopLoss:         0.10,
			TakeProfit:       0.60,
			DrawdownCap:      0.15,
			TrimTargetWeight: 0.02,
		},
	}
}
