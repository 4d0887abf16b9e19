package contracts

import "time"

// FactorStats holds the per-stock summary statistics accumulated while a
// candidate moves through the coarse filters. Each filter fills in the
// fields it derives; later stages read them.
type FactorStats struct {
	MeanTurnover   float64 `json:"mean_turnover"`   // trailing-window mean turnover rate
	ValuationRatio float64 `json:"valuation_ratio"` // trailing mean of the PEG-style ratio
	MomShort       float64 `json:"mom_short"`       // short-window momentum mean
	MomLong        float64 `json:"mom_long"`        // long-window momentum mean
	MomGrowth      float64 `json:"mom_growth"`      // (short-long)/long
	MomVolatility  float64 `json:"mom_volatility"`  // rolling volatility of the indicator
}

// Diagnostics holds the per-candidate fine screening findings.
type Diagnostics struct {
	PulseCount     int     `json:"pulse_count"`    // valid turnover pulses in the window
	PriceQuantile  float64 `json:"price_quantile"` // close position in the 120d range (0..1)
	MASpread       float64 `json:"ma_spread"`      // (max-min)/min across the SMA set
	MA60Slope      float64 `json:"ma60_slope"`     // regression slope of MA60 in degrees
	Outperformance float64 `json:"outperformance"` // annualized return minus benchmark's
}

// Candidate is a stock under evaluation for one rebalance date. Created
// at coarse filter entry, mutated by each stage it survives, read-only
// once fine screening has scored it. Score never decreases as stages run.
type Candidate struct {
	Code        string      `json:"code"`
	Industry    string      `json:"industry"`
	Stats       FactorStats `json:"stats"`
	Score       int         `json:"score"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// ScreeningResult is the final candidate list for a rebalance date,
// immutable once produced.
type ScreeningResult struct {
	Date       time.Time   `json:"date"`
	Candidates []Candidate `json:"candidates"`

	// Pipeline diagnostics
	UniverseSize    int `json:"universe_size"`
	CoarseSurvivors int `json:"coarse_survivors"`
	RelaxLevel      int `json:"relax_level"` // 0=strict, 1=growth relaxed, 2=trend relaxed
}

// Codes returns the candidate identifiers in result order.
func (r *ScreeningResult) Codes() []string {
	codes := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		codes[i] = c.Code
	}
	return codes
}
