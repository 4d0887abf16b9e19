package coarse

// MomentumStats is the per-stock statistics record the momentum
// predicates evaluate. Each rule is a named, pure predicate over this
// record so the rules stay independently testable.
type MomentumStats struct {
	Code       string
	Industry   string
	Short      float64 // short-window mean of the indicator
	Long       float64 // long-window mean of the indicator
	Growth     float64 // (short-long)/long
	Volatility float64 // coefficient of variation over the stability window
	UpDays     int     // day-over-day increases in the trend window
	NetChange  float64 // last - first over the trend window
	HasHistory bool    // enough observations for all windows
}

// RangeValue is the indicator level the core/buffer range test applies
// to: the short/long ratio expressed on the indicator's own scale.
func (m MomentumStats) RangeValue() float64 {
	if m.Long == 0 {
		return 0
	}
	return 100 * m.Short / m.Long
}

// Predicate is one momentum retention rule.
type Predicate func(MomentumStats) bool

// And combines predicates so that all must hold.
func And(preds ...Predicate) Predicate {
	return func(m MomentumStats) bool {
		for _, p := range preds {
			if !p(m) {
				return false
			}
		}
		return true
	}
}

// Or combines predicates so that at least one must hold.
func Or(preds ...Predicate) Predicate {
	return func(m MomentumStats) bool {
		for _, p := range preds {
			if p(m) {
				return true
			}
		}
		return false
	}
}

// HasHistory requires enough observations for all momentum windows.
func HasHistory() Predicate {
	return func(m MomentumStats) bool { return m.HasHistory }
}

// InCoreRange passes when the range value sits inside [low, high].
func InCoreRange(low, high float64) Predicate {
	return func(m MomentumStats) bool {
		rv := m.RangeValue()
		return rv >= low && rv <= high
	}
}

// InBufferRange passes when the range value sits inside the looser open
// interval (low, high) AND growth clears the boosted threshold.
func InBufferRange(low, high, minGrowth float64) Predicate {
	return func(m MomentumStats) bool {
		rv := m.RangeValue()
		return rv > low && rv < high && m.Growth >= minGrowth
	}
}

// GrowthAtLeast requires relative short-over-long growth.
func GrowthAtLeast(threshold float64) Predicate {
	return func(m MomentumStats) bool { return m.Growth >= threshold }
}

// StableUnder requires the indicator's volatility below the cap for the
// stock's industry, falling back to the default cap.
func StableUnder(caps map[string]float64, defaultCap float64) Predicate {
	return func(m MomentumStats) bool {
		cap, ok := caps[m.Industry]
		if !ok {
			cap = defaultCap
		}
		return m.Volatility < cap
	}
}

// Trending requires at least minUpDays day-over-day increases in the
// trend window and a positive net change across it.
func Trending(minUpDays int) Predicate {
	return func(m MomentumStats) bool {
		return m.UpDays >= minUpDays && m.NetChange > 0
	}
}
