package contracts

import "time"

// DailyBar is one day of price/volume data for a stock.
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"` // shares traded
}

// Frame is the lookback window of factor series for one stock, ending at
// the rebalance date. All slices are aligned by index and ascending by
// date; the factor layer guarantees alignment, consumers only read.
type Frame struct {
	Code      string     `json:"code"`
	Industry  string     `json:"industry"`
	Bars      []DailyBar `json:"bars"`
	Turnover  []float64  `json:"turnover"`  // turnover rate per day (%)
	Valuation []float64  `json:"valuation"` // precomputed PEG-style ratio per day
	Momentum  []float64  `json:"momentum"`  // precomputed momentum indicator per day
}

// Days returns the number of valid observation days in the frame.
func (f *Frame) Days() int {
	return len(f.Bars)
}

// LastClose returns the most recent close, or 0 for an empty frame.
func (f *Frame) LastClose() float64 {
	if len(f.Bars) == 0 {
		return 0
	}
	return f.Bars[len(f.Bars)-1].Close
}

// Closes returns the close series.
func (f *Frame) Closes() []float64 {
	out := make([]float64, len(f.Bars))
	for i, b := range f.Bars {
		out[i] = b.Close
	}
	return out
}

// FrameSet is the market-wide view consumed by the coarse filter stage:
// one frame per stock plus the benchmark index closes over the same
// window. Read-only once built.
type FrameSet struct {
	Date      time.Time         `json:"date"`
	Frames    map[string]*Frame `json:"frames"`
	Benchmark []float64         `json:"benchmark"` // index closes, ascending by date
}

// UniverseSize returns the number of stocks in the set.
func (fs *FrameSet) UniverseSize() int {
	return len(fs.Frames)
}
