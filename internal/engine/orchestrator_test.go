package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

// fakeFeed serves deterministic synthetic frames and counts fetches so
// tests can observe the cache.
type fakeFeed struct {
	universe   []string
	frames     map[string]*contracts.Frame
	benchmark  []float64
	prices     map[string]float64
	fetchCalls int
}

func (f *fakeFeed) FetchFrames(_ context.Context, codes []string, date time.Time, _ int) (*contracts.FrameSet, error) {
	f.fetchCalls++
	fs := &contracts.FrameSet{Date: date, Frames: make(map[string]*contracts.Frame), Benchmark: f.benchmark}
	for _, code := range codes {
		if frame, ok := f.frames[code]; ok {
			fs.Frames[code] = frame
		}
	}
	return fs, nil
}

func (f *fakeFeed) Universe(context.Context, time.Time) ([]string, error) {
	return f.universe, nil
}

func (f *fakeFeed) BenchmarkCloses(context.Context, time.Time, int) ([]float64, error) {
	return f.benchmark, nil
}

func (f *fakeFeed) LastPrices(_ context.Context, codes []string, _ time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(codes))
	for _, code := range codes {
		if p, ok := f.prices[code]; ok {
			out[code] = p
		}
	}
	return out, nil
}

// qualifyingFrame builds a 150-session frame that survives every coarse
// filter and scores 5 in fine screening: flat price with two recent
// turnover pulses and a momentum tail in the core range.
func qualifyingFrame(code string) *contracts.Frame {
	const days = 150
	frame := &contracts.Frame{Code: code, Industry: "电子"}
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		frame.Bars = append(frame.Bars, contracts.DailyBar{
			Date: base.AddDate(0, 0, i),
			Open: 10, High: 10, Low: 10, Close: 10,
			Volume: 3_000_000,
		})
		frame.Turnover = append(frame.Turnover, 5.0)
		frame.Valuation = append(frame.Valuation, 1.0)
		frame.Momentum = append(frame.Momentum, 95)
	}
	for i, v := range []float64{108, 109, 110, 111, 112} {
		frame.Momentum[days-5+i] = v
	}
	// Two spaced pulses inside the recent window.
	for _, i := range []int{130, 144} {
		frame.Turnover[i] *= 2
		frame.Bars[i].Volume *= 2
	}
	return frame
}

func flatSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newFakeFeed(codes ...string) *fakeFeed {
	f := &fakeFeed{
		universe:  codes,
		frames:    make(map[string]*contracts.Frame),
		benchmark: flatSeries(150, 3000),
		prices:    make(map[string]float64),
	}
	for _, code := range codes {
		f.frames[code] = qualifyingFrame(code)
		f.prices[code] = 10
	}
	return f
}

var rebalanceDate = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

func TestScreen_EndToEnd(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	result, err := o.Screen(context.Background(), rebalanceDate)
	require.NoError(t, err)

	assert.Equal(t, 4, result.UniverseSize)
	assert.Equal(t, 4, result.CoarseSurvivors)
	require.Len(t, result.Candidates, 4)
	for _, cand := range result.Candidates {
		assert.Equal(t, 5, cand.Score)
		assert.Equal(t, 2, cand.Diagnostics.PulseCount)
	}
}

// stubIndustries serves a fixed classification map.
type stubIndustries struct {
	classes map[string]string
	calls   int
}

func (s *stubIndustries) Classifications(context.Context, time.Time) (map[string]string, error) {
	s.calls++
	return s.classes, nil
}

func TestScreen_BackfillsBlankIndustries(t *testing.T) {
	feed := newFakeFeed("600001", "600002")
	feed.frames["600001"].Industry = ""

	src := &stubIndustries{classes: map[string]string{"600001": "电子"}}
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop(), WithIndustrySource(src))

	_, err := o.Screen(context.Background(), rebalanceDate)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	frame, ok := o.cache.Get("600001", rebalanceDate)
	require.True(t, ok)
	assert.Equal(t, "电子", frame.Industry)

	// Second run: nothing blank, so the source is not consulted again.
	_, err = o.Screen(context.Background(), rebalanceDate)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

func TestScreen_CacheAvoidsRefetch(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	_, err := o.Screen(context.Background(), rebalanceDate)
	require.NoError(t, err)
	require.Equal(t, 1, feed.fetchCalls)

	_, err = o.Screen(context.Background(), rebalanceDate)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.fetchCalls, "same date must be served from the cache")

	_, err = o.Screen(context.Background(), rebalanceDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, feed.fetchCalls, "a new date misses the cache")
}

func TestRebalance_FullCycle(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	record, err := o.Rebalance(context.Background(), rebalanceDate)
	require.NoError(t, err)

	assert.Equal(t, contracts.RegimeNeutral, record.Regime.Label)
	assert.Len(t, record.SelectedCodes, 4)
	assert.Empty(t, record.Reason)

	pf := o.Portfolio()
	assert.Len(t, pf.Positions, 4)
	for _, pos := range pf.Positions {
		assert.Zero(t, pos.Shares%contracts.LotSize)
	}

	sum := pf.Cash
	for _, pos := range pf.Positions {
		sum += pos.MarketValue
	}
	assert.InDelta(t, pf.TotalValue, sum, 1e-6)

	require.Len(t, o.Records(), 1)
}

func TestRebalance_NoBenchmarkHoldsFlat(t *testing.T) {
	feed := newFakeFeed("600001")
	feed.benchmark = nil
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	record, err := o.Rebalance(context.Background(), rebalanceDate)
	require.NoError(t, err)

	assert.Equal(t, contracts.ErrNoBenchmark.Error(), record.Reason)
	assert.Empty(t, record.SelectedCodes)
	assert.InDelta(t, 1_000_000, o.Portfolio().TotalValue, 1e-9)
}

func TestRebalance_EmptyUniverseHoldsFlat(t *testing.T) {
	feed := newFakeFeed()
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	record, err := o.Rebalance(context.Background(), rebalanceDate)
	require.NoError(t, err)

	assert.Equal(t, contracts.ErrEmptyUniverse.Error(), record.Reason)
	assert.InDelta(t, 1_000_000, o.Portfolio().TotalValue, 1e-9)
}

// One orchestrator is shared in serve mode by the cron rebalance, the
// live exit monitor and the HTTP readers. Exits delete positions from
// the portfolio map, so iterating readers must never observe a bare
// pointer; run all three roles at once and let the race detector judge.
func TestOrchestrator_ConcurrentMonitorRebalanceAndReads(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	_, err := o.Rebalance(context.Background(), rebalanceDate)
	require.NoError(t, err)
	require.NotEmpty(t, o.PortfolioSnapshot().Positions)

	// Down 15% from cost: every pass through the monitor fires stop
	// losses and deletes positions, the next rebalance rebuys them.
	crash := map[string]float64{"600001": 8.5, "600002": 8.5, "600003": 8.5, "600004": 8.5}

	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				o.MonitorPrices(context.Background(), rebalanceDate, crash)
				snap := o.PortfolioSnapshot()
				for _, pos := range snap.Positions {
					_ = pos.MarketValue
				}
				_ = o.Records()
				_ = o.Results()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for j := 1; j <= 10; j++ {
			_, err := o.Rebalance(context.Background(), rebalanceDate.AddDate(0, 0, j))
			assert.NoError(t, err)
		}
	}()

	close(start)
	wg.Wait()

	snap := o.PortfolioSnapshot()
	sum := snap.Cash
	for _, pos := range snap.Positions {
		sum += pos.MarketValue
	}
	assert.InDelta(t, snap.TotalValue, sum, 1e-6)
	assert.Len(t, o.Records(), 11)
}

func TestBacktest_WeekRun(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	// Monday through Friday: one rebalance, four monitoring days.
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 7, 0, 0, 0, 0, time.UTC)

	report, err := o.Backtest(context.Background(), start, end)
	require.NoError(t, err)

	assert.Len(t, report.Equity, 5)
	assert.Len(t, report.Records, 1)
	assert.Equal(t, 1_000_000.0, report.StartingCash)
	// Flat prices: only commissions drag on the account.
	assert.Less(t, report.FinalValue, report.StartingCash)
	assert.Greater(t, report.FinalValue, 0.99*report.StartingCash)
}

func TestBacktest_RejectsInvertedRange(t *testing.T) {
	feed := newFakeFeed("600001")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	_, err := o.Backtest(context.Background(), rebalanceDate, rebalanceDate.AddDate(0, 0, -7))
	assert.Error(t, err)
}

func TestFrameCache(t *testing.T) {
	cache := NewFrameCache(2)
	date := rebalanceDate

	frame := &contracts.Frame{Code: "600001"}
	cache.Put("600001", date, frame)

	got, ok := cache.Get("600001", date)
	assert.True(t, ok)
	assert.Same(t, frame, got)

	_, ok = cache.Get("600001", date.AddDate(0, 0, 1))
	assert.False(t, ok, "date is part of the key")

	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	// Capacity 2: a third insert evicts something, size stays bounded.
	cache.Put("600002", date, &contracts.Frame{Code: "600002"})
	cache.Put("600003", date, &contracts.Frame{Code: "600003"})
	assert.Equal(t, 2, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
	hits, misses = cache.Stats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestComputeMetrics(t *testing.T) {
	base := rebalanceDate
	equity := make([]EquityPoint, 0, 20)
	value := 1_000_000.0
	for i := 0; i < 20; i++ {
		if i == 10 {
			value *= 0.97 // one down day
		} else {
			value *= 1.005
		}
		equity = append(equity, EquityPoint{Date: base.AddDate(0, 0, i), TotalValue: value})
	}

	records := []contracts.RebalanceRecord{
		{Date: base},
		{Date: base.AddDate(0, 0, 5)},
		{Date: base.AddDate(0, 0, 10)},
		{Date: base.AddDate(0, 0, 15)},
	}

	m := computeMetrics(equity, records)

	assert.Greater(t, m.CAGR, 0.0)
	assert.InDelta(t, 0.03, m.MaxDrawdown, 0.005)
	assert.Equal(t, 3, m.Periods)
	assert.Greater(t, m.Sharpe, 0.0)
	assert.Greater(t, m.Sortino, 0.0)
}

func TestComputeMetrics_Degenerate(t *testing.T) {
	assert.Zero(t, computeMetrics(nil, nil))

	flat := []EquityPoint{
		{Date: rebalanceDate, TotalValue: 100},
		{Date: rebalanceDate.AddDate(0, 0, 1), TotalValue: 100},
	}
	m := computeMetrics(flat, nil)
	assert.Zero(t, m.Sharpe)
	assert.Zero(t, m.MaxDrawdown)
}

func TestPricedCodes_IncludesHeldPositions(t *testing.T) {
	feed := newFakeFeed("600001")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	o.Portfolio().Positions["600099"] = &contracts.Position{Code: "600099", Shares: 100, AvgCost: 5, MarketValue: 500}

	result := &contracts.ScreeningResult{Candidates: []contracts.Candidate{{Code: "600001"}}}
	codes := o.pricedCodes(result)

	assert.ElementsMatch(t, []string{"600001", "600099"}, codes)
}

func TestBacktest_MultipleRebalances(t *testing.T) {
	feed := newFakeFeed("600001", "600002", "600003", "600004")
	o := New(strategyconfig.Default(), feed, 1_000_000, logger.NewNop())

	// Two full weeks: sessions 0 and 5 rebalance.
	start := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC)

	report, err := o.Backtest(context.Background(), start, end)
	require.NoError(t, err)

	assert.Len(t, report.Equity, 10)
	require.Len(t, report.Records, 2)
	for i, rec := range report.Records {
		assert.False(t, rec.Date.IsZero(), fmt.Sprintf("record %d has no date", i))
	}
}
