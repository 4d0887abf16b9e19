package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortfolio_Revalue(t *testing.T) {
	p := NewPortfolio(100_000)
	p.Positions["600519"] = &Position{Code: "600519", Shares: 100, AvgCost: 180, MarketValue: 19_000}
	p.Cash = 81_000

	p.Revalue()
	assert.InDelta(t, 100_000, p.TotalValue, 1e-9)
	assert.InDelta(t, 100_000, p.MaxTotalValue, 1e-9)

	// Position appreciates: high-water mark follows.
	p.Positions["600519"].MarketValue = 25_000
	p.Revalue()
	assert.InDelta(t, 106_000, p.TotalValue, 1e-9)
	assert.InDelta(t, 106_000, p.MaxTotalValue, 1e-9)

	// Position falls back: mark stays at the peak.
	p.Positions["600519"].MarketValue = 15_000
	p.Revalue()
	assert.InDelta(t, 96_000, p.TotalValue, 1e-9)
	assert.InDelta(t, 106_000, p.MaxTotalValue, 1e-9)
	assert.InDelta(t, 10_000.0/106_000.0, p.Drawdown(), 1e-9)
}

func TestPortfolio_Snapshot_IsDeepCopy(t *testing.T) {
	p := NewPortfolio(50_000)
	p.Positions["000001"] = &Position{Code: "000001", Shares: 200, AvgCost: 12.5, MarketValue: 2_600}

	snap := p.Snapshot()
	p.Positions["000001"].Shares = 0

	assert.Len(t, snap.Positions, 1)
	assert.EqualValues(t, 200, snap.Positions[0].Shares)
}

func TestOrderIntent_Value(t *testing.T) {
	o := OrderIntent{Shares: 300, Price: 10.5}
	assert.InDelta(t, 3150, o.Value(), 1e-9)
}

func TestFrame_Accessors(t *testing.T) {
	f := &Frame{}
	assert.Equal(t, 0, f.Days())
	assert.Zero(t, f.LastClose())

	f.Bars = []DailyBar{{Close: 10}, {Close: 11}, {Close: 12}}
	assert.Equal(t, 3, f.Days())
	assert.InDelta(t, 12, f.LastClose(), 1e-9)
	assert.Equal(t, []float64{10, 11, 12}, f.Closes())
}
