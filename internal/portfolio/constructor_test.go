package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
)

func newConstructor(t *testing.T) *Constructor {
	t.Helper()
	cfg := strategyconfig.Default()
	return NewConstructor(cfg.Portfolio, cfg.Execution, logger.NewNop())
}

func scoredCandidates(codes ...string) []contracts.Candidate {
	out := make([]contracts.Candidate, len(codes))
	for i, code := range codes {
		out[i] = contracts.Candidate{Code: code, Score: 6}
	}
	return out
}

func neutralParams(maxPositions int, maxCash float64) contracts.RegimeParams {
	return contracts.RegimeParams{Label: contracts.RegimeNeutral, MaxPositions: maxPositions, MaxCashRatio: maxCash}
}

var planDate = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

func TestBuild_LotAlignmentAndCommissionBound(t *testing.T) {
	c := newConstructor(t)
	pf := contracts.NewPortfolio(1_000_000)

	prices := map[string]float64{"600001": 12.34, "600002": 45.6, "600003": 7.89}
	plan := c.Build(planDate, scoredCandidates("600001", "600002", "600003"), neutralParams(6, 0.20), pf, prices)

	require.Len(t, plan.Buys, 3)
	exec := strategyconfig.Default().Execution
	for _, buy := range plan.Buys {
		assert.Zero(t, buy.Shares%contracts.LotSize, "shares must be lot aligned")
		commission := Commission(buy.Value(), exec)
		assert.LessOrEqual(t, commission, exec.MaxCommissionPct*buy.Value())
	}
}

func TestBuild_RanksByScoreAndCutsAtCap(t *testing.T) {
	c := newConstructor(t)
	pf := contracts.NewPortfolio(1_000_000)

	candidates := []contracts.Candidate{
		{Code: "600003", Score: 5},
		{Code: "600001", Score: 7},
		{Code: "600002", Score: 6},
		{Code: "600004", Score: 6},
	}
	prices := map[string]float64{"600001": 10, "600002": 10, "600003": 10, "600004": 10}

	plan := c.Build(planDate, candidates, neutralParams(3, 0.20), pf, prices)

	// Ties break by code; the cap drops the lowest score.
	assert.Equal(t, []string{"600001", "600002", "600004"}, plan.Selected)
}

func TestBuild_DeselectedPositionsAreSold(t *testing.T) {
	c := newConstructor(t)
	pf := contracts.NewPortfolio(100_000)
	pf.Positions["600009"] = &contracts.Position{Code: "600009", Shares: 1000, AvgCost: 10, MarketValue: 11_000}
	pf.Revalue()

	prices := map[string]float64{"600001": 10, "600009": 11}
	plan := c.Build(planDate, scoredCandidates("600001"), neutralParams(6, 0.20), pf, prices)

	require.Len(t, plan.Sells, 1)
	sell := plan.Sells[0]
	assert.Equal(t, "600009", sell.Code)
	assert.Equal(t, contracts.OrderSideSell, sell.Side)
	assert.Equal(t, int64(1000), sell.Shares)
	assert.Equal(t, contracts.ReasonDeselect, sell.Reason)
}

func TestBuild_HeldAndStillSelectedUntouched(t *testing.T) {
	c := newConstructor(t)
	pf := contracts.NewPortfolio(100_000)
	pf.Positions["600001"] = &contracts.Position{Code: "600001", Shares: 1000, AvgCost: 10, MarketValue: 10_000}
	pf.Revalue()

	prices := map[string]float64{"600001": 10}
	plan := c.Build(planDate, scoredCandidates("600001"), neutralParams(6, 0.20), pf, prices)

	assert.Empty(t, plan.Sells)
	assert.Empty(t, plan.Buys)
	assert.Equal(t, []string{"600001"}, plan.Selected)
}

func TestBuild_SkipsWhenCashShort(t *testing.T) {
	c := newConstructor(t)
	// Total value is dominated by an illiquid held position that stays
	// selected, leaving almost no cash for the new name.
	pf := contracts.NewPortfolio(1_000)
	pf.Positions["600001"] = &contracts.Position{Code: "600001", Shares: 10_000, AvgCost: 10, MarketValue: 99_000}
	pf.Revalue()

	prices := map[string]float64{"600001": 9.9, "600002": 50}
	plan := c.Build(planDate, scoredCandidates("600001", "600002"), neutralParams(6, 0.05), pf, prices)

	assert.Empty(t, plan.Buys, "order requiring ~47k against 1k cash must be skipped")
}

func TestBuild_Idempotent(t *testing.T) {
	c := newConstructor(t)
	pf := contracts.NewPortfolio(500_000)
	pf.Positions["600009"] = &contracts.Position{Code: "600009", Shares: 2000, AvgCost: 8, MarketValue: 15_000}
	pf.Revalue()

	candidates := scoredCandidates("600001", "600002", "600003", "600004")
	prices := map[string]float64{"600001": 15, "600002": 22, "600003": 9, "600004": 31, "600009": 7.5}
	params := neutralParams(6, 0.20)

	first := c.Build(planDate, candidates, params, pf, prices)
	second := c.Build(planDate, candidates, params, pf, prices)

	assert.Equal(t, first, second)
}

func TestSizeLots(t *testing.T) {
	exec := strategyconfig.Default().Execution

	t.Run("rounds down to whole lots", func(t *testing.T) {
		shares, _ := SizeLots(10_000, 12.34, exec)
		assert.Equal(t, int64(800), shares)
	})

	t.Run("grows past the minimum fee floor", func(t *testing.T) {
		// Target buys 1 lot at 4.2/share: value 420, minimum fee 5 is
		// 1.19% of value. One more lot brings it under the 1% cap.
		shares, commission := SizeLots(450, 4.2, exec)
		assert.Equal(t, int64(200), shares)
		assert.InDelta(t, 5.0, commission, 1e-9)
	})

	t.Run("target below one lot", func(t *testing.T) {
		shares, commission := SizeLots(500, 12, exec)
		assert.Zero(t, shares)
		assert.Zero(t, commission)
	})

	t.Run("gives up when growth cannot satisfy the bound", func(t *testing.T) {
		// 1 lot at 0.8/share is 80; the fee cap needs value >= 500,
		// over four times the target.
		shares, _ := SizeLots(100, 0.8, exec)
		assert.Zero(t, shares)
	})
}

func TestCommission(t *testing.T) {
	exec := strategyconfig.Default().Execution
	assert.InDelta(t, 5.0, Commission(1_000, exec), 1e-9, "minimum fee applies")
	assert.InDelta(t, 30.0, Commission(100_000, exec), 1e-9)
}
