package contracts

import (
	"context"
	"errors"
	"time"
)

// Terminal pipeline conditions. Everything else degrades by shrinking the
// candidate set instead of failing the rebalance.
var (
	// ErrNoBenchmark means the benchmark index series is entirely missing.
	ErrNoBenchmark = errors.New("no benchmark data for rebalance date")

	// ErrEmptyUniverse means no stock had any usable factor data.
	ErrEmptyUniverse = errors.New("empty universe for rebalance date")
)

// FactorFeed is the boundary to the external data/factor layer. It
// supplies already-computed factor series; this module never derives raw
// factor values itself.
type FactorFeed interface {
	// FetchFrames returns the factor frames for the given stocks over a
	// lookback window ending at date. Stocks whose data cannot be
	// fetched after bounded retries are absent from the result.
	FetchFrames(ctx context.Context, codes []string, date time.Time, lookbackDays int) (*FrameSet, error)

	// Universe lists all tradable stock codes as of date.
	Universe(ctx context.Context, date time.Time) ([]string, error)

	// BenchmarkCloses returns the benchmark index daily closes over a
	// lookback window ending at date.
	BenchmarkCloses(ctx context.Context, date time.Time, lookbackDays int) ([]float64, error)

	// LastPrices returns the most recent close for each stock, used for
	// mark-to-market between rebalances.
	LastPrices(ctx context.Context, codes []string, date time.Time) (map[string]float64, error)
}
