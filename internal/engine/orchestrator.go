package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wqlab/screener/internal/coarse"
	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/internal/execution"
	"github.com/wqlab/screener/internal/fine"
	"github.com/wqlab/screener/internal/industry"
	"github.com/wqlab/screener/internal/portfolio"
	"github.com/wqlab/screener/internal/regime"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/logger"
	"github.com/wqlab/screener/pkg/metrics"
)

// Publisher pushes orders and exit signals to the reporting layer.
// Optional: a nil publisher means nothing is published.
type Publisher interface {
	PublishOrders(ctx context.Context, orders []contracts.OrderIntent) error
	PublishExits(ctx context.Context, exits []contracts.ExitSignal) error
}

// IndustrySource resolves the code -> industry classification map when
// the warehouse column is blank. Optional: without one, unclassified
// frames fall through to the default thresholds.
type IndustrySource interface {
	Classifications(ctx context.Context, date time.Time) (map[string]string, error)
}

// Orchestrator drives the screening pipeline for one rebalance date and
// owns everything with run lifetime: the frame cache, the simulator and
// the audit log. Only the fine stage fans out internally. In serve mode
// the scheduled rebalance, the live exit monitor and the HTTP readers
// share one instance, so mu serializes every entrypoint that touches
// the portfolio or the logs.
type Orchestrator struct {
	cfg        strategyconfig.Config
	feed       contracts.FactorFeed
	coarse     *coarse.Stage
	fine       *fine.Stage
	classifier *regime.Classifier
	builder    *portfolio.Constructor
	sim        *execution.Simulator
	cache      *FrameCache
	metrics    *metrics.Metrics
	publisher  Publisher
	industries IndustrySource
	logger     *logger.Logger

	mu      sync.RWMutex
	records []contracts.RebalanceRecord
	results []contracts.ScreeningResult
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPublisher attaches an order/exit publisher.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithIndustrySource attaches the classification fallback used when
// frames arrive without an industry.
func WithIndustrySource(src IndustrySource) Option {
	return func(o *Orchestrator) { o.industries = src }
}

// New wires the pipeline stages around the given feed and starting cash.
func New(cfg strategyconfig.Config, feed contracts.FactorFeed, startingCash float64, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		feed:       feed,
		coarse:     coarse.NewStage(cfg.Coarse, log),
		fine:       fine.NewStage(cfg.Fine, log),
		classifier: regime.NewClassifier(cfg.Regime, log),
		builder:    portfolio.NewConstructor(cfg.Portfolio, cfg.Execution, log),
		sim:        execution.NewSimulator(cfg.Execution, startingCash, log),
		cache:      NewFrameCache(0),
		logger:     log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Portfolio exposes the live simulated account. Callers on other
// goroutines must use PortfolioSnapshot instead; the returned pointer is
// mutated by Rebalance and the exit monitor.
func (o *Orchestrator) Portfolio() *contracts.Portfolio {
	return o.sim.Portfolio()
}

// PortfolioSnapshot returns a copy of the account, safe to read while
// jobs run.
func (o *Orchestrator) PortfolioSnapshot() contracts.PortfolioSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sim.Portfolio().Snapshot()
}

// Records returns a copy of the append-only rebalance audit log.
func (o *Orchestrator) Records() []contracts.RebalanceRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	records := make([]contracts.RebalanceRecord, len(o.records))
	copy(records, o.records)
	return records
}

// Results returns a copy of the screening results produced so far.
func (o *Orchestrator) Results() []contracts.ScreeningResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	results := make([]contracts.ScreeningResult, len(o.results))
	copy(results, o.results)
	return results
}

// Screen runs coarse and fine screening for the date and returns the
// immutable result. Terminal conditions surface as ErrEmptyUniverse.
func (o *Orchestrator) Screen(ctx context.Context, date time.Time) (*contracts.ScreeningResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.screen(ctx, date)
}

func (o *Orchestrator) screen(ctx context.Context, date time.Time) (*contracts.ScreeningResult, error) {
	start := time.Now()

	universe, err := o.feed.Universe(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch universe: %w", err)
	}
	if len(universe) == 0 {
		return nil, contracts.ErrEmptyUniverse
	}

	fs, err := o.fetchFrames(ctx, universe, date)
	if err != nil {
		return nil, err
	}
	if fs.UniverseSize() == 0 {
		return nil, contracts.ErrEmptyUniverse
	}

	o.backfillIndustries(ctx, fs)

	coarseResult := o.coarse.Run(ctx, fs)
	o.observeCoarse(coarseResult)

	qualified := o.fine.Run(ctx, coarseResult.Candidates, fs)
	if o.metrics != nil {
		o.metrics.QualifiedCount.Set(float64(len(qualified)))
		o.metrics.StageDuration.WithLabelValues("screen").Observe(time.Since(start).Seconds())
	}

	result := contracts.ScreeningResult{
		Date:            date,
		Candidates:      qualified,
		UniverseSize:    len(universe),
		CoarseSurvivors: len(coarseResult.Candidates),
		RelaxLevel:      coarseResult.RelaxLevel,
	}
	o.results = append(o.results, result)
	return &result, nil
}

// Rebalance runs the full cycle for the date: screening, the regime
// classification, plan construction and the execution state machine.
// Terminal conditions (no benchmark, empty universe) do not error the
// run; the portfolio holds flat and the record carries the reason.
func (o *Orchestrator) Rebalance(ctx context.Context, date time.Time) (*contracts.RebalanceRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	benchmark, err := o.feed.BenchmarkCloses(ctx, date, o.cfg.Data.LookbackDays)
	if err != nil || len(benchmark) == 0 {
		return o.skipPeriod(date, contracts.ErrNoBenchmark)
	}

	result, err := o.screen(ctx, date)
	if err != nil {
		if errors.Is(err, contracts.ErrEmptyUniverse) {
			return o.skipPeriod(date, err)
		}
		return nil, err
	}

	prices, err := o.feed.LastPrices(ctx, o.pricedCodes(result), date)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	hooks := execution.CycleHooks{
		Classify: func() contracts.RegimeParams {
			return o.classifier.Classify(benchmark)
		},
		Plan: func(params contracts.RegimeParams) portfolio.Plan {
			return o.builder.Build(date, result.Candidates, params, o.sim.Portfolio(), prices)
		},
	}

	cycle := o.sim.RunCycle(date, prices, hooks)
	o.observeCycle(cycle)
	o.publish(ctx, cycle)

	record := contracts.RebalanceRecord{
		Date:          date,
		SelectedCodes: cycle.Selected,
		RelaxLevel:    result.RelaxLevel,
		Regime:        cycle.Params,
		Snapshot:      o.sim.Portfolio().Snapshot(),
	}
	if cycle.DrawdownTripped {
		record.Reason = "drawdown breaker tripped, buy phase skipped"
	}
	o.records = append(o.records, record)

	o.logger.WithFields(map[string]interface{}{
		"date":        date.Format("2006-01-02"),
		"selected":    len(cycle.Selected),
		"orders":      len(cycle.Orders),
		"total_value": o.sim.Portfolio().TotalValue,
	}).Info("Rebalance completed")

	return &record, nil
}

// Monitor marks the portfolio to market between rebalances and applies
// the exit rules only. No screening, no buys.
func (o *Orchestrator) Monitor(ctx context.Context, date time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	held := o.heldCodes()
	if len(held) == 0 {
		return nil
	}

	prices, err := o.feed.LastPrices(ctx, held, date)
	if err != nil {
		return fmt.Errorf("fetch monitor prices: %w", err)
	}

	o.monitorPrices(ctx, date, prices)
	return nil
}

// MonitorPrices applies mark-to-market and the exit rules against an
// externally supplied price map, e.g. a live quote snapshot.
func (o *Orchestrator) MonitorPrices(ctx context.Context, date time.Time, prices map[string]float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.monitorPrices(ctx, date, prices)
}

func (o *Orchestrator) monitorPrices(ctx context.Context, date time.Time, prices map[string]float64) {
	if len(prices) == 0 {
		return
	}

	o.sim.MarkToMarket(prices)
	intents, signals := o.sim.CheckExits(date, prices)
	if len(intents) > 0 {
		o.publish(ctx, execution.CycleResult{Orders: intents, Exits: signals})
	}
}

// skipPeriod records a period with no rebalance. The portfolio is held
// flat; the terminal condition is logged, not propagated.
func (o *Orchestrator) skipPeriod(date time.Time, cause error) (*contracts.RebalanceRecord, error) {
	o.logger.WithError(cause).WithField("date", date.Format("2006-01-02")).
		Warn("No rebalance this period, holding portfolio flat")

	record := contracts.RebalanceRecord{
		Date:     date,
		Snapshot: o.sim.Portfolio().Snapshot(),
		Reason:   cause.Error(),
	}
	o.records = append(o.records, record)
	return &record, nil
}

// backfillIndustries fills blank frame industries from the fallback
// source. A scrape failure only leaves those frames on the default
// valuation thresholds.
func (o *Orchestrator) backfillIndustries(ctx context.Context, fs *contracts.FrameSet) {
	if o.industries == nil {
		return
	}

	blank := 0
	for _, frame := range fs.Frames {
		if frame.Industry == "" {
			blank++
		}
	}
	if blank == 0 {
		return
	}

	classes, err := o.industries.Classifications(ctx, fs.Date)
	if err != nil {
		o.logger.WithError(err).WithField("blank", blank).
			Warn("Industry backfill unavailable")
		return
	}

	filled := industry.Backfill(classes, fs)
	o.logger.WithFields(map[string]interface{}{
		"blank":  blank,
		"filled": filled,
	}).Debug("Backfilled frame industries")
}

// fetchFrames pulls factor frames through the per-run cache, fetching
// only the stocks missing for this date.
func (o *Orchestrator) fetchFrames(ctx context.Context, universe []string, date time.Time) (*contracts.FrameSet, error) {
	fs := &contracts.FrameSet{
		Date:   date,
		Frames: make(map[string]*contracts.Frame, len(universe)),
	}

	missing := make([]string, 0, len(universe))
	for _, code := range universe {
		if frame, ok := o.cache.Get(code, date); ok {
			fs.Frames[code] = frame
			continue
		}
		missing = append(missing, code)
	}

	if len(missing) > 0 {
		fetched, err := o.feed.FetchFrames(ctx, missing, date, o.cfg.Data.LookbackDays)
		if err != nil {
			return nil, fmt.Errorf("fetch frames: %w", err)
		}
		for code, frame := range fetched.Frames {
			fs.Frames[code] = frame
			o.cache.Put(code, date, frame)
		}
		if len(fetched.Benchmark) > 0 {
			fs.Benchmark = fetched.Benchmark
		}
	}

	if len(fs.Benchmark) == 0 {
		benchmark, err := o.feed.BenchmarkCloses(ctx, date, o.cfg.Data.LookbackDays)
		if err == nil {
			fs.Benchmark = benchmark
		}
	}

	return fs, nil
}

// pricedCodes collects every code the cycle may trade: the qualified
// candidates plus everything currently held.
func (o *Orchestrator) pricedCodes(result *contracts.ScreeningResult) []string {
	seen := make(map[string]struct{})
	codes := make([]string, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		seen[c.Code] = struct{}{}
		codes = append(codes, c.Code)
	}
	for _, code := range o.heldCodes() {
		if _, dup := seen[code]; !dup {
			codes = append(codes, code)
		}
	}
	return codes
}

func (o *Orchestrator) heldCodes() []string {
	pf := o.sim.Portfolio()
	codes := make([]string, 0, len(pf.Positions))
	for code, pos := range pf.Positions {
		if pos.Shares > 0 {
			codes = append(codes, code)
		}
	}
	return codes
}

func (o *Orchestrator) observeCoarse(result coarse.Result) {
	if o.metrics == nil {
		return
	}
	for filter, count := range result.Counts {
		o.metrics.FilterSurvivors.WithLabelValues(filter).Set(float64(count))
	}
	o.metrics.RelaxationLevel.Set(float64(result.RelaxLevel))
}

func (o *Orchestrator) observeCycle(cycle execution.CycleResult) {
	if o.metrics == nil {
		return
	}
	o.metrics.RebalanceTotal.Inc()
	for _, order := range cycle.Orders {
		o.metrics.OrdersTotal.WithLabelValues(string(order.Side)).Inc()
	}
	if cycle.DrawdownTripped {
		o.metrics.DrawdownTrips.Inc()
	}
}

func (o *Orchestrator) publish(ctx context.Context, cycle execution.CycleResult) {
	if o.publisher == nil {
		return
	}
	if len(cycle.Orders) > 0 {
		if err := o.publisher.PublishOrders(ctx, cycle.Orders); err != nil {
			o.logger.WithError(err).Warn("Failed to publish order intents")
		}
	}
	if len(cycle.Exits) > 0 {
		if err := o.publisher.PublishExits(ctx, cycle.Exits); err != nil {
			o.logger.WithError(err).Warn("Failed to publish exit signals")
		}
	}
}
