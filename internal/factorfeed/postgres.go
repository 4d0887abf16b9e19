package factorfeed

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/pkg/database"
	"github.com/wqlab/screener/pkg/logger"
	"github.com/wqlab/screener/pkg/metrics"
	"github.com/wqlab/screener/pkg/redis"
)

const (
	// batchSize bounds the codes per query so one huge IN list cannot
	// stall the pool.
	batchSize = 200

	maxBatchRetries = 3
	retryBackoff    = 2 * time.Second
)

// PostgresFeed implements contracts.FactorFeed on top of the factor
// warehouse. Factor series are precomputed upstream; this layer only
// reads, caches and shapes them into frames.
type PostgresFeed struct {
	db        *database.DB
	benchmark string // index code for BenchmarkCloses

	cache   *redis.Cache  // nil disables frame caching
	remote  *RemoteSource // nil disables gap fill
	metrics *metrics.Metrics
	limiter *rate.Limiter
	logger  *logger.Logger
}

// Option configures optional feed collaborators.
type Option func(*PostgresFeed)

// WithCache enables redis frame caching.
func WithCache(cache *redis.Cache) Option {
	return func(f *PostgresFeed) { f.cache = cache }
}

// WithRemote enables gap filling from the quote gateway for codes the
// warehouse has no rows for.
func WithRemote(remote *RemoteSource) Option {
	return func(f *PostgresFeed) { f.remote = remote }
}

// WithMetrics enables fetch failure counting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *PostgresFeed) { f.metrics = m }
}

// NewPostgres creates the warehouse-backed feed. ratePerSec bounds batch
// queries so backtests cannot saturate a shared database.
func NewPostgres(db *database.DB, benchmark string, ratePerSec int, log *logger.Logger, opts ...Option) *PostgresFeed {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}

	f := &PostgresFeed{
		db:        db,
		benchmark: benchmark,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:    log.WithField("component", "factorfeed"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchFrames assembles the frame set for the given codes. Batches that
// keep failing after retries are dropped with a warning; the pipeline
// degrades by screening fewer stocks, never by aborting.
func (f *PostgresFeed) FetchFrames(ctx context.Context, codes []string, date time.Time, lookbackDays int) (*contracts.FrameSet, error) {
	fs := &contracts.FrameSet{
		Date:   date,
		Frames: make(map[string]*contracts.Frame, len(codes)),
	}

	misses := f.loadCached(ctx, codes, date, fs)

	for _, batch := range chunkCodes(misses, batchSize) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		frames, err := f.queryBatch(ctx, batch, date, lookbackDays)
		if err != nil {
			f.dropBatch(batch, err)
			continue
		}

		for code, frame := range frames {
			fs.Frames[code] = frame
			f.storeCached(ctx, code, date, frame)
		}
	}

	f.fillGaps(ctx, codes, date, lookbackDays, fs)

	bench, err := f.BenchmarkCloses(ctx, date, lookbackDays)
	if err != nil {
		f.logger.WithError(err).Warn("Benchmark fetch failed")
	}
	fs.Benchmark = bench

	f.logger.WithFields(map[string]interface{}{
		"date":      date.Format("2006-01-02"),
		"requested": len(codes),
		"fetched":   len(fs.Frames),
	}).Debug("Frame set assembled")

	return fs, nil
}

// Universe lists the tradable codes as of the latest membership snapshot
// at or before date.
func (f *PostgresFeed) Universe(ctx context.Context, date time.Time) ([]string, error) {
	query := `
		SELECT stock_code
		FROM data.universe_members
		WHERE effective_date = (
			SELECT max(effective_date) FROM data.universe_members WHERE effective_date <= $1
		)
		ORDER BY stock_code
	`

	rows, err := f.db.Pool.Query(ctx, query, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// BenchmarkCloses returns the index closes ascending by date.
func (f *PostgresFeed) BenchmarkCloses(ctx context.Context, date time.Time, lookbackDays int) ([]float64, error) {
	query := `
		SELECT close_price
		FROM data.index_prices
		WHERE index_code = $1 AND trade_date <= $2
		ORDER BY trade_date DESC
		LIMIT $3
	`

	rows, err := f.db.Pool.Query(ctx, query, f.benchmark, date, lookbackDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var closes []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverseInPlace(closes)
	return closes, nil
}

// LastPrices returns the most recent close per code at or before date.
// Codes without any row are absent from the map.
func (f *PostgresFeed) LastPrices(ctx context.Context, codes []string, date time.Time) (map[string]float64, error) {
	query := `
		SELECT DISTINCT ON (stock_code) stock_code, close_price
		FROM data.factor_frames
		WHERE stock_code = ANY($1) AND trade_date <= $2
		ORDER BY stock_code, trade_date DESC
	`

	rows, err := f.db.Pool.Query(ctx, query, codes, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	prices := make(map[string]float64, len(codes))
	for rows.Next() {
		var code string
		var close float64
		if err := rows.Scan(&code, &close); err != nil {
			return nil, err
		}
		prices[code] = close
	}
	return prices, rows.Err()
}

// queryBatch fetches the lookback window for one batch of codes, bounded
// retries included. Rows come back ascending by date within each code.
func (f *PostgresFeed) queryBatch(ctx context.Context, codes []string, date time.Time, lookbackDays int) (map[string]*contracts.Frame, error) {
	query := `
		SELECT stock_code, industry, trade_date,
		       open_price, high_price, low_price, close_price, volume,
		       turnover_rate, valuation_ratio, momentum
		FROM (
			SELECT ff.*,
			       row_number() OVER (PARTITION BY stock_code ORDER BY trade_date DESC) AS rn
			FROM data.factor_frames ff
			WHERE stock_code = ANY($1) AND trade_date <= $2
		) windowed
		WHERE rn <= $3
		ORDER BY stock_code, trade_date ASC
	`

	var lastErr error
	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		rows, err := f.db.Pool.Query(ctx, query, codes, date, lookbackDays)
		if err != nil {
			lastErr = err
			f.logger.WithFields(map[string]interface{}{
				"batch_size": len(codes),
				"attempt":    attempt + 1,
				"error":      err.Error(),
			}).Warn("Batch frame query failed, retrying")
			continue
		}

		frames, err := scanFrames(rows)
		rows.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return frames, nil
	}

	return nil, lastErr
}

// scanFrames groups frame rows by code, preserving query order so every
// series stays aligned and ascending by date.
func scanFrames(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) (map[string]*contracts.Frame, error) {
	frames := make(map[string]*contracts.Frame)

	for rows.Next() {
		var r frameRow
		if err := rows.Scan(
			&r.Code, &r.Industry, &r.Date,
			&r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
			&r.Turnover, &r.Valuation, &r.Momentum,
		); err != nil {
			return nil, err
		}
		appendRow(frames, r)
	}
	return frames, rows.Err()
}

// frameRow is one warehouse row before grouping into a frame.
type frameRow struct {
	Code      string
	Industry  string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Turnover  float64
	Valuation float64
	Momentum  float64
}

// appendRow extends the frame for the row's code, creating it on first
// sight. Rows must arrive ascending by date per code.
func appendRow(frames map[string]*contracts.Frame, r frameRow) {
	frame, ok := frames[r.Code]
	if !ok {
		frame = &contracts.Frame{Code: r.Code, Industry: r.Industry}
		frames[r.Code] = frame
	}

	frame.Bars = append(frame.Bars, contracts.DailyBar{
		Date:   r.Date,
		Open:   r.Open,
		High:   r.High,
		Low:    r.Low,
		Close:  r.Close,
		Volume: r.Volume,
	})
	frame.Turnover = append(frame.Turnover, r.Turnover)
	frame.Valuation = append(frame.Valuation, r.Valuation)
	frame.Momentum = append(frame.Momentum, r.Momentum)
}

// loadCached fills the set from redis and returns the cache misses.
func (f *PostgresFeed) loadCached(ctx context.Context, codes []string, date time.Time, fs *contracts.FrameSet) []string {
	if f.cache == nil {
		return codes
	}

	day := date.Format("2006-01-02")
	misses := make([]string, 0, len(codes))
	for _, code := range codes {
		var frame contracts.Frame
		hit, err := f.cache.Get(ctx, redis.FrameKey(code, day), &frame)
		if err != nil || !hit {
			misses = append(misses, code)
			continue
		}
		fs.Frames[code] = &frame
	}
	return misses
}

func (f *PostgresFeed) storeCached(ctx context.Context, code string, date time.Time, frame *contracts.Frame) {
	if f.cache == nil {
		return
	}

	day := date.Format("2006-01-02")
	if err := f.cache.Set(ctx, redis.FrameKey(code, day), frame, redis.TTLMedium); err != nil {
		f.logger.WithError(err).WithField("code", code).Debug("Frame cache write failed")
	}
}

// fillGaps asks the quote gateway for codes the warehouse had no rows
// for. Remote failures only shrink the set further.
func (f *PostgresFeed) fillGaps(ctx context.Context, codes []string, date time.Time, lookbackDays int, fs *contracts.FrameSet) {
	if f.remote == nil {
		return
	}

	var missing []string
	for _, code := range codes {
		if _, ok := fs.Frames[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) == 0 {
		return
	}

	frames, err := f.remote.FetchFrames(ctx, missing, date, lookbackDays)
	if err != nil {
		f.logger.WithError(err).WithField("missing", len(missing)).Warn("Remote gap fill failed")
		return
	}

	for _, frame := range frames {
		fs.Frames[frame.Code] = frame
		f.storeCached(ctx, frame.Code, date, frame)
	}
}

// dropBatch records a batch abandoned after retry exhaustion.
func (f *PostgresFeed) dropBatch(codes []string, err error) {
	if f.metrics != nil {
		f.metrics.FetchFailures.Inc()
	}
	f.logger.WithError(err).WithFields(map[string]interface{}{
		"batch_size": len(codes),
		"retries":    maxBatchRetries,
	}).Warn("Dropping frame batch after retry exhaustion")
}

// chunkCodes splits codes into batches of at most size.
func chunkCodes(codes []string, size int) [][]string {
	if size <= 0 || len(codes) == 0 {
		return nil
	}

	var chunks [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		chunks = append(chunks, codes[start:end])
	}
	return chunks
}

func reverseInPlace(values []float64) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}
