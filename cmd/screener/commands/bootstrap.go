package commands

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wqlab/screener/internal/alerts"
	"github.com/wqlab/screener/internal/engine"
	"github.com/wqlab/screener/internal/factorfeed"
	"github.com/wqlab/screener/internal/industry"
	"github.com/wqlab/screener/internal/strategyconfig"
	"github.com/wqlab/screener/pkg/config"
	"github.com/wqlab/screener/pkg/database"
	"github.com/wqlab/screener/pkg/httputil"
	"github.com/wqlab/screener/pkg/logger"
	"github.com/wqlab/screener/pkg/metrics"
	"github.com/wqlab/screener/pkg/redis"
)

// deps is the shared dependency graph every command builds once.
type deps struct {
	cfg      *config.Config
	strategy strategyconfig.Config
	log      *logger.Logger

	db       *database.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	producer *alerts.Producer

	orchestrator *engine.Orchestrator
}

// buildDeps wires the full engine stack. startingCash seeds the
// simulated account.
func buildDeps(startingCash float64) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	strategy, err := loadStrategy()
	if err != nil {
		return nil, err
	}
	if err := strategyconfig.Validate(&strategy); err != nil {
		return nil, fmt.Errorf("invalid strategy: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	cache := redis.NewCache(redisClient, "screener")

	httpClient := httputil.New(log).WithRateLimiter(
		redis.NewRateLimiter(redisClient, "screener"),
		redis.RateLimitConfig{Key: "quote-gateway", Limit: cfg.Quote.RateLimit, Window: time.Second},
	)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	feed := factorfeed.NewPostgres(db, strategy.Meta.Benchmark, cfg.Quote.RateLimit, log,
		factorfeed.WithCache(cache),
		factorfeed.WithRemote(factorfeed.NewRemoteSource(httpClient, cfg.Quote.BaseURL, log)),
		factorfeed.WithMetrics(m),
	)

	scraper := industry.NewScraper(httpClient, cfg.Quote.BaseURL, log, industry.WithCache(cache))

	opts := []engine.Option{
		engine.WithMetrics(m),
		engine.WithIndustrySource(scraper),
	}

	d := &deps{
		cfg:      cfg,
		strategy: strategy,
		log:      log,
		db:       db,
		redis:    redisClient,
		registry: registry,
		metrics:  m,
	}

	if cfg.Kafka.Enabled {
		producer, err := alerts.NewProducer(cfg, log)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("connect to kafka: %w", err)
		}
		d.producer = producer
		opts = append(opts, engine.WithPublisher(producer))
	}

	d.orchestrator = engine.New(strategy, feed, startingCash, log, opts...)
	return d, nil
}

// Close releases connections in reverse build order.
func (d *deps) Close() {
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			d.log.WithError(err).Warn("Kafka producer close failed")
		}
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
}
