package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wqlab/screener/pkg/logger"
	"github.com/wqlab/screener/pkg/redis"
)

// Client is an HTTP client wrapper with retry, circuit breaking and
// rate limiting. All HTTP traffic to the market data gateway goes
// through this client.
type Client struct {
	httpClient   *http.Client
	logger       *logger.Logger
	retryConfig  RetryConfig
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *redis.RateLimiter
	rateLimitCfg *redis.RateLimitConfig
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Enabled      bool
}

// New creates a new HTTP client
func New(log *logger.Logger) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "quote-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  log,
		breaker: breaker,
		retryConfig: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     10 * time.Second,
			Enabled:      true,
		},
	}
}

// NewWithTimeout creates a client with custom timeout
func NewWithTimeout(log *logger.Logger, timeout time.Duration) *Client {
	client := New(log)
	client.httpClient.Timeout = timeout
	return client
}

// WithRetry configures retry behavior
func (c *Client) WithRetry(maxRetries int, initialDelay time.Duration) *Client {
	c.retryConfig.MaxRetries = maxRetries
	c.retryConfig.InitialDelay = initialDelay
	c.retryConfig.Enabled = true
	return c
}

// WithRateLimiter sets the distributed rate limiter for this client
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.rateLimiter = limiter
	c.rateLimitCfg = &cfg
	return c
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}

	return c.do(req)
}

// do executes the request through the breaker with retry and logging
func (c *Client) do(req *http.Request) (*http.Response, error) {
	startTime := time.Now()
	url := req.URL.String()
	method := req.Method

	if c.rateLimiter != nil && c.rateLimitCfg != nil {
		if err := c.rateLimiter.Wait(req.Context(), *c.rateLimitCfg); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	var resp *http.Response
	var lastErr error

	attempts := 1
	if c.retryConfig.Enabled {
		attempts = c.retryConfig.MaxRetries + 1
	}

	delay := c.retryConfig.InitialDelay
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			r, err := c.httpClient.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				r.Body.Close()
				return nil, fmt.Errorf("server error: %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			resp = result.(*http.Response)
			break
		}

		lastErr = err
		if err == gobreaker.ErrOpenState {
			// No point retrying while the breaker is open.
			break
		}

		if attempt < attempts-1 {
			c.logger.WithFields(map[string]interface{}{
				"method":  method,
				"url":     url,
				"attempt": attempt + 1,
				"error":   err.Error(),
			}).Warn("HTTP request failed, retrying")

			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}

			delay *= 2
			if delay > c.retryConfig.MaxDelay {
				delay = c.retryConfig.MaxDelay
			}
		}
	}

	if resp == nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
	}

	c.logger.WithFields(map[string]interface{}{
		"method":   method,
		"url":      url,
		"status":   resp.StatusCode,
		"duration": time.Since(startTime).Milliseconds(),
	}).Debug("HTTP request completed")

	return resp, nil
}
