// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/simokitafresh/database-sub001/internal/common"
	"github.com/simokitafresh/database-sub001/internal/interfaces"
	"github.com/simokitafresh/database-sub001/internal/models"
)

const (
	DefaultBaseURL     = "https://eodhd.com/api"
	DefaultTimeout     = 30 * time.Second
	DefaultRateLimit   = 10 // requests per second
	DefaultConcurrency = 4  // in-flight requests across all callers
)

// RetryPolicy governs retries of transient provider failures. The classifier
// lives in IsRetryable so the transient/permanent decision is testable in
// isolation and cannot drift between call sites.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetryable func(error) bool
}

// DefaultRetryPolicy retries transient failures up to 4 attempts with
// exponential backoff from 500ms capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		IsRetryable: func(err error) bool {
			var fe *models.FetchError
			return errors.As(err, &fe) && fe.IsTransient()
		},
	}
}

// Client implements the PriceFeedClient interface against EODHD.
type Client struct {
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *common.Logger
	limiter        *rate.Limiter
	sem            *semaphore.Weighted
	retry          RetryPolicy
	attemptTimeout time.Duration
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithConcurrency bounds in-flight requests across all callers sharing the
// client. Blocked acquirers wait on the context, never on each other.
func WithConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.attemptTimeout = timeout
	}
}

// WithRetryPolicy sets the retry policy for transient failures
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) {
		if p.IsRetryable == nil {
			p.IsRetryable = DefaultRetryPolicy().IsRetryable
		}
		c.retry = p
	}
}

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		apiKey:         apiKey,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		sem:            semaphore.NewWeighted(DefaultConcurrency),
		retry:          DefaultRetryPolicy(),
		attemptTimeout: DefaultTimeout,
		logger:         common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Source identifies this provider in row provenance tags.
func (c *Client) Source() string { return "eodhd" }

// APIError represents a non-200 API response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// classify maps a raw request error onto the fetch taxonomy. Timeouts and
// rate-limit or server-side statuses are transient; a 404 means the symbol
// does not exist at the provider and is never retried.
func (c *Client) classify(symbol string, err error) *models.FetchError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return &models.FetchError{Symbol: symbol, Kind: models.FetchNotFound, Status: apiErr.StatusCode, Err: err}
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= 500:
			return &models.FetchError{Symbol: symbol, Kind: models.FetchTransient, Status: apiErr.StatusCode, Err: err}
		default:
			return &models.FetchError{Symbol: symbol, Kind: models.FetchPermanent, Status: apiErr.StatusCode, Err: err}
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &models.FetchError{Symbol: symbol, Kind: models.FetchTransient, Err: err}
	}

	return &models.FetchError{Symbol: symbol, Kind: models.FetchTransient, Err: err}
}

// GetEOD retrieves daily OHLCV bars for [from, to], retrying transient
// failures per the client's policy. The global concurrency bound is held for
// the whole retry sequence so waiting retries cannot pile extra load onto
// the provider.
func (c *Client) GetEOD(ctx context.Context, symbol string, from, to time.Time) ([]models.ProviderBar, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch slot wait: %w", err)
	}
	defer c.sem.Release(1)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retry.BaseDelay
	expo.MaxInterval = c.retry.MaxDelay
	expo.MaxElapsedTime = 0

	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var bars []models.ProviderBar
	attempt := 0
	op := func() error {
		attempt++
		var err error
		bars, err = c.fetchOnce(ctx, symbol, from, to)
		if err == nil {
			return nil
		}

		fe := c.classify(symbol, err)
		if !c.retry.IsRetryable(fe) {
			return backoff.Permanent(fe)
		}
		c.logger.Warn().
			Str("symbol", symbol).
			Int("attempt", attempt).
			Err(fe).
			Msg("Transient fetch failure, will retry")
		return fe
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx))
	if err != nil {
		var fe *models.FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, c.classify(symbol, err)
	}

	return bars, nil
}

// fetchOnce performs a single rate-limited request attempt.
func (c *Client) fetchOnce(ctx context.Context, symbol string, from, to time.Time) ([]models.ProviderBar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")
	params.Set("period", "d")
	params.Set("order", "a") // ascending
	params.Set("from", from.Format(models.DateLayout))
	params.Set("to", to.Format(models.DateLayout))

	path := fmt.Sprintf("/eod/%s", url.PathEscape(symbol))
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Str("from", from.Format(models.DateLayout)).
		Str("to", to.Format(models.DateLayout)).
		Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	var raw []eodBarResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	bars := make([]models.ProviderBar, 0, len(raw))
	for _, b := range raw {
		date, err := time.Parse(models.DateLayout, b.Date)
		if err != nil {
			c.logger.Warn().Str("symbol", symbol).Str("date", b.Date).Msg("Skipping bar with unparseable date")
			continue
		}
		bars = append(bars, models.ProviderBar{
			Date:   date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	return bars, nil
}

// eodBarResponse represents the API response for EOD data
type eodBarResponse struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        int64   `json:"volume"`
}

// Ensure Client implements PriceFeedClient
var _ interfaces.PriceFeedClient = (*Client)(nil)
