// Package marketdata is a client for a financialdatasets-style market data
// HTTP API: historical price bars and point-in-time snapshots. Transient
// failures (network errors, 429, 5xx) are retried with bounded exponential
// backoff; other non-2xx responses fail immediately.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/logging"
)

// APIKeyEnv is the environment variable consulted when no key is configured.
const APIKeyEnv = "FINANCIAL_DATASETS_API_KEY"

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.financialdatasets.ai"

// Price is a single OHLCV bar.
type Price struct {
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume float64 `json:"volume"`
	Time   string  `json:"time"`
}

// Snapshot is a point-in-time quote.
type Snapshot struct {
	Ticker           string  `json:"ticker"`
	Price            float64 `json:"price"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
	Time             string  `json:"time"`
}

// PriceHistory bundles the intraday and 30-day series of one ticker.
type PriceHistory struct {
	OneDay    []Price `json:"oneDayPrices"`
	ThirtyDay []Price `json:"thirtyDayPrices"`
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// InitialInterval is the first backoff duration.
	InitialInterval time.Duration
	// MaxInterval caps a single backoff duration.
	MaxInterval time.Duration
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Options configure the Client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retry      RetryConfig
	Logger     logging.Logger
	Now        func() time.Time
}

// Client talks to the market data API. It is safe for concurrent use.
type Client struct {
	opts Options
}

// New creates a Client. The API key defaults to $FINANCIAL_DATASETS_API_KEY;
// a missing key is reported on first use as a *core.ConfigurationError.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:    DefaultBaseURL,
		APIKey:     os.Getenv(APIKeyEnv),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Retry:      DefaultRetryConfig(),
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{opts: opts}
}

// Prices fetches bars of interval ("minute", "day", ...) times multiplier
// between start and end (inclusive, day granularity).
func (c *Client) Prices(ctx context.Context, ticker, interval string, multiplier int, start, end time.Time) ([]Price, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("interval", interval)
	q.Set("interval_multiplier", strconv.Itoa(multiplier))
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))

	var body struct {
		Prices []Price `json:"prices"`
	}

	if err := c.get(ctx, "/prices/", q, &body); err != nil {
		return nil, err
	}

	return body.Prices, nil
}

// Snapshot fetches the latest quote for ticker.
func (c *Client) Snapshot(ctx context.Context, ticker string) (Snapshot, error) {
	q := url.Values{}
	q.Set("ticker", ticker)

	var body struct {
		Snapshot Snapshot `json:"snapshot"`
	}

	if err := c.get(ctx, "/prices/snapshot/", q, &body); err != nil {
		return Snapshot{}, err
	}

	return body.Snapshot, nil
}

// PriceHistory fetches the intraday (5-minute bars over the last day) and
// 30-day (daily bars) series concurrently. Both must succeed.
func (c *Client) PriceHistory(ctx context.Context, ticker string) (PriceHistory, error) {
	now := c.opts.Now()

	var h PriceHistory

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prices, err := c.Prices(gctx, ticker, "minute", 5, now.AddDate(0, 0, -1), now)
		h.OneDay = prices

		return err
	})
	g.Go(func() error {
		prices, err := c.Prices(gctx, ticker, "day", 1, now.AddDate(0, 0, -30), now)
		h.ThirtyDay = prices

		return err
	})

	if err := g.Wait(); err != nil {
		return PriceHistory{}, err
	}

	return h, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	if c.opts.APIKey == "" {
		return core.NewConfigurationError(APIKeyEnv)
	}

	target := c.opts.BaseURL + path + "?" + q.Encode()
	start := time.Now()
	attempts := 0
	status := 0

	op := func() error {
		attempts++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("X-API-KEY", c.opts.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.opts.HTTPClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			return &core.ExternalFetchError{URL: target, Transient: true, Err: err}
		}
		defer resp.Body.Close()

		status = resp.StatusCode

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return &core.ExternalFetchError{URL: target, Status: status, Transient: true, Err: err}
		}

		if fetchErr := classifyStatus(target, status, data); fetchErr != nil {
			if fetchErr.Transient {
				return fetchErr
			}

			return backoff.Permanent(fetchErr)
		}

		if err := json.Unmarshal(data, dst); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s response: %w", path, err))
		}

		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.opts.Retry.MaxRetries), ctx))

	if fl, ok := c.opts.Logger.(interface {
		LogExternalFetch(url string, status int, attempts int, dur time.Duration, err error)
	}); ok {
		fl.LogExternalFetch(c.opts.BaseURL+path, status, attempts, time.Since(start), err)
	} else if err != nil {
		c.opts.Logger.Warn("marketdata.fetch.failed", "path", path, "status", status, "attempts", attempts, "error", err.Error())
	}

	return err
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.Retry.InitialInterval
	b.MaxInterval = c.opts.Retry.MaxInterval
	b.MaxElapsedTime = 0

	return b
}

// classifyStatus maps a non-2xx response to an ExternalFetchError; 429 and 5xx
// are transient.
func classifyStatus(target string, status int, body []byte) *core.ExternalFetchError {
	if status >= 200 && status < 300 {
		return nil
	}

	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}

	return &core.ExternalFetchError{
		URL:       target,
		Status:    status,
		Body:      snippet,
		Transient: status == http.StatusTooManyRequests || status >= 500,
		Err:       errors.New(http.StatusText(status)),
	}
}
