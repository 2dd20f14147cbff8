package censusapi

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const errorSnippetLimit = 240

// Options configures the Census API client.
type Options struct {
	GeocoderURL     string
	ReporterBaseURL string
	UserAgent       string
	Timeout         time.Duration
	Retries         int
	RatePerSec      float64
}

func (o Options) withDefaults() Options {
	if o.GeocoderURL == "" {
		o.GeocoderURL = "https://geocoding.geo.census.gov/geocoder/geographies/coordinates"
	}
	if o.ReporterBaseURL == "" {
		o.ReporterBaseURL = "https://api.censusreporter.org"
	}
	if o.UserAgent == "" {
		o.UserAgent = "groundtruth-census-tools/0.2"
	}
	if o.Timeout == 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 10
	}
	return o
}

// Client issues rate-limited, retrying GET requests against the Census
// Geocoder and Census Reporter APIs.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
}

// NewClient creates a Client with the given options.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), int(math.Ceil(opts.RatePerSec))),
		backoff: backoffDelay,
	}
}

// backoffDelay is the fixed retry schedule: 0.5s doubling per attempt,
// capped at 8s.
func backoffDelay(attempt int) time.Duration {
	secs := math.Min(8.0, 0.5*math.Pow(2, float64(attempt)))
	return time.Duration(secs * float64(time.Second))
}

// retryableStatus reports whether an HTTP status is safe to retry.
func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// RequestJSON performs a GET against rawURL with the given query params and
// returns the raw JSON body. Transport errors and retryable statuses are
// retried up to Retries additional attempts with capped exponential backoff;
// other 4xx responses and non-JSON 2xx bodies fail immediately. Failures
// surface as *UpstreamError tagged with stage.
func (c *Client) RequestJSON(ctx context.Context, rawURL string, params url.Values, stage string) (json.RawMessage, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "censusapi: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "censusapi: build request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.opts.Retries && ctx.Err() == nil {
				zap.L().Warn("upstream request failed, retrying",
					zap.String("stage", stage),
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				if serr := c.sleep(ctx, attempt); serr != nil {
					break
				}
				continue
			}
			return nil, NewUpstreamError(stage, "Network error after retries: %s", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt < c.opts.Retries && ctx.Err() == nil {
				if serr := c.sleep(ctx, attempt); serr != nil {
					break
				}
				continue
			}
			return nil, NewUpstreamError(stage, "Network error after retries: %s", readErr)
		}

		status := resp.StatusCode
		if retryableStatus(status) {
			lastErr = NewUpstreamError(stage, "HTTP %d: %s", status, shortErrorText(string(body), errorSnippetLimit))
			if attempt < c.opts.Retries && ctx.Err() == nil {
				zap.L().Warn("retryable upstream status",
					zap.String("stage", stage),
					zap.Int("status", status),
					zap.Int("attempt", attempt+1),
				)
				if serr := c.sleep(ctx, attempt); serr != nil {
					break
				}
				continue
			}
			return nil, lastErr
		}

		if status >= 400 && status < 500 {
			return nil, NewUpstreamError(stage, "HTTP %d: %s", status, shortErrorText(string(body), errorSnippetLimit))
		}

		if !json.Valid(body) {
			return nil, NewUpstreamError(stage, "Invalid JSON in upstream response (HTTP %d)", status)
		}
		return json.RawMessage(body), nil
	}

	if lastErr != nil {
		return nil, NewUpstreamError(stage, "Failed request after retries: %s", lastErr)
	}
	return nil, NewUpstreamError(stage, "Failed request after retries.")
}

// sleep blocks for the attempt's backoff delay, abandoning the wait when the
// caller's context is canceled.
func (c *Client) sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
