package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"jobmate/aggregator-service/internal/model"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxResponseBytes   = 32 << 20
	maxErrorBodyBytes  = 512
	userAgent          = "jobmate-aggregator/1.0"
)

// ClientOptions configures the HTTP client used by adapters.
type ClientOptions struct {
	Timeout time.Duration
	// RequestsPerSecond caps the request rate towards one upstream. Zero
	// disables limiting.
	RequestsPerSecond float64
	// Now is the ingestion clock stamped on fetched records. Defaults to time.Now.
	Now func() time.Time
}

// Client is a rate-limited JSON HTTP client.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient constructs a Client from opts.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		now:     now,
	}
}

// fetchedAt returns the ingestion timestamp for a batch.
func (c *Client) fetchedAt() time.Time {
	return c.now().UTC()
}

// getJSON issues a GET and decodes the JSON body into out. Every failure is
// reported as *SourceUnavailableError.
func (c *Client) getJSON(ctx context.Context, source model.SourceName, endpoint string, out any) error {
	unavailable := func(status int, err error) error {
		return &SourceUnavailableError{Source: source, URL: redactURL(endpoint), StatusCode: status, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return unavailable(0, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return unavailable(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error repeats the full URL, query string included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return unavailable(0, fmt.Errorf("http GET: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return unavailable(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return unavailable(resp.StatusCode, fmt.Errorf("unexpected status: %s", string(snippet)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return unavailable(0, fmt.Errorf("json unmarshal: %w", err))
	}
	return nil
}

// redactURL drops the query string, which may carry API keys.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
