// Package dse provides a client for the Dhaka Stock Exchange website pages
package dse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/dsefeed/internal/common"
	"github.com/bobmcallan/dsefeed/internal/interfaces"
	"github.com/bobmcallan/dsefeed/internal/models"
)

const (
	DefaultBaseURL        = "https://www.dsebd.org"
	DefaultTimeout        = 10 * time.Second
	DefaultRateLimit      = 2 // requests per second
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 4 * time.Second
	DefaultMaxBodyBytes   = 64 << 20

	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Page paths on the exchange website
const (
	PathLatest     = "/latest_share_price_scroll_l.php"
	PathDsex       = "/dseX_share.php"
	PathTop30      = "/dse30_share.php"
	PathHistorical = "/day_end_archive.php"
)

// Client implements PageFetcher against the exchange website
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         *common.Logger
	limiter        *rate.Limiter
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxBodyBytes   int64
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
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the initial and maximum delay between retries
func WithBackoff(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithMaxBodyBytes caps the size of a page body. Larger pages fail the fetch.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Its Timeout is kept.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new exchange website client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:         common.NewSilentLogger(),
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// PageURL builds the absolute URL of the page serving req.
func (c *Client) PageURL(req models.PageRequest) (string, error) {
	switch req.View {
	case models.ViewLatest:
		return c.baseURL + PathLatest, nil
	case models.ViewDsex:
		return c.baseURL + PathDsex, nil
	case models.ViewTop30:
		return c.baseURL + PathTop30, nil
	case models.ViewHistorical:
		code := req.Code
		if code == "" {
			code = models.AllInstruments
		}
		params := url.Values{}
		params.Set("startDate", req.Range.Start.Format(models.DateLayout))
		params.Set("endDate", req.Range.End.Format(models.DateLayout))
		params.Set("inst", code)
		params.Set("archive", "data")
		return c.baseURL + PathHistorical + "?" + params.Encode(), nil
	default:
		return "", fmt.Errorf("no upstream page for view %q", req.View)
	}
}

// attemptError carries the classification of one failed attempt.
type attemptError struct {
	kind   common.FetchErrorKind
	status int
	err    error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// Fetch retrieves the raw page for req, retrying transient failures with
// exponential backoff. The body is returned untouched.
func (c *Client) Fetch(ctx context.Context, req models.PageRequest) ([]byte, error) {
	reqURL, err := c.PageURL(req)
	if err != nil {
		return nil, &common.FetchError{Kind: common.FetchRejected, View: string(req.View), Err: err}
	}

	var (
		body     []byte
		attempts int
		last     *attemptError
	)

	operation := func() error {
		attempts++
		b, aerr := c.attempt(ctx, req.View, reqURL)
		if aerr == nil {
			body = b
			return nil
		}
		last = aerr
		if aerr.kind != common.FetchTransient {
			return backoff.Permanent(aerr)
		}
		return aerr
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	exp.MaxInterval = c.maxBackoff
	exp.MaxElapsedTime = 0 // bounded by retry count and ctx instead
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).
			Str("view", string(req.View)).
			Int("attempt", attempts).
			Dur("retry_in", wait).
			Msg("DSE page request failed, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		fe := &common.FetchError{
			Kind:     common.FetchTransient,
			View:     string(req.View),
			Attempts: attempts,
			Err:      err,
		}
		if last != nil {
			fe.Kind = last.kind
			fe.StatusCode = last.status
			fe.Err = last.err
		}
		return nil, fe
	}

	return body, nil
}

// attempt performs one rate-limited GET.
func (c *Client) attempt(ctx context.Context, view models.View, reqURL string) ([]byte, *attemptError) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &attemptError{kind: common.FetchTransient, err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &attemptError{kind: common.FetchRejected, err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	c.logger.Debug().Str("view", string(view)).Str("url", reqURL).Msg("DSE page request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		kind := classifyTransportError(err)
		c.logger.Debug().Err(err).Str("view", string(view)).Str("kind", string(kind)).Dur("elapsed", elapsed).Msg("DSE page request failed")
		return nil, &attemptError{kind: kind, err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain a little so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		kind := common.FetchRejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = common.FetchTransient
		}
		c.logger.Warn().Str("view", string(view)).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("DSE page non-OK response")
		return nil, &attemptError{kind: kind, status: resp.StatusCode, err: fmt.Errorf("DSE page error: status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, &attemptError{kind: common.FetchTransient, err: fmt.Errorf("failed to read body: %w", err)}
	}
	// a truncated page would parse into a silently partial record set
	if int64(len(body)) > c.maxBodyBytes {
		c.logger.Warn().Str("view", string(view)).Int64("limit", c.maxBodyBytes).Msg("DSE page exceeds body limit")
		return nil, &attemptError{kind: common.FetchRejected, status: resp.StatusCode, err: fmt.Errorf("DSE page body exceeds %d bytes", c.maxBodyBytes)}
	}

	c.logger.Info().Str("view", string(view)).Int("bytes", len(body)).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("DSE page fetched")

	return body, nil
}

// classifyTransportError separates "cannot reach the host at all" from
// failures worth another attempt.
func classifyTransportError(err error) common.FetchErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return common.FetchUnreachable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return common.FetchUnreachable
	}
	return common.FetchTransient
}

// Ensure Client implements PageFetcher
var _ interfaces.PageFetcher = (*Client)(nil)
