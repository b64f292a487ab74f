// Package rest is the HTTP transport shared by the hand-written venue
// bindings. It throttles requests, reads responses, and maps transport
// failures onto the domain's transient error sentinels so the resilience
// layer can recognise them.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/zcesur/crypto-arb/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody bounds how much of a failed response ends up in errors.
	maxErrorBody = 512
)

// Config configures a Client.
type Config struct {
	// Venue names the venue in errors and rate-limit keys.
	Venue   string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond and Burst set the in-process limiter. Zero
	// RequestsPerSecond disables it.
	RequestsPerSecond float64
	Burst             int
	// Limiter, when set, replaces the limiter built from RequestsPerSecond
	// and Burst. Clients built for the same venue pass the same Limiter so
	// they draw on one budget.
	Limiter *rate.Limiter
	// Shared is an optional cross-process limiter consulted after the local
	// one, keyed by LimitKey.
	Shared   domain.RateLimiter
	LimitKey string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client sends requests to one venue.
type Client struct {
	venue      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	shared     domain.RateLimiter
	limitKey   string
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}

	key := cfg.LimitKey
	if key == "" {
		key = cfg.Venue
	}

	return &Client{
		venue:      cfg.Venue,
		baseURL:    cfg.BaseURL,
		httpClient: hc,
		limiter:    limiter,
		shared:     cfg.Shared,
		limitKey:   key,
	}
}

// NewLimiter returns a limiter allowing requestsPerSecond with the given
// burst. Zero requestsPerSecond means unlimited.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return rate.NewLimiter(limit, max(burst, 1))
}

// URL joins path and query onto the base URL.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do waits for the rate limiters, sends req and returns the response body.
//
// Transport failures come back wrapped around a transient sentinel where
// one applies. A 5xx status is reported as no response. Any other non-2xx
// status is a *domain.VenueError carrying the status and body.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	if err := c.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w", c.venue, req.Method, req.URL.Path, MapError(err))
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: %s %s: %w", c.venue, req.Method, req.URL.Path, domain.ErrNoResponse)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", c.venue, req.URL.Path, MapError(err))
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%s: %s: HTTP %d: %w", c.venue, req.URL.Path, resp.StatusCode, domain.ErrNoResponse)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewVenueError(c.venue, req.URL.Path,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(body, maxErrorBody)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%s: %s: %w", c.venue, req.URL.Path, domain.ErrEmptyResponse)
	}
	return body, nil
}

// Wait blocks on the local limiter, then on the shared one if configured.
func (c *Client) Wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w", c.venue, err)
	}
	if c.shared != nil {
		if err := c.shared.Wait(ctx, c.limitKey); err != nil {
			return fmt.Errorf("%s: shared rate limit: %w", c.venue, err)
		}
	}
	return nil
}

// Transport returns an http.RoundTripper that waits on the client's rate
// limiters before delegating to base. It lets SDK-based bindings share the
// same throttling. A nil base means http.DefaultTransport.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return roundTripper{c: c, base: base}
}

// HTTPClient returns an *http.Client with the configured timeout whose
// requests pass through Transport.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: c.Transport(c.httpClient.Transport),
	}
}

type roundTripper struct {
	c    *Client
	base http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.c.Wait(req.Context()); err != nil {
		return nil, err
	}
	return rt.base.RoundTrip(req)
}

// Get builds and sends a GET request with the given headers.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", c.venue, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(req)
}

// Decode unmarshals a response body. Decode failures wrap the malformed
// payload sentinel.
func Decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}

// MapError wraps err around the transient sentinel it corresponds to.
// Errors with no transient counterpart, cancellation included, are returned
// unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrReadTimeout, err)
	case errors.Is(err, syscall.ECONNRESET):
		return fmt.Errorf("%w: %v", domain.ErrConnectionReset, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", domain.ErrNoResponse, err)
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
