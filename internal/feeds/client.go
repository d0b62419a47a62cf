package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Default client configuration.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultTotalTimeout   = 15 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBase      = 500 * time.Millisecond
	DefaultBackoffMult    = 2.0
	DefaultRateLimit      = 2 // requests per second sustained
	DefaultRateBurst      = 5

	// retryJitterPct spreads retry delays by ±25% to avoid thundering herds.
	retryJitterPct = 0.25

	maxResponseBytes = 4 << 20
)

// Client is the shared HTTP core of all feed clients: per-host token bucket,
// exponential backoff with jitter on transient failures, and a circuit
// breaker that opens after consecutive upstream faults.
type Client struct {
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	maxRetries  int
	retryBase   time.Duration
	backoffMult float64
	logger      zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the total request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithRateLimit sets the sustained request rate and burst size.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBase sets the initial backoff delay.
func WithRetryBase(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryBase = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a feed HTTP client. The name labels the circuit breaker
// and log lines.
func NewClient(name string, opts ...ClientOption) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: DefaultConnectTimeout,
		}).DialContext,
		MaxIdleConnsPerHost: 4,
	}

	c := &Client{
		http: &http.Client{
			Timeout:   DefaultTotalTimeout,
			Transport: transport,
		},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		maxRetries:  DefaultMaxRetries,
		retryBase:   DefaultRetryBase,
		backoffMult: DefaultBackoffMult,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return c
}

// GetJSON fetches url and decodes the JSON body into out. Transient
// failures (timeout, 429, 5xx, network) are retried with exponential
// backoff; 404 and decode failures fail fast.
func (c *Client) GetJSON(ctx context.Context, op, url string, out any) error {
	body, err := c.Get(ctx, op, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return nil
}

// Get fetches url and returns the raw body.
func (c *Client) Get(ctx context.Context, op, url, accept string) ([]byte, error) {
	delay := c.retryBase
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Op: op, Err: ctx.Err()}
			case <-time.After(jitter(delay)):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
		}

		body, err := c.doOnce(ctx, op, url, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var fe *Error
		if errors.As(err, &fe) && !fe.Retryable() {
			return nil, err
		}
		c.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("feed request failed, retrying")
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, op, url, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindTimeout, Op: op, Err: err}
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &Error{Kind: KindMalformed, Op: op, Err: err}
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, classifyTransportError(op, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &Error{Kind: KindRateLimited, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode == http.StatusNotFound:
			return nil, &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode >= 500:
			return nil, &Error{Kind: KindUpstream, Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
		case resp.StatusCode != http.StatusOK:
			return nil, &Error{Kind: KindMalformed, Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, classifyTransportError(op, err)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Kind: KindUpstream, Op: op, Err: err}
		}
		return nil, err
	}

	return result.([]byte), nil
}

func classifyTransportError(op string, err error) *Error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) * retryJitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
