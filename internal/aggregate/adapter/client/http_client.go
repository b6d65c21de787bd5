// Package client is the outbound HTTP client used to pull peer metadata.
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "github.com/uc-cdis/metadata-service-sub001/internal/shared/errors"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// RetryPolicy controls retries of timed out requests
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	// Jitter is the randomization factor applied to each delay
	Jitter float64
}

// DefaultRetryPolicy retries a timed out request up to 5 times, doubling
// from 1s with 50% jitter and capping at 20s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Base: time.Second, Cap: 20 * time.Second, Jitter: 0.5}
}

// BackOff returns a fresh exponential schedule bounded by MaxAttempts and ctx
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Base
	exp.MaxInterval = p.Cap
	exp.RandomizationFactor = p.Jitter
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Fetcher performs GET requests on behalf of the puller and adapters
type Fetcher interface {
	Get(ctx context.Context, url string, limiter *rate.Limiter) ([]byte, error)
}

// Client is a pooled fasthttp client with timeout retries
type Client struct {
	http    *fasthttp.Client
	timeout time.Duration
	retry   RetryPolicy
	log     logger.Logger

	// nil uses the backoff package's real timer
	timer backoff.Timer
}

// Option customizes a Client
type Option func(*Client)

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithTimer replaces the timer that waits between retries, mostly for tests
func WithTimer(t backoff.Timer) Option {
	return func(c *Client) { c.timer = t }
}

// NewClient creates a client with a per-request timeout
func NewClient(timeout time.Duration, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:                "metadata-service-aggregator",
			MaxConnsPerHost:     32,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		timeout: timeout,
		retry:   DefaultRetryPolicy(),
		log:     log.WithComponent("aggregate-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url, retrying only on timeouts. Status codes >= 400 fail
// immediately with an upstream error.
func (c *Client) Get(ctx context.Context, url string, limiter *rate.Limiter) ([]byte, error) {
	var (
		body     []byte
		attempts int
	)
	op := func() error {
		attempts++
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		b, err := c.do(ctx, url)
		if err != nil {
			if !isTimeout(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, delay time.Duration) {
		c.log.WithContext(ctx).Warn("Request timed out, retrying", "url", url, "attempt", attempts, "delay", delay.String())
	}

	err := backoff.RetryNotifyWithTimer(op, c.retry.BackOff(ctx), notify, c.timer)
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if isTimeout(err) {
		return nil, apperrors.NewUpstreamTimeoutError(fmt.Sprintf("GET %s timed out after %d attempts", url, attempts)).WithCause(err)
	}
	return nil, err
}

func (c *Client) do(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}
	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		return nil, apperrors.NewUpstreamError(fmt.Sprintf("GET %s returned %d", url, status), status)
	}
	return append([]byte(nil), resp.Body()...), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// NewLimiter returns a limiter for rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}
