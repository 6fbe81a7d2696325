// Package transport is the HTTP plumbing shared by the REST adapters: pacing, retries
// and status-code classification.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const maxErrorBody = 1024

// StatusError is a non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %s", e.Status)
	}
	return fmt.Sprintf("http %s: %s", e.Status, e.Body)
}

// Retryable reports whether the response is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Options tune a Client. Zero values select defaults.
type Options struct {
	// RequestsPerSecond paces requests; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	MaxRetries        uint64
	InitialInterval   time.Duration
	MaxInterval       time.Duration
}

// Client sends requests through a rate limiter and retries transient failures.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	initial    time.Duration
	maxWait    time.Duration
}

// New wraps httpClient. A nil httpClient gets a 30 second timeout.
func New(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		http:       httpClient,
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialInterval,
		maxWait:    opts.MaxInterval,
	}
	if c.maxRetries == 0 {
		c.maxRetries = 4
	}
	if c.initial <= 0 {
		c.initial = 500 * time.Millisecond
	}
	if c.maxWait <= 0 {
		c.maxWait = 30 * time.Second
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Do builds and sends a request, returning the body of a 2xx response. build is called
// once per attempt so request bodies can be replayed.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxWait
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	return backoff.RetryWithData(func() ([]byte, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("new request: %w", err))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			se := &StatusError{
				Code:   resp.StatusCode,
				Status: resp.Status,
				Body:   strings.TrimSpace(string(payload)),
			}
			if se.Retryable() {
				return nil, se
			}
			return nil, backoff.Permanent(se)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return body, nil
	}, policy)
}
