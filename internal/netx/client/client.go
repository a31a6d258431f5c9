// Package client provides the shared outbound HTTP client. Every request
// acquires admission from a sliding-window limiter group before it is
// issued, and passes through a circuit breaker that sheds load when the
// upstream is failing hard.
package client

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const defaultTimeout = 30 * time.Second

// Client wraps an *http.Client with rate-limit admission control. The
// limiter group is shared across all in-flight requests and serialized by
// a single mutex; the critical section is bounded by the bucket count.
type Client struct {
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker

	mu    sync.Mutex
	group ratelimitGroup
	epoch time.Time

	onWait func(time.Duration)
	log    zerolog.Logger
}

// ratelimitGroup is the minimal surface the client needs from a limiter
// group. Satisfied by *ratelimit.Group.
type ratelimitGroup = interface {
	HitAt(at time.Duration) (time.Duration, bool)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithWaitObserver reports every limiter deferral, e.g. to a histogram.
func WithWaitObserver(f func(time.Duration)) Option {
	return func(c *Client) { c.onWait = f }
}

// New builds a rate-limited client over the given limiter group.
func New(group ratelimitGroup, opts ...Option) *Client {
	c := &Client{
		httpc: &http.Client{Timeout: defaultTimeout},
		group: group,
		epoch: time.Now(),
		log:   zerolog.Nop(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "outbound",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
		Timeout: 15 * time.Second,
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues req after winning admission from every window in the group.
// Admission never fails: if any window defers, Do sleeps for the returned
// wait and re-checks, honoring request cancellation while it sleeps.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for {
		c.mu.Lock()
		wait, deferred := c.group.HitAt(time.Since(c.epoch))
		c.mu.Unlock()
		if !deferred {
			break
		}

		c.log.Debug().Dur("wait", wait).Str("url", req.URL.String()).Msg("rate limit deferred")
		if c.onWait != nil {
			c.onWait(wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	resp, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpc.Do(req)
	})
	if err != nil {
		return nil, err
	}
	return resp.(*http.Response), nil
}

// IsBreakerOpen reports whether err came from a shed (open or half-open
// saturated) circuit. Breaker rejections count as temporary: the upstream
// may recover.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
