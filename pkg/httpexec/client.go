// Package httpexec performs the outbound HTTP call of a job execution.
package httpexec

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/logger"
	"github.com/callsched/core/pkg/models"
)

// Config controls the outbound client.
type Config struct {
	// Timeout bounds a whole call. Zero means no timeout.
	Timeout time.Duration

	BreakerEnabled     bool
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client sends job requests. Non-2xx responses are returned as responses, not
// errors; only transport failures are errors.
type Client struct {
	r      *resty.Client
	cfg    Config
	logger *logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a client. Retries are disabled: each execution is exactly one call.
func New(cfg Config, log *logger.Logger) *Client {
	r := resty.New().
		SetRetryCount(0).
		SetTimeout(cfg.Timeout)

	return &Client{
		r:        r,
		cfg:      cfg,
		logger:   log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Do sends req and waits for the full response.
func (c *Client) Do(ctx context.Context, req *models.HTTPRequest) (*models.HTTPResponse, error) {
	if !c.cfg.BreakerEnabled {
		return c.send(ctx, req)
	}

	cb, err := c.breaker(req.URL)
	if err != nil {
		return nil, err
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return c.send(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.Wrapf(err, "circuit breaker for %s", cb.Name())
		}
		return nil, err
	}
	return out.(*models.HTTPResponse), nil
}

func (c *Client) send(ctx context.Context, req *models.HTTPRequest) (*models.HTTPResponse, error) {
	r := c.r.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.Body != nil {
		if !hasHeader(req.Headers, "Content-Type") {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(*req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(strings.ToUpper(req.Method), req.URL)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.LogAPICall(req.Method, req.URL, 0, elapsed, err)
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL)
	}

	if t := resp.Time(); t > 0 {
		elapsed = t
	}
	c.logger.LogAPICall(req.Method, req.URL, resp.StatusCode(), elapsed, nil)

	return &models.HTTPResponse{
		StatusCode: resp.StatusCode(),
		Elapsed:    elapsed,
		Body:       resp.Body(),
		Headers:    resp.Header(),
	}, nil
}

// breaker returns the circuit breaker of the target host, creating it on first use.
func (c *Client) breaker(rawURL string) (*gobreaker.CircuitBreaker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse url %q", rawURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[u.Host]; ok {
		return cb, nil
	}

	maxFailures := c.cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	host := u.Host
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: c.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("action", "circuit_breaker_state").
				Str("host", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	c.breakers[host] = cb
	return cb, nil
}

func hasHeader(h map[string]string, name string) bool {
	for k := range h {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
			return true
		}
	}
	return false
}
