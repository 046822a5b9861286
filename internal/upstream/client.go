// Package upstream provides the HTTP client shared by every third-party
// API integration: chain explorers, indexers and price feeds.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/chain-portfolio/internal/circuitbreaker"
	"github.com/chain-portfolio/internal/metrics"
	"github.com/chain-portfolio/internal/retry"
)

// StatusError is returned when an upstream answers with a non-2xx status
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, body)
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// isUpstreamFault reports whether err should count against the provider's
// circuit breaker. Client-side 4xx answers (other than 429) do not.
func isUpstreamFault(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// isTransient reports whether a failed call is worth retrying: upstream
// 5xx and 429 answers and network errors. Open circuits are not retried.
func isTransient(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Options configures a Client
type Options struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	// RequestsPerMinute throttles outgoing calls; zero disables throttling
	RequestsPerMinute int
	// Breakers supplies the provider's circuit breaker; nil disables it
	Breakers *circuitbreaker.Manager
	// Retry re-runs transient failures; nil disables retries
	Retry *retry.Config
}

// Client is a JSON HTTP client bound to one upstream provider
type Client struct {
	name    string
	http    *resty.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
}

// New creates a client for one provider
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chain-portfolio/1.0")
	for k, v := range opts.Headers {
		if v != "" {
			rc.SetHeader(k, v)
		}
	}

	c := &Client{name: opts.Name, http: rc}
	if opts.Retry != nil {
		policy := *opts.Retry
		policy.Retryable = isTransient
		c.retry = &policy
	}
	if opts.RequestsPerMinute > 0 {
		perSecond := rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
		c.limiter = rate.NewLimiter(perSecond, 1)
	}
	if opts.Breakers != nil {
		c.breaker = opts.Breakers.GetOrCreate(opts.Name)
	}
	return c
}

// Name returns the provider name used in logs and metrics
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues a GET and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	return c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		if len(query) > 0 {
			req.SetQueryParams(query)
		}
		return req.Get(path)
	}, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON answer into out
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetHeader("Content-Type", "application/json").SetBody(body).Post(path)
	}, out)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CallRPC performs a JSON-RPC 2.0 call against path and decodes result into out
func (c *Client) CallRPC(ctx context.Context, path, method string, params, out interface{}) error {
	var resp rpcResponse
	req := rpcRequest{JSONRPC: "2.0", ID: "portfolio", Method: method, Params: params}
	if err := c.PostJSON(ctx, path, req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s %s: %w", c.name, method, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode result: %w", c.name, method, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, send func(*resty.Request) (*resty.Response, error), out interface{}) error {
	if c.retry == nil {
		return c.attempt(ctx, send, out)
	}
	return retry.Do(ctx, c.retry, func(ctx context.Context, _ int) error {
		return c.attempt(ctx, send, out)
	})
}

// attempt makes one throttled, breaker-guarded call
func (c *Client) attempt(ctx context.Context, send func(*resty.Request) (*resty.Response, error), out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", c.name, err)
		}
	}

	call := func() error {
		start := time.Now()
		resp, err := send(c.http.R().SetContext(ctx))
		metrics.UpstreamDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(c.name, "transport_error").Inc()
			return fmt.Errorf("%s: request failed: %w", c.name, err)
		}

		if resp.IsError() {
			metrics.UpstreamRequests.WithLabelValues(c.name, fmt.Sprintf("http_%d", resp.StatusCode())).Inc()
			return &StatusError{Provider: c.name, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
		}

		metrics.UpstreamRequests.WithLabelValues(c.name, "ok").Inc()
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%s: failed to decode response: %w", c.name, err)
		}
		return nil
	}

	if c.breaker == nil {
		return call()
	}

	var callErr error
	err := c.breaker.Execute(ctx, func() error {
		callErr = call()
		if callErr != nil && !isUpstreamFault(callErr) {
			return nil
		}
		return callErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			metrics.UpstreamRequests.WithLabelValues(c.name, "circuit_open").Inc()
			return fmt.Errorf("%s: %w", c.name, err)
		}
		return err
	}
	return callErr
}
