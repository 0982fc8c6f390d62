package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ErrRateLimited is returned when the local call budget is spent.
var ErrRateLimited = errors.New("llm rate limit exceeded")

// ResilientConfig selects the fortify layers around a provider. A zero
// field disables its layer.
type ResilientConfig struct {
	// Attempts is the total number of tries for transient failures.
	Attempts int
	// BreakAfter opens the circuit after this many consecutive failures.
	BreakAfter int
	// MaxConcurrent bounds in-flight calls; twice as many may queue.
	MaxConcurrent int
	// RatePerSecond caps calls, with a burst of three seconds' worth.
	RatePerSecond int

	Logger *slog.Logger
}

// DefaultResilientConfig suits the tutor and judge: a learner waits on
// every call, so retries stay short.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Attempts:      3,
		BreakAfter:    3,
		MaxConcurrent: 5,
		RatePerSecond: 2,
	}
}

type generateFunc func(ctx context.Context, req *Request) (*Response, error)

// ResilientProvider applies rate limiting, a circuit breaker, retries and
// a bulkhead around another provider, outermost first.
type ResilientProvider struct {
	inner   Provider
	call    generateFunc
	limiter ratelimit.RateLimiter
}

// NewResilientProvider builds the call pipeline once; Generate only runs it.
func NewResilientProvider(p Provider, cfg ResilientConfig) *ResilientProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rp := &ResilientProvider{inner: p}
	call := generateFunc(p.Generate)

	if cfg.MaxConcurrent > 0 {
		bh := bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
		call = around(call, bh.Execute)
	}

	if cfg.Attempts > 1 {
		r := retry.New[*Response](retry.Config{
			MaxAttempts:   cfg.Attempts,
			InitialDelay:  time.Second,
			MaxDelay:      15 * time.Second,
			Multiplier:    2,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryableHTTPError,
		})
		call = around(call, r.Do)
	}

	if cfg.BreakAfter > 0 {
		threshold := cfg.BreakAfter
		cb := circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     time.Minute,
			ReadyToTrip: func(c circuitbreaker.Counts) bool {
				return int(c.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("llm circuit breaker", "provider", p.Name(), "from", from.String(), "to", to.String())
			},
		})
		call = around(call, cb.Execute)
	}

	if cfg.RatePerSecond > 0 {
		rp.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerSecond,
			Burst:    cfg.RatePerSecond * 3,
			Interval: time.Second,
		})
		next, key := call, p.Name()
		call = func(ctx context.Context, req *Request) (*Response, error) {
			if !rp.limiter.Allow(ctx, key) {
				return nil, fmt.Errorf("%w: %s", ErrRateLimited, key)
			}
			return next(ctx, req)
		}
	}

	rp.call = call
	return rp
}

// around adapts a fortify executor into a pipeline stage.
func around(next generateFunc, exec func(context.Context, func(context.Context) (*Response, error)) (*Response, error)) generateFunc {
	return func(ctx context.Context, req *Request) (*Response, error) {
		return exec(ctx, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

func (p *ResilientProvider) Name() string {
	return p.inner.Name()
}

func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	return p.call(ctx, req)
}

// Close stops the rate limiter.
func (p *ResilientProvider) Close() error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Close()
}

var statusRe = regexp.MustCompile(`(?:status|Error) (\d{3})`)

// isRetryableHTTPError reports whether err carries a transient HTTP status.
// When every Gemini key failed, the last key's error decides.
func isRetryableHTTPError(err error) bool {
	if err == nil {
		return false
	}
	var code int
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code = apiErr.StatusCode
	} else if m := statusRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
