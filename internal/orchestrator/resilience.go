package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/config"
)

// RetryConfig configures exponential backoff for transient worker errors.
// Only errors marked with backend.Transient are retried; a task that fails
// for any other reason stays failed until an explicit Retry.
type RetryConfig struct {
	MaxRetries          int           // Attempts after the first call (default 3)
	InitialInterval     time.Duration // Initial retry interval (default 1s)
	MaxInterval         time.Duration // Maximum retry interval (default 30s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:          3,
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// RetryConfigFrom converts the file configuration, keeping defaults for unset fields.
func RetryConfigFrom(c config.RetryConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if c.MaxRetries > 0 {
		rc.MaxRetries = c.MaxRetries
	}
	if c.InitialIntervalMs > 0 {
		rc.InitialInterval = time.Duration(c.InitialIntervalMs) * time.Millisecond
	}
	if c.MaxIntervalMs > 0 {
		rc.MaxInterval = time.Duration(c.MaxIntervalMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		rc.Multiplier = c.Multiplier
	}
	return rc
}

// CircuitBreakerRegistry manages per-agent circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given agent.
// Creates a new one if it doesn't exist.
func (r *CircuitBreakerRegistry) Get(agent string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agent]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agent,
		MaxRequests: 3,                // Allow 3 test requests in half-open state
		Interval:    0,                // Don't clear counts automatically
		Timeout:     30 * time.Second, // Stay open for 30s before testing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "agent", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and timeouts are not the worker's fault
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[agent] = cb
	return cb
}

// isCircuitOpen reports whether err is a breaker rejection.
func isCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// executeWithRetry runs the task on the backend through the circuit breaker,
// retrying transient failures with exponential backoff.
func executeWithRetry(ctx context.Context, b backend.Backend, req backend.Request, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) (backend.Outcome, error) {
	var out backend.Outcome

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return b.Execute(ctx, req)
		})
		if err != nil {
			if isCircuitOpen(err) || ctx.Err() != nil || !backend.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		out = result.(backend.Outcome)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryCfg.InitialInterval
	policy.MaxInterval = retryCfg.MaxInterval
	policy.MaxElapsedTime = 0 // the dispatch timeout bounds the whole loop
	policy.Multiplier = retryCfg.Multiplier
	policy.RandomizationFactor = retryCfg.RandomizationFactor

	var bo backoff.BackOff = policy
	if retryCfg.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(retryCfg.MaxRetries))
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	return out, err
}
