package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// CircuitBreakerConfig holds breaker tuning
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// FailureThreshold is the consecutive-failure count that opens the
	// breaker.
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns defaults for an HTTP dependency
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// CircuitBreaker wraps gobreaker with logging and state metrics
type CircuitBreaker struct {
	cb      *gobreaker.CircuitBreaker
	name    string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewCircuitBreaker creates a CircuitBreaker. logger and metrics may be nil.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *logging.Logger, m *metrics.Metrics) *CircuitBreaker {
	breaker := &CircuitBreaker{
		name:    config.Name,
		logger:  logger,
		metrics: m,
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
			if m != nil {
				m.SetCircuitBreakerState(name, stateValue(to))
				if to == gobreaker.StateOpen {
					m.RecordCircuitBreakerTrip(name)
				}
			}
		},
	}

	breaker.cb = gobreaker.NewCircuitBreaker(settings)
	return breaker
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Execute runs fn through the breaker
func (b *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("circuit breaker %s open: %w", b.name, err)
		}
		return nil, err
	}
	return result, nil
}

// State returns the current breaker state
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}
