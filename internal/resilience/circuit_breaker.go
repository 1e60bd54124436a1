// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitBreakerState is the position of a circuit breaker.
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // calls pass through
	StateOpen                                // calls fail fast
	StateHalfOpen                            // one trial call is allowed
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	Timeout          time.Duration // how long an open breaker waits before a trial call
	IsFailure        func(error) bool
	OnStateChange    func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns defaults for a local dependency such as
// the OCR engine: every failure except cancellation counts, and an open
// breaker stays open for the rest of a typical run.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Timeout:          5 * time.Minute,
		IsFailure: func(err error) bool {
			if err == nil {
				return false
			}
			return ClassifyError(err).Type != ErrorTypeCanceled
		},
	}
}

// CircuitBreaker stops calling a dependency after repeated failures. Once
// Timeout has passed a single trial call decides whether it closes again.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
	trialActive bool
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{config: config}
}

// Execute runs fn unless the breaker is open. A rejected call returns a
// *CircuitBreakerError without running fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		since := time.Since(cb.lastFailure)
		if since < cb.config.Timeout {
			return &CircuitBreakerError{
				Name:  cb.config.Name,
				State: cb.state,
				Message: fmt.Sprintf("circuit breaker '%s' is OPEN (failed %d times, last failure %v ago)",
					cb.config.Name, cb.failures, since.Round(time.Second)),
			}
		}
		cb.setState(StateHalfOpen)
		cb.trialActive = true
	case StateHalfOpen:
		if cb.trialActive {
			return &CircuitBreakerError{
				Name:    cb.config.Name,
				State:   cb.state,
				Message: fmt.Sprintf("circuit breaker '%s' is HALF_OPEN and a trial call is running", cb.config.Name),
			}
		}
		cb.trialActive = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialActive = false
	if !cb.config.IsFailure(err) {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}

	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to CircuitBreakerState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// CircuitBreakerError is returned when the breaker rejects a call
type CircuitBreakerError struct {
	Name    string
	State   CircuitBreakerState
	Message string
}

func (e *CircuitBreakerError) Error() string {
	return e.Message
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
