package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker protects an outbound dependency: after maxFailures
// consecutive failures the circuit opens and calls fail fast until
// resetTimeout elapses, then a single probe decides recovery.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	lastFailTime time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Call executes fn under breaker protection.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) >= cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.state = StateClosed
		cb.failureCount = 0
		return
	}

	cb.lastFailTime = time.Now()
	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
	case StateHalfOpen:
		cb.state = StateOpen
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's dependency name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
