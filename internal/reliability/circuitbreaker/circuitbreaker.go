package circuitbreaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOpen is returned by Execute while the circuit rejects calls
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast once a dependency has failed failureThreshold
// times in a row. After timeout it lets trial calls through, and
// successThreshold consecutive successes close it again.
type CircuitBreaker struct {
	state            atomic.Int32
	failureCount     atomic.Int32
	successCount     atomic.Int32
	openedAt         atomic.Int64 // unix nanos
	failureThreshold int32
	successThreshold int32
	timeout          time.Duration
	now              func() time.Time

	mu            sync.RWMutex
	onStateChange func(from, to State)
}

// New creates a closed circuit breaker
func New(failureThreshold, successThreshold int32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		timeout:          timeout,
		now:              time.Now,
	}
}

// WithClock replaces the time source
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// OnStateChange registers a callback for state transitions
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn unless the circuit is open, recording the outcome.
// Callers decide which errors count: pass a nil-returning fn for
// outcomes that should not trip the breaker.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.AllowRequest() {
		return ErrOpen
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// RecordSuccess counts towards closing a half-open circuit
func (cb *CircuitBreaker) RecordSuccess() {
	switch cb.State() {
	case StateHalfOpen:
		if cb.successCount.Add(1) >= cb.successThreshold {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failureCount.Store(0)
	}
}

// RecordFailure may trip the circuit open
func (cb *CircuitBreaker) RecordFailure() {
	switch cb.State() {
	case StateClosed:
		if cb.failureCount.Add(1) >= cb.failureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

// AllowRequest reports whether a call may proceed, moving an open circuit
// to half-open once the timeout has passed.
func (cb *CircuitBreaker) AllowRequest() bool {
	if cb.State() != StateOpen {
		return true
	}
	openedAt := time.Unix(0, cb.openedAt.Load())
	if cb.now().Sub(openedAt) >= cb.timeout {
		cb.transition(StateHalfOpen)
		return true
	}
	return false
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt.Store(cb.now().UnixNano())
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	from := State(cb.state.Swap(int32(to)))
	cb.failureCount.Store(0)
	cb.successCount.Store(0)
	if from == to {
		return
	}
	cb.mu.RLock()
	fn := cb.onStateChange
	cb.mu.RUnlock()
	if fn != nil {
		fn(from, to)
	}
}
