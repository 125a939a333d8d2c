package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

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
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpen = errors.New("circuit breaker is open")

// Breaker is a generic, thread-safe circuit breaker.
type Breaker[T any] struct {
	maxFailures      int64
	resetTimeout     time.Duration
	halfOpenRequests int64
	onStateChange    func(from, to State)
	now              func() time.Time

	state           atomic.Int32
	failures        atomic.Int64
	lastFailureTime atomic.Int64 // Unix nano
	successCount    atomic.Int64
}

type Option[T any] func(*Breaker[T])

// WithStateChange registers a callback invoked after every state transition.
func WithStateChange[T any](fn func(from, to State)) Option[T] {
	return func(cb *Breaker[T]) { cb.onStateChange = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(cb *Breaker[T]) { cb.now = now }
}

// New creates a new generic Circuit Breaker.
func New[T any](maxFailures int, resetTimeout time.Duration, opts ...Option[T]) *Breaker[T] {
	cb := &Breaker[T]{
		maxFailures:      int64(maxFailures),
		resetTimeout:     resetTimeout,
		halfOpenRequests: 1,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

func (cb *Breaker[T]) State() State {
	return State(cb.state.Load())
}

// Execute wraps a function call with the circuit breaker logic.
func (cb *Breaker[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	if !cb.canExecute() {
		var zero T
		return zero, ErrOpen
	}

	result, err := fn(ctx)
	cb.recordResult(err)

	return result, err
}

func (cb *Breaker[T]) transition(from, to State) bool {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
	return true
}

func (cb *Breaker[T]) canExecute() bool {
	switch State(cb.state.Load()) {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().UnixNano() > cb.lastFailureTime.Load()+cb.resetTimeout.Nanoseconds() {
			if cb.transition(StateOpen, StateHalfOpen) {
				cb.successCount.Store(0)
			}
			return true
		}
		return false
	case StateHalfOpen:
		return cb.successCount.Load() < cb.halfOpenRequests
	default:
		return false
	}
}

func (cb *Breaker[T]) recordResult(err error) {
	currentState := State(cb.state.Load())

	if err != nil {
		newFailures := cb.failures.Add(1)
		cb.lastFailureTime.Store(cb.now().UnixNano())

		if currentState == StateHalfOpen || (currentState == StateClosed && newFailures >= cb.maxFailures) {
			cb.transition(currentState, StateOpen)
		}
		return
	}

	if currentState == StateHalfOpen {
		if cb.successCount.Add(1) >= cb.halfOpenRequests && cb.transition(StateHalfOpen, StateClosed) {
			cb.failures.Store(0)
		}
		return
	}
	cb.failures.Store(0)
}
