// Package circuit provides a small circuit breaker for calls to external providers.
package circuit

import (
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is healthy and requests flow normally.
	StateClosed State = iota
	// StateOpen means the circuit has tripped and callers should fail fast.
	StateOpen
	// StateHalfOpen means the cooldown elapsed and probe requests are let through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// StateChange represents a circuit breaker state transition.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker counts consecutive failures of an external dependency.
// After FailureThreshold consecutive failures the circuit opens. Once the
// cooldown has elapsed the circuit lets probes through (half-open) and closes
// again after SuccessThreshold consecutive successes; any probe failure
// reopens it.
type Breaker struct {
	mu               sync.Mutex
	state            State
	name             string
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	openedAt         time.Time
	clock            func() time.Time
}

// Option configures a Breaker instance.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures to open the circuit.
// Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the number of consecutive probe successes to close the circuit.
// Default is 2.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.successThreshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open before probes are allowed.
// Default is 30s.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New creates a circuit breaker with the given name and options.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		clock:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the circuit breaker's name for logging/metrics.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may be attempted now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state != StateOpen
}

// IsOpen returns true if the circuit is open and still cooling down.
func (b *Breaker) IsOpen() bool {
	return !b.Allow()
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// advance moves an open circuit to half-open once the cooldown has elapsed.
// Caller must hold mu.
func (b *Breaker) advance() {
	if b.state == StateOpen && b.clock().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		b.successCount = 0
	}
}

// RecordFailure records a failed operation and reports whether the circuit just opened.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	b.failureCount++
	b.successCount = 0

	switch b.state {
	case StateOpen:
		return StateChange{}
	case StateHalfOpen:
		b.trip()
		return StateChange{Opened: true}
	}

	if b.failureCount >= b.failureThreshold {
		b.trip()
		return StateChange{Opened: true}
	}
	return StateChange{}
}

// RecordSuccess records a successful operation and reports whether the circuit just closed.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			return StateChange{Closed: true}
		}
		return StateChange{}
	}

	b.failureCount = 0
	return StateChange{}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.clock()
	b.successCount = 0
}

// Reset resets the circuit breaker to closed state with zero counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
}
