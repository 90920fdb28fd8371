package errors

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// Closed means requests flow normally.
	Closed CircuitState = iota
	// Open means requests are refused until the cooldown passes.
	Open
	// HalfOpen means one trial request is allowed.
	HalfOpen
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"` // consecutive failures before opening, 0 disables
	Cooldown         time.Duration `yaml:"cooldown" json:"cooldown"`                   // time open before a trial request
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 10,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker refuses work after a run of consecutive failures and lets
// a single trial through once the cooldown has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	config   BreakerConfig
	state    CircuitState
	failures int
	openedAt time.Time
	trial    bool
	now      func() time.Time

	onStateChange func(from, to CircuitState)
}

// NewCircuitBreaker creates a breaker. A nil breaker allows everything.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		return nil
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &CircuitBreaker{
		config: config,
		state:  Closed,
		now:    time.Now,
	}
}

// SetClock replaces the clock.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	cb.now = now
	cb.mu.Unlock()
}

// OnStateChange sets a callback for state changes. It runs with the
// breaker locked.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	cb.onStateChange = fn
	cb.mu.Unlock()
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return Closed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if cb.now().Sub(cb.openedAt) < cb.config.Cooldown {
			return false
		}
		cb.transitionTo(HalfOpen)
		cb.trial = true
		return true
	case HalfOpen:
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trial = false
	cb.transitionTo(Closed)
}

// RecordFailure counts a failure. A failed trial reopens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	switch cb.state {
	case Closed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.open()
		}
	case HalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.transitionTo(Open)
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	if newState == Closed {
		cb.failures = 0
	}
	if cb.onStateChange != nil {
		cb.onStateChange(oldState, newState)
	}
}

// CircuitOpenError is returned when the breaker refuses a request.
type CircuitOpenError struct {
	State CircuitState
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return "circuit breaker is " + e.State.String()
}
