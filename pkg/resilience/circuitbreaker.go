package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"character-nexus/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// State represents the current state of a circuit breaker
type State string

const (
	// StateClosed lets every call through.
	StateClosed State = "closed"
	// StateOpen short-circuits calls until the retry timeout has passed.
	StateOpen State = "open"
	// StateHalfOpen lets a limited number of trial calls through.
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// Timeout bounds each guarded call. Zero means no extra bound.
	Timeout time.Duration
	// RetryTimeout is how long the breaker stays open before probing.
	RetryTimeout time.Duration
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		RetryTimeout:     60 * time.Second,
	}
}

// Snapshot is a point-in-time view of breaker counters.
type Snapshot struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	TotalRequests    uint64    `json:"total_requests"`
	TotalFailures    uint64    `json:"total_failures"`
	TotalSuccesses   uint64    `json:"total_successes"`
	Rejected         uint64    `json:"rejected"`
	OpenCircuitCount uint64    `json:"open_circuit_count"`
	LastFailureTime  time.Time `json:"last_failure_time"`
}

// CircuitBreaker stops calling a failing dependency for a while.
type CircuitBreaker struct {
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
	mutex sync.Mutex

	state           State
	failureCount    uint
	successCount    uint
	nextAttemptTime time.Time
	stats           Snapshot
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log.WithComponent("circuit_breaker"),
		now:   time.Now,
		state: StateClosed,
		stats: Snapshot{Name: cfg.Name},
	}
}

// Execute runs fn through the breaker with the configured per-call timeout.
// Context cancellation by the caller is not counted as a dependency failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		cb.log.Warn("Circuit breaker preventing request", "name", cb.cfg.Name)
		return ErrCircuitOpen
	}

	callCtx := ctx
	if cb.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.cfg.Timeout)
		defer cancel()
	}

	start := cb.now()
	err := fn(callCtx)

	switch {
	case err == nil:
		cb.recordSuccess()
		cb.log.Debug("Circuit breaker recorded success", "name", cb.cfg.Name, "duration", time.Since(start).String())
	case ctx.Err() != nil:
		cb.release()
	default:
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.cfg.Name,
			"error", err.Error(),
			"duration", time.Since(start).String(),
		)
	}
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateOpen:
		if !cb.now().After(cb.nextAttemptTime) {
			cb.stats.Rejected++
			return false
		}
		cb.toHalfOpen()
	case StateHalfOpen:
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.stats.Rejected++
			return false
		}
	}

	cb.stats.TotalRequests++
	return true
}

// release forgets a call whose caller gave up.
func (cb *CircuitBreaker) release() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.stats.TotalRequests--
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.stats.TotalSuccesses++

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.stats.TotalFailures++
	cb.stats.LastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.stats.OpenCircuitCount++
	cb.nextAttemptTime = cb.now().Add(cb.cfg.RetryTimeout)

	cb.log.Info("Circuit breaker opened",
		"name", cb.cfg.Name,
		"failures", cb.failureCount,
		"next_attempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	cb.log.Info("Circuit breaker half-open", "name", cb.cfg.Name)
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.log.Info("Circuit breaker closed", "name", cb.cfg.Name)
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Snapshot returns the current counters.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	s := cb.stats
	s.State = cb.state
	return s
}
