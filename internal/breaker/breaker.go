// Package breaker implements the CircuitBreaker entity (spec §3) shared by
// the Market Data Coordinator (C1, spec §4.1) and the Risk Supervisor
// (C9, spec §4.9): per-subject open/closed state with a sliding-window
// failure rate, a simple failure-count threshold, and half-open probing.
package breaker

import (
	"sync"
	"time"

	"github.com/flowshift/arbengine/internal/arberr"
	"github.com/flowshift/arbengine/pkg/logger"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config configures a single CircuitBreaker. Defaults mirror spec §6's
// circuitBreakerThreshold/circuitBreakerCooldownMs defaults.
type Config struct {
	Name                string
	MaxFailures         int
	ResetTimeout        time.Duration
	SuccessThreshold    int
	FailureRateThreshold float64
	MinRequestThreshold int
	SlidingWindowSize   int
	HalfOpenMaxCalls    int
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		MaxFailures:          5,
		ResetTimeout:         60 * time.Second,
		SuccessThreshold:     3,
		FailureRateThreshold: 0.5,
		MinRequestThreshold:  10,
		SlidingWindowSize:    100,
		HalfOpenMaxCalls:     3,
	}
}

// Metrics tracks counters for observability (feeds C10).
type Metrics struct {
	TotalRequests   int64
	SuccessfulCalls int64
	FailedCalls     int64
	RejectedCalls   int64
	StateChanges    int64
	CurrentState    State
	LastFailureTime time.Time
	LastSuccessTime time.Time
}

// Breaker is a single subject's circuit breaker (spec entity CircuitBreaker
// §3: open/closed, failure count, last-failure timestamp, next-retry
// timestamp).
type Breaker struct {
	cfg    Config
	log    *logger.Logger
	mu     sync.Mutex
	state  State
	failures  int
	successes int
	halfOpenRequests int
	nextAttempt time.Time
	window      []bool
	windowIdx   int
	metrics     Metrics
}

func New(cfg Config, log *logger.Logger) *Breaker {
	return &Breaker{
		cfg:     cfg,
		log:     log,
		state:   StateClosed,
		window:  make([]bool, cfg.SlidingWindowSize),
		metrics: Metrics{CurrentState: StateClosed},
	}
}

// Allow reports whether a call to the subject may proceed right now.
// Spec §5: "any call observing an open breaker for a subject will not
// reach that subject until the breaker's next-retry time has elapsed,
// even across concurrent callers" — guarded here under a single mutex so
// the check-and-admit is atomic with half-open slot accounting.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.After(b.nextAttempt) {
			b.setState(StateHalfOpen)
			b.halfOpenRequests = 0
			b.successes = 0
			return b.admitHalfOpenLocked()
		}
		return false
	case StateHalfOpen:
		return b.admitHalfOpenLocked()
	default:
		return false
	}
}

func (b *Breaker) admitHalfOpenLocked() bool {
	if b.halfOpenRequests < b.cfg.HalfOpenMaxCalls {
		b.halfOpenRequests++
		return true
	}
	return false
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.SuccessfulCalls++
	b.metrics.LastSuccessTime = now
	b.pushWindowLocked(true)

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(StateClosed)
			b.resetLocked()
		}
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.TotalRequests++
	b.metrics.FailedCalls++
	b.metrics.LastFailureTime = now
	b.pushWindowLocked(false)

	switch b.state {
	case StateClosed:
		b.failures++
		if b.shouldOpenLocked() {
			b.openLocked(now)
		}
	case StateHalfOpen:
		b.openLocked(now)
	}
}

// RecordRejection records a call that never reached the subject.
func (b *Breaker) RecordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.RejectedCalls++
}

func (b *Breaker) openLocked(now time.Time) {
	b.setState(StateOpen)
	b.nextAttempt = now.Add(b.cfg.ResetTimeout)
	b.resetLocked()
}

func (b *Breaker) shouldOpenLocked() bool {
	if b.failures >= b.cfg.MaxFailures {
		return true
	}
	if b.metrics.TotalRequests >= int64(b.cfg.MinRequestThreshold) {
		return b.failureRateLocked() >= b.cfg.FailureRateThreshold
	}
	return false
}

func (b *Breaker) failureRateLocked() float64 {
	// Slots are filled from index 0, so until the window wraps only the
	// first TotalRequests slots hold recorded outcomes.
	filled := len(b.window)
	if b.metrics.TotalRequests < int64(filled) {
		filled = int(b.metrics.TotalRequests)
	}
	failures, total := 0, 0
	for _, ok := range b.window[:filled] {
		total++
		if !ok {
			failures++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(failures) / float64(total)
}

func (b *Breaker) pushWindowLocked(ok bool) {
	b.window[b.windowIdx] = ok
	b.windowIdx = (b.windowIdx + 1) % len(b.window)
}

func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	old := b.state
	b.state = s
	b.metrics.CurrentState = s
	b.metrics.StateChanges++
	if b.log != nil {
		b.log.Info("breaker state changed",
			logger.String("name", b.cfg.Name),
			logger.String("from", string(old)),
			logger.String("to", string(s)))
	}
}

func (b *Breaker) resetLocked() {
	b.failures = 0
	b.successes = 0
	b.halfOpenRequests = 0
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

func (b *Breaker) IsOpen() bool { return b.State() == StateOpen }

// Guard wraps fn with the breaker: rejects without calling fn if the
// breaker denies, otherwise calls fn and records the outcome.
func (b *Breaker) Guard(now time.Time, fn func() error) error {
	if !b.Allow(now) {
		b.RecordRejection()
		return arberr.New(arberr.BreakerOpen, b.cfg.Name, nil)
	}
	err := fn()
	if err != nil {
		b.RecordFailure(now)
		return err
	}
	b.RecordSuccess(now)
	return nil
}

// Manager owns a registry of named breakers. Per spec §9 ("No hidden
// process-wide state is permitted"), this is never reached through a
// package-level singleton: callers construct one Manager in their wiring
// code and pass it by reference.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	log      *logger.Logger
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), log: log}
}

// GetOrCreate returns the named breaker, creating it with cfg (or
// DefaultConfig(name) if cfg is nil) on first use.
func (m *Manager) GetOrCreate(name string, cfg *Config) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	var c Config
	if cfg != nil {
		c = *cfg
	} else {
		c = DefaultConfig(name)
	}
	b := New(c, m.log)
	m.breakers[name] = b
	return b
}

func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[name]
	return b, ok
}

func (m *Manager) All() map[string]*Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Breaker, len(m.breakers))
	for k, v := range m.breakers {
		out[k] = v
	}
	return out
}
