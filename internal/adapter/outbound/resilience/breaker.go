package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/policyengine"
)

// DefaultFailureThreshold and DefaultRecoveryTimeout are the §4.4 defaults.
const (
	DefaultFailureThreshold uint32 = 5
	DefaultRecoveryTimeout         = 30 * time.Second
)

// CircuitBreaker guards outbound inference calls with closed → open →
// half-open → closed transitions, delegating the state machine to
// sony/gobreaker and translating its outcomes into the engine's error
// taxonomy.
type CircuitBreaker struct {
	cb              *gobreaker.CircuitBreaker
	logger          *slog.Logger
	threshold       uint32
	recoveryTimeout time.Duration

	mu          sync.Mutex
	lastFailure time.Time
}

// NewCircuitBreaker constructs a breaker that opens after failureThreshold
// consecutive failures and attempts recovery after recoveryTimeout.
func NewCircuitBreaker(name string, failureThreshold uint32, recoveryTimeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	if failureThreshold == 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one probe call admitted while half-open
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state transition", "breaker", name, "from", from, "to", to)
		},
	}

	return &CircuitBreaker{
		cb:              gobreaker.NewCircuitBreaker(settings),
		logger:          logger,
		threshold:       failureThreshold,
		recoveryTimeout: recoveryTimeout,
	}
}

// Execute runs fn under the breaker. If the breaker is open, fn is never
// invoked and the call fails fast with CircuitOpen.
func (b *CircuitBreaker) Execute(fn func() (decision.InferenceDecision, error)) (decision.InferenceDecision, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		d, ferr := fn()
		if ferr != nil {
			b.mu.Lock()
			b.lastFailure = time.Now()
			b.mu.Unlock()
		}
		return d, ferr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return decision.InferenceDecision{}, decision.Wrap(decision.KindCircuitOpen, err)
		}
		return decision.InferenceDecision{}, err
	}
	return result.(decision.InferenceDecision), nil
}

// Snapshot is the breaker's health-check view: {state, failure_count,
// last_failure_time, threshold, recovery_timeout}.
type Snapshot struct {
	State           string    `json:"state"`
	FailureCount    uint32    `json:"failure_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	Threshold       uint32    `json:"threshold"`
	RecoveryTimeout string    `json:"recovery_timeout"`
}

// State returns a health-check snapshot of the breaker's current counters.
func (b *CircuitBreaker) State() Snapshot {
	counts := b.cb.Counts()
	b.mu.Lock()
	lastFailure := b.lastFailure
	b.mu.Unlock()
	return Snapshot{
		State:           b.cb.State().String(),
		FailureCount:    counts.ConsecutiveFailures,
		LastFailureTime: lastFailure,
		Threshold:       b.threshold,
		RecoveryTimeout: b.recoveryTimeout.String(),
	}
}

var _ policyengine.CircuitBreaker = (*CircuitBreaker)(nil)
