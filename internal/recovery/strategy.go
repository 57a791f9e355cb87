package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Strategy names a recovery response to a classified failure.
type Strategy string

const (
	StrategyRetry            Strategy = "RETRY"
	StrategyRetryWithBackoff Strategy = "RETRY_WITH_BACKOFF"
	StrategyFallbackModel    Strategy = "FALLBACK_MODEL"
	StrategyFallbackMock     Strategy = "FALLBACK_MOCK"
	StrategyCircuitBreak     Strategy = "CIRCUIT_BREAK"
	StrategyEscalate         Strategy = "ESCALATE"
)

// strategyTable maps each error kind to its ordered strategy list. AUTH is
// never silently retried: it escalates for operator attention.
var strategyTable = map[ErrorKind][]Strategy{
	KindConnection: {StrategyRetry, StrategyRetryWithBackoff, StrategyFallbackModel},
	KindTimeout:    {StrategyRetryWithBackoff, StrategyFallbackModel},
	KindAuth:       {StrategyEscalate},
	KindRateLimit:  {StrategyRetryWithBackoff, StrategyFallbackModel, StrategyCircuitBreak},
	KindValidation: {StrategyFallbackMock, StrategyEscalate},
	KindBackend:    {StrategyRetryWithBackoff, StrategyFallbackModel, StrategyCircuitBreak},
	KindUnknown:    {StrategyRetry, StrategyEscalate},
}

// StrategiesFor returns the ordered strategy list for an error kind.
func StrategiesFor(kind ErrorKind) []Strategy {
	strategies, ok := strategyTable[kind]
	if !ok {
		return strategyTable[KindUnknown]
	}
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	return out
}

// RecoveryResult records the classification and strategy applied to one
// failure, plus the substitute result when FALLBACK_MOCK produced one.
type RecoveryResult struct {
	Context    *ErrorContext          `json:"context"`
	Strategy   Strategy               `json:"strategy"`
	Recovered  bool                   `json:"recovered"`
	Substitute map[string]interface{} `json:"substitute,omitempty"`
}

// ErrCircuitOpen is returned when the breaker gate rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker halts calls after repeated failures until the cooldown
// elapses or Reset is called.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	threshold int
	openUntil time.Time
	cooldown  time.Duration
}

// NewCircuitBreaker creates a breaker opening after threshold consecutive
// failures, for the given cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.openUntil.IsZero() {
		return true
	}
	if time.Now().After(cb.openUntil) {
		// Cooldown elapsed: half-open, allow a probe.
		cb.openUntil = time.Time{}
		cb.failures = cb.threshold - 1
		return true
	}
	return false
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.openUntil = time.Time{}
}

// RecordFailure counts a failure, opening the breaker at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.openUntil = time.Now().Add(cb.cooldown)
	}
}

// Reset fully closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.openUntil = time.Time{}
}

// Reporter receives classified failures for observability. Reporting is
// best-effort: errors from the reporter are swallowed, never propagated.
type Reporter interface {
	Report(ctx *ErrorContext)
}

// Operation is the guarded unit of work.
type Operation func(ctx context.Context) (map[string]interface{}, error)

// Manager classifies failures and selects recovery strategies. Its job is
// classification and strategy selection; delay and retry-count bookkeeping
// live in the engine's outer loop.
type Manager struct {
	breaker           *CircuitBreaker // optional gate, may be nil
	reporter          Reporter        // optional, may be nil
	allowMockFallback bool
}

// NewManager creates a recovery manager. breaker and reporter may be nil.
// allowMockFallback enables the FALLBACK_MOCK strategy; when disabled,
// validation errors re-raise like everything else.
func NewManager(breaker *CircuitBreaker, reporter Reporter, allowMockFallback bool) *Manager {
	return &Manager{
		breaker:           breaker,
		reporter:          reporter,
		allowMockFallback: allowMockFallback,
	}
}

// ExecuteWithRecovery gates op through the circuit breaker, invokes it, and
// on failure classifies, reports, and applies the first strategy for the
// error's kind. Only FALLBACK_MOCK can return a substitute result directly,
// and only when explicitly enabled; every other strategy re-raises so the
// caller's retry loop decides what happens next.
func (m *Manager) ExecuteWithRecovery(ctx context.Context, taskID, modelID string, attempt int, op Operation) (map[string]interface{}, *RecoveryResult, error) {
	if m.breaker != nil && !m.breaker.Allow() {
		return nil, nil, ErrCircuitOpen
	}

	result, err := op(ctx)
	if err == nil {
		if m.breaker != nil {
			m.breaker.RecordSuccess()
		}
		return result, nil, nil
	}

	if m.breaker != nil {
		m.breaker.RecordFailure()
	}

	errCtx := NewErrorContext(err, taskID, modelID, attempt)
	m.report(errCtx)

	strategies := StrategiesFor(errCtx.Kind)
	applied := strategies[0]

	if applied == StrategyFallbackMock && m.allowMockFallback {
		return nil, &RecoveryResult{
			Context:   errCtx,
			Strategy:  applied,
			Recovered: true,
			Substitute: map[string]interface{}{
				"mock":    true,
				"content": fmt.Sprintf("mock substitute for task %s after %s", taskID, errCtx.Kind),
			},
		}, nil
	}

	return nil, &RecoveryResult{Context: errCtx, Strategy: applied}, err
}

// report delivers the classified failure to the reporter, swallowing any
// panic so a misbehaving reporter can never break execution.
func (m *Manager) report(errCtx *ErrorContext) {
	if m.reporter == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	m.reporter.Report(errCtx)
}
