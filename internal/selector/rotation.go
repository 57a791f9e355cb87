package selector

import (
	"sync"
	"time"
)

// RotationLogger receives rotation and breaker events. Can be nil.
type RotationLogger interface {
	LogRotation(fromID, toID string, consecutiveFailures int)
	Warnf(format string, args ...interface{})
}

// modelStats holds per-model rolling request metrics, read only through
// the manager's accessors.
type modelStats struct {
	Requests     int
	Successes    int
	TotalLatency time.Duration
}

// RotationManager maintains an ordered failover chain across backend models
// with a two-tier response to repeated failure: rotate to the next model
// quickly, then open the circuit breaker and halt attempts against the whole
// chain once rotation alone has not helped.
type RotationManager struct {
	mu sync.Mutex

	chain   []string // ordered model IDs, primary first
	current int

	consecutiveFailures int
	rotateThreshold     int // failures before advancing the chain
	breakerThreshold    int // failures before opening the breaker
	breakerOpen         bool
	breakerOpenedAt     time.Time
	breakerCooldown     time.Duration

	stats  map[string]*modelStats
	logger RotationLogger

	now func() time.Time // injectable for tests
}

// NewRotationManager builds a manager over the given chain. rotateThreshold
// must be lower than breakerThreshold; zero values pick defaults (3 and 8).
func NewRotationManager(chain []string, rotateThreshold, breakerThreshold int, logger RotationLogger) *RotationManager {
	if rotateThreshold <= 0 {
		rotateThreshold = 3
	}
	if breakerThreshold < rotateThreshold {
		breakerThreshold = rotateThreshold + 5
	}
	return &RotationManager{
		chain:            chain,
		rotateThreshold:  rotateThreshold,
		breakerThreshold: breakerThreshold,
		breakerCooldown:  30 * time.Second,
		stats:            make(map[string]*modelStats),
		logger:           logger,
		now:              time.Now,
	}
}

// Current returns the model ID at the current chain position, or "" for an
// empty chain.
func (r *RotationManager) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked()
}

func (r *RotationManager) currentLocked() string {
	if len(r.chain) == 0 {
		return ""
	}
	return r.chain[r.current]
}

// Next advances to the next model in the chain and logs the rotation. The
// index saturates: once at the last entry, repeated calls keep returning it.
func (r *RotationManager) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chain) == 0 {
		return ""
	}
	if r.current >= len(r.chain)-1 {
		return r.chain[r.current]
	}

	from := r.chain[r.current]
	r.current++
	to := r.chain[r.current]
	if r.logger != nil {
		r.logger.LogRotation(from, to, r.consecutiveFailures)
	}
	return to
}

// OnSuccess records a successful call: resets the consecutive-failure
// counter and closes the breaker if open.
func (r *RotationManager) OnSuccess(modelID string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveFailures = 0
	if r.breakerOpen {
		r.breakerOpen = false
		if r.logger != nil {
			r.logger.Warnf("circuit breaker closed after success on %s", modelID)
		}
	}

	st := r.statsFor(modelID)
	st.Requests++
	st.Successes++
	st.TotalLatency += latency
}

// OnFailure records a failed call against the current model.
func (r *RotationManager) OnFailure(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordFailureLocked(modelID)
}

// OnRateLimit records a rate-limited call. Rate limits count toward rotation
// like any failure; the backoff delay is the queue's concern.
func (r *RotationManager) OnRateLimit(modelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordFailureLocked(modelID)
}

func (r *RotationManager) recordFailureLocked(modelID string) {
	r.consecutiveFailures++
	st := r.statsFor(modelID)
	st.Requests++

	if !r.breakerOpen && r.consecutiveFailures >= r.breakerThreshold {
		r.breakerOpen = true
		r.breakerOpenedAt = r.now()
		if r.logger != nil {
			r.logger.Warnf("circuit breaker open after %d consecutive failures", r.consecutiveFailures)
		}
	}
}

// ShouldRotate reports whether the engine should fail over: true once
// consecutive failures reach the rotation threshold or the breaker is open.
func (r *RotationManager) ShouldRotate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consecutiveFailures >= r.rotateThreshold || r.breakerOpenLocked()
}

// BreakerOpen reports the circuit breaker state. Once the cooldown elapses
// the breaker goes half-open: it reports closed so one probe attempt runs,
// and a single failure reopens it.
func (r *RotationManager) BreakerOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakerOpenLocked()
}

func (r *RotationManager) breakerOpenLocked() bool {
	if !r.breakerOpen {
		return false
	}
	if r.now().After(r.breakerOpenedAt.Add(r.breakerCooldown)) {
		r.breakerOpen = false
		r.consecutiveFailures = r.breakerThreshold - 1
		return false
	}
	return true
}

// Reset returns the chain to the primary model, clears the failure counter
// and closes the breaker.
func (r *RotationManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = 0
	r.consecutiveFailures = 0
	r.breakerOpen = false
}

// ModelStats returns rolling request metrics for one model: request count,
// average latency and success rate.
func (r *RotationManager) ModelStats(modelID string) (requests int, avgLatency time.Duration, successRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stats[modelID]
	if !ok || st.Requests == 0 {
		return 0, 0, 0
	}
	return st.Requests, st.TotalLatency / time.Duration(st.Requests), float64(st.Successes) / float64(st.Requests)
}

func (r *RotationManager) statsFor(modelID string) *modelStats {
	st, ok := r.stats[modelID]
	if !ok {
		st = &modelStats{}
		r.stats[modelID] = st
	}
	return st
}
