// Package sentinel implements the per-gateway circuit breaker: a
// CLOSED/OPEN/HALF_OPEN state machine driven by a rolling window of
// recent outcomes. OPEN gateways stay OPEN until a lazy timeout
// promotes them to HALF_OPEN for exactly one probe. The sentinel only
// reports status; it does not refuse calls to an OPEN gateway.
package sentinel

import (
	"sync"
	"time"
)

// Status is a circuit breaker's externally visible state.
type Status int

const (
	Closed Status = iota
	Open
	HalfOpen
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

// BreakerState is a read-only snapshot of one gateway's breaker, used
// for telemetry.
type BreakerState struct {
	Status          Status
	LastFailureTime time.Time
	Window          []bool
}

type breaker struct {
	mu              sync.Mutex
	status          Status
	lastFailureTime time.Time
	window          []bool
}

// Sentinel owns breaker state for every gateway in the configured set.
// status/record/snapshot are atomic per-gateway (each breaker holds its
// own mutex); a Sentinel-level RWMutex guards only the map of breakers.
type Sentinel struct {
	failureThreshold float64       // F ∈ (0,1]
	recoveryTimeout  time.Duration // T
	windowSize       int           // W

	mu       sync.RWMutex
	breakers map[string]*breaker

	now func() time.Time // injectable clock, for tests
}

// New builds a Sentinel over the given gateway labels with the given
// parameters. Defaults: F=0.5, T=30s, W=10.
func New(gateways []string, failureThreshold float64, recoveryTimeout time.Duration, windowSize int) *Sentinel {
	if failureThreshold <= 0 {
		failureThreshold = 0.5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	if windowSize <= 0 {
		windowSize = 10
	}
	breakers := make(map[string]*breaker, len(gateways))
	for _, g := range gateways {
		breakers[g] = &breaker{status: Closed}
	}
	s := &Sentinel{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		windowSize:       windowSize,
		breakers:         breakers,
		now:              time.Now,
	}
	for g := range breakers {
		s.publishMetric(g, Closed)
	}
	return s
}

// WithClock overrides the Sentinel's time source; used by tests that
// need to simulate the passage of the recovery timeout.
func (s *Sentinel) WithClock(now func() time.Time) *Sentinel {
	s.now = now
	return s
}

func (s *Sentinel) bucket(gateway string) *breaker {
	s.mu.RLock()
	b, ok := s.breakers[gateway]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[gateway]; ok {
		return b
	}
	b = &breaker{status: Closed}
	s.breakers[gateway] = b
	return b
}

// Status returns gateway's current status. If the breaker is OPEN and
// the recovery timeout has elapsed, it is lazily promoted to
// HALF_OPEN — the only place that transition happens; there is no
// background timer.
func (s *Sentinel) Status(gateway string) Status {
	b := s.bucket(gateway)
	b.mu.Lock()
	defer b.mu.Unlock()
	status := s.statusLocked(b)
	s.publishMetric(gateway, status)
	return status
}

func (s *Sentinel) statusLocked(b *breaker) Status {
	if b.status == Open && s.now().Sub(b.lastFailureTime) > s.recoveryTimeout {
		b.status = HalfOpen
	}
	return b.status
}

// Record reports one outcome for gateway.
//
// In HALF_OPEN, the lone probe decides everything: success closes the
// breaker and resets its window to [true]; failure reopens it with a
// fresh timer.
//
// In CLOSED, the outcome is appended to the rolling window (oldest
// evicted past W); once the window is full, a failure ratio strictly
// greater than F trips the breaker OPEN.
func (s *Sentinel) Record(gateway string, success bool) {
	b := s.bucket(gateway)
	b.mu.Lock()
	defer b.mu.Unlock()

	status := s.statusLocked(b)

	switch status {
	case HalfOpen:
		if success {
			b.status = Closed
			b.window = []bool{true}
		} else {
			b.status = Open
			b.lastFailureTime = s.now()
		}
	default: // Closed, or Open when a caller executes on an OPEN gateway anyway (the orchestrator does when every gateway is OPEN): the outcome goes into the window as in CLOSED
		b.window = append(b.window, success)
		if len(b.window) > s.windowSize {
			b.window = b.window[len(b.window)-s.windowSize:]
		}
		if len(b.window) == s.windowSize {
			failures := 0
			for _, o := range b.window {
				if !o {
					failures++
				}
			}
			if float64(failures)/float64(s.windowSize) > s.failureThreshold {
				b.status = Open
				b.lastFailureTime = s.now()
			}
		}
	}

	s.publishMetric(gateway, b.status)
}

// Snapshot refreshes every gateway's lazy status and returns a deep
// copy suitable for telemetry.
func (s *Sentinel) Snapshot() map[string]BreakerState {
	s.mu.RLock()
	gateways := make([]string, 0, len(s.breakers))
	for g := range s.breakers {
		gateways = append(gateways, g)
	}
	s.mu.RUnlock()

	out := make(map[string]BreakerState, len(gateways))
	for _, g := range gateways {
		b := s.bucket(g)
		b.mu.Lock()
		status := s.statusLocked(b)
		s.publishMetric(g, status)
		window := make([]bool, len(b.window))
		copy(window, b.window)
		out[g] = BreakerState{
			Status:          status,
			LastFailureTime: b.lastFailureTime,
			Window:          window,
		}
		b.mu.Unlock()
	}
	return out
}
