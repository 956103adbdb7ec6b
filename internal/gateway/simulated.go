package gateway

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// simulatedBackend mirrors the original system's MockGateway: a named
// processor with a success rate and a Gaussian latency profile. The
// success rate and the latency mean are mutable at runtime via
// UpdateConfig, the operator/test control surface; the latency standard
// deviation is fixed at construction.
type simulatedBackend struct {
	mu          sync.Mutex
	successRate float64
	latencyMeanMS float64
	latencyStdMS  float64
}

// SimulatedFleet is an in-memory Effect implementation for tests and
// for local/demo operation. All randomness flows through an injected
// *rand.Rand so outcomes are reproducible under a seed.
type SimulatedFleet struct {
	mu       sync.Mutex
	rng      *rand.Rand
	backends map[string]*simulatedBackend
	sleep    bool // whether Execute actually sleeps for the simulated latency
}

// NewSimulatedFleet builds a fleet with the given gateway labels, each
// starting at successRate with the given latency profile. rng must be
// non-nil; callers that want determinism should pass rand.New(rand.NewSource(seed)).
func NewSimulatedFleet(rng *rand.Rand, gateways []string, successRate, latencyMeanMS, latencyStdMS float64) *SimulatedFleet {
	backends := make(map[string]*simulatedBackend, len(gateways))
	for _, g := range gateways {
		backends[g] = &simulatedBackend{
			successRate:   successRate,
			latencyMeanMS: latencyMeanMS,
			latencyStdMS:  latencyStdMS,
		}
	}
	return &SimulatedFleet{rng: rng, backends: backends}
}

// WithSleep enables actually sleeping for the sampled latency; tests
// should leave this off.
func (f *SimulatedFleet) WithSleep(v bool) *SimulatedFleet {
	f.sleep = v
	return f
}

// UpdateConfig adjusts a gateway's success rate and/or mean latency at
// runtime. Either pointer may be nil to leave that field unchanged.
func (f *SimulatedFleet) UpdateConfig(gatewayLabel string, successRate, latencyMeanMS *float64) bool {
	f.mu.Lock()
	b, ok := f.backends[gatewayLabel]
	f.mu.Unlock()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if successRate != nil {
		b.successRate = *successRate
	}
	if latencyMeanMS != nil {
		b.latencyMeanMS = *latencyMeanMS
	}
	return true
}

var failureKinds = []ErrorKind{ErrorTimeout, ErrorInsufficientFunds, ErrorBankDecline, ErrorFraudBlock}

func (f *SimulatedFleet) Execute(ctx context.Context, gatewayLabel string, amount float64, currency string) Outcome {
	f.mu.Lock()
	b, ok := f.backends[gatewayLabel]
	f.mu.Unlock()
	if !ok {
		return Outcome{Status: StatusNotFound, Gateway: gatewayLabel}
	}

	b.mu.Lock()
	successRate := b.successRate
	meanMS := b.latencyMeanMS
	stdMS := b.latencyStdMS
	b.mu.Unlock()

	f.mu.Lock()
	latency := math.Max(1, meanMS+f.rng.NormFloat64()*stdMS)
	roll := f.rng.Float64()
	var kind ErrorKind
	if roll >= successRate {
		kind = failureKinds[f.rng.Intn(len(failureKinds))]
	}
	f.mu.Unlock()

	if f.sleep {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(latency) * time.Millisecond):
		}
	}

	if kind == ErrorNone {
		return Outcome{Status: StatusSuccess, Gateway: gatewayLabel, LatencyMS: latency}
	}
	return Outcome{Status: StatusFailure, Gateway: gatewayLabel, LatencyMS: latency, ErrorKind: kind}
}
