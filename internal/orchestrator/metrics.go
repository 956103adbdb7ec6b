package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payrouter",
		Name:      "attempts_total",
		Help:      "Total gateway-effect invocations, by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payrouter",
		Name:      "attempt_duration_seconds",
		Help:      "Wall-clock duration of a single gateway-effect invocation.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"gateway"})
)

func observeAttempt(gatewayLabel string, outcome string, elapsed time.Duration) {
	attemptsTotal.WithLabelValues(gatewayLabel, outcome).Inc()
	attemptDuration.WithLabelValues(gatewayLabel).Observe(elapsed.Seconds())
}
