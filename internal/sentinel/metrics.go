package sentinel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// breakerStateGauge encodes Status as 0=CLOSED, 1=HALF_OPEN, 2=OPEN.
var breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "payrouter",
	Subsystem: "sentinel",
	Name:      "breaker_state",
	Help:      "Circuit breaker state per gateway (0=closed, 1=half-open, 2=open).",
}, []string{"gateway"})

func statusMetricValue(s Status) float64 {
	switch s {
	case Closed:
		return 0
	case HalfOpen:
		return 1
	case Open:
		return 2
	}
	return -1
}

func (s *Sentinel) publishMetric(gateway string, status Status) {
	breakerStateGauge.WithLabelValues(gateway).Set(statusMetricValue(status))
}
