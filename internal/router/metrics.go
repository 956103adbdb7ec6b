package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alphaGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "payrouter",
		Subsystem: "router",
		Name:      "posterior_alpha",
		Help:      "Current Beta-posterior alpha (successes+1) per gateway.",
	}, []string{"gateway"})

	betaGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "payrouter",
		Subsystem: "router",
		Name:      "posterior_beta",
		Help:      "Current Beta-posterior beta (failures+1) per gateway.",
	}, []string{"gateway"})
)

func (r *Router) publishMetrics(gateway string, p *Posterior) {
	alphaGauge.WithLabelValues(gateway).Set(p.Alpha)
	betaGauge.WithLabelValues(gateway).Set(p.Beta)
}
