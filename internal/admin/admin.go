// Package admin exposes the engine's operator/test surface: Prometheus
// metrics, a health check, the router/sentinel observability endpoint,
// a bounded recent-transactions feed, and the gateway simulator's
// runtime control surface. None of this is mounted on the merchant-
// facing entry point.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/payrouter/engine/internal/gateway"
	"github.com/payrouter/engine/internal/orchestrator"
	"github.com/payrouter/engine/internal/router"
	"github.com/payrouter/engine/internal/sentinel"
)

// Server bundles the read-only introspection handlers and the
// simulator control surface.
type Server struct {
	router   *router.Router
	sentinel *sentinel.Sentinel
	recent   *orchestrator.RecentBuffer
	sim      *gateway.SimulatedFleet // nil when the fleet is HTTP-backed
	log      *zap.SugaredLogger
}

func New(r *router.Router, s *sentinel.Sentinel, recent *orchestrator.RecentBuffer, sim *gateway.SimulatedFleet, log *zap.SugaredLogger) *Server {
	return &Server{router: r, sentinel: s, recent: recent, sim: sim, log: log}
}

// Register mounts every admin handler on mux.
func (a *Server) Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", a.healthz)
	mux.HandleFunc("/state", a.state)
	mux.HandleFunc("/transactions/recent", a.recentTransactions)
	mux.HandleFunc("/simulator/", a.simulatorUpdate)
}

func (a *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// stateView is the spec's Observability surface: {router, sentinel}.
type stateView struct {
	Router   map[string]router.Posterior      `json:"router"`
	Sentinel map[string]sentinelStateView      `json:"sentinel"`
}

type sentinelStateView struct {
	Status string `json:"status"`
	Window []bool `json:"window"`
}

func (a *Server) state(w http.ResponseWriter, _ *http.Request) {
	snap := a.sentinel.Snapshot()
	view := stateView{
		Router:   a.router.State(),
		Sentinel: make(map[string]sentinelStateView, len(snap)),
	}
	for g, bs := range snap {
		view.Sentinel[g] = sentinelStateView{Status: bs.Status.String(), Window: bs.Window}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (a *Server) recentTransactions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.recent.Snapshot())
}

type simulatorUpdateRequest struct {
	SuccessRate   *float64 `json:"success_rate"`
	LatencyMeanMS *float64 `json:"latency_mean_ms"`
}

// simulatorUpdate is the operator/test control surface: POST
// /simulator/{gateway} adjusts that gateway's simulated success rate
// and/or mean latency at runtime. It is a no-op (404) when the fleet
// is HTTP-backed rather than simulated.
func (a *Server) simulatorUpdate(w http.ResponseWriter, r *http.Request) {
	if a.sim == nil {
		http.Error(w, "simulator control is unavailable: fleet is not simulated", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	gatewayLabel := r.URL.Path[len("/simulator/"):]
	if gatewayLabel == "" {
		http.Error(w, "missing gateway label", http.StatusBadRequest)
		return
	}

	var body simulatorUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !a.sim.UpdateConfig(gatewayLabel, body.SuccessRate, body.LatencyMeanMS) {
		http.Error(w, "unknown gateway", http.StatusNotFound)
		return
	}

	if a.log != nil {
		a.log.Infow("simulator config updated", "gateway", gatewayLabel)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"updated"}`))
}
