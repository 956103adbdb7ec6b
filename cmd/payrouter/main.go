package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/payrouter/engine/internal/admin"
	"github.com/payrouter/engine/internal/api"
	"github.com/payrouter/engine/internal/config"
	"github.com/payrouter/engine/internal/gateway"
	"github.com/payrouter/engine/internal/ledger"
	"github.com/payrouter/engine/internal/middleware"
	"github.com/payrouter/engine/internal/orchestrator"
	"github.com/payrouter/engine/internal/router"
	"github.com/payrouter/engine/internal/sentinel"
)

var (
	version   = "dev"
	buildTime = "unknown"
	commit    = "none"
)

func main() {
	var (
		configPath  = flag.String("config", "configs/payrouter.yaml", "path to config file")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("payrouter version=%s commit=%s buildTime=%s\n", version, commit, buildTime)
		os.Exit(0)
	}

	rawLogger, _ := zap.NewProduction()
	log := rawLogger.Sugar()
	defer log.Sync() //nolint:errcheck

	log.Infow("starting payrouter", "version", version, "config", *configPath)

	cfg, watcher, err := config.LoadAndWatch(*configPath, log)
	if err != nil {
		log.Fatalw("failed to load config", "err", err)
	}
	defer watcher.Close()

	seed := time.Now().UnixNano()
	if cfg.RNGSeed != nil {
		seed = *cfg.RNGSeed
	}
	rng := rand.New(rand.NewSource(seed))

	gateways := cfg.GatewayLabels()
	r := router.New(rng, gateways)
	s := sentinel.New(gateways,
		cfg.CircuitBreaker.FailureThreshold,
		time.Duration(cfg.CircuitBreaker.RecoveryTimeoutSeconds)*time.Second,
		cfg.CircuitBreaker.WindowSize,
	)

	effect, simFleet := buildEffect(cfg, rng)

	var ledgerImpl ledger.Ledger
	if cfg.Ledger != nil && cfg.Ledger.RedisURL != "" {
		ledgerImpl, err = ledger.NewRedis(cfg.Ledger.RedisURL, cfg.Ledger.MaxPerWindow, time.Duration(cfg.Ledger.WindowSeconds)*time.Second)
		if err != nil {
			log.Fatalw("failed to build redis ledger", "err", err)
		}
	} else if cfg.Ledger != nil {
		ledgerImpl = ledger.NewLocal(cfg.Ledger.MaxPerWindow, time.Duration(cfg.Ledger.WindowSeconds)*time.Second)
	}

	recent := orchestrator.NewRecentBuffer(50)
	orch := orchestrator.New(r, s, effect, gateways, cfg.MaxAttempts, log).WithRecentBuffer(recent)

	// Wire hot-reload: when config changes, push each gateway's
	// success rate and mean latency into the simulated fleet. Nothing
	// else is applied live: the gateway set, breaker and retry
	// parameters keep their startup values, and router/sentinel keep
	// their learned state.
	go func() {
		for newCfg := range watcher.Updates() {
			log.Infow("config reloaded")
			if simFleet != nil {
				for _, g := range newCfg.Gateways {
					rate, mean := g.SuccessRate, g.LatencyMeanMS
					simFleet.UpdateConfig(g.Label, &rate, &mean)
				}
			}
		}
	}()

	adminMux := http.NewServeMux()
	admin.New(r, s, recent, simFleet, log).Register(adminMux)

	adminSrv := &http.Server{
		Addr:         cfg.Admin.Addr,
		Handler:      adminMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	paymentHandler := api.NewHandler(orch, ledgerImpl, log, 10*time.Second)
	mainMux := http.NewServeMux()
	mainMux.Handle("/payments", middleware.Chain(paymentHandler,
		middleware.RequestID,
		middleware.Logger(log),
		middleware.Metrics("/payments"),
	))

	mainSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      middleware.Recovery(log)(mainMux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("admin server listening", "addr", cfg.Admin.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("admin server failed", "err", err)
		}
	}()

	go func() {
		log.Infow("payment server listening", "addr", cfg.Server.Addr)
		if err := mainSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("payment server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Infow("shutting down gracefully…")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_ = adminSrv.Shutdown(ctx)
	if err := mainSrv.Shutdown(ctx); err != nil {
		log.Errorw("graceful shutdown failed", "err", err)
	}
	log.Infow("goodbye")
}

// buildEffect picks, per gateway, either a simulated backend or a real
// HTTP-proxied one, depending on whether backend_url is configured.
// Returns the composite Effect plus the SimulatedFleet (nil if no
// gateway uses simulation) for the admin control surface.
func buildEffect(cfg *config.Config, rng *rand.Rand) (gateway.Effect, *gateway.SimulatedFleet) {
	var simLabels []string
	httpBackends := make(map[string]string)
	simRates := make(map[string]float64)
	simLatMean := make(map[string]float64)

	for _, g := range cfg.Gateways {
		if g.BackendURL != "" {
			httpBackends[g.Label] = g.BackendURL
			continue
		}
		simLabels = append(simLabels, g.Label)
		simRates[g.Label] = g.SuccessRate
		simLatMean[g.Label] = g.LatencyMeanMS
	}

	if len(httpBackends) == 0 {
		fleet := gateway.NewSimulatedFleet(rng, simLabels, 0.9, 200, 50)
		for _, g := range cfg.Gateways {
			rate, mean := g.SuccessRate, g.LatencyMeanMS
			fleet.UpdateConfig(g.Label, &rate, &mean)
		}
		return fleet, fleet
	}
	if len(simLabels) == 0 {
		return gateway.NewHTTPFleet(httpBackends, 10*time.Second), nil
	}

	simFleet := gateway.NewSimulatedFleet(rng, simLabels, 0.9, 200, 50)
	for _, label := range simLabels {
		rate, mean := simRates[label], simLatMean[label]
		simFleet.UpdateConfig(label, &rate, &mean)
	}
	httpFleet := gateway.NewHTTPFleet(httpBackends, 10*time.Second)
	return &mixedFleet{sim: simFleet, http: httpFleet, httpLabels: httpBackends}, simFleet
}

// mixedFleet dispatches to the simulated fleet or the HTTP fleet
// depending on which one owns a given gateway label.
type mixedFleet struct {
	sim        *gateway.SimulatedFleet
	http       *gateway.HTTPFleet
	httpLabels map[string]string
}

func (m *mixedFleet) Execute(ctx context.Context, gatewayLabel string, amount float64, currency string) gateway.Outcome {
	if _, ok := m.httpLabels[gatewayLabel]; ok {
		return m.http.Execute(ctx, gatewayLabel, amount, currency)
	}
	return m.sim.Execute(ctx, gatewayLabel, amount, currency)
}
