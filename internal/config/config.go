// Package config loads and hot-reloads the routing engine's
// configuration: the gateway set, retry budget, circuit breaker
// parameters, and optional distributed attempt-ledger settings.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Top-level config structs
// ---------------------------------------------------------------------------

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Admin          AdminConfig          `yaml:"admin"`
	Gateways       []GatewayConfig      `yaml:"gateways"`
	MaxAttempts    int                  `yaml:"max_attempts"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Ledger         *LedgerConfig        `yaml:"ledger,omitempty"`
	RNGSeed        *int64               `yaml:"rng_seed,omitempty"`
	Logging        LoggingConfig        `yaml:"logging"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// GatewayConfig names one gateway the router may choose. BackendURL is
// optional; when set, the engine uses gateway.HTTPFleet instead of the
// in-process simulator for this gateway's traffic.
type GatewayConfig struct {
	Label         string  `yaml:"label"`
	BackendURL    string  `yaml:"backend_url,omitempty"`
	SuccessRate   float64 `yaml:"success_rate,omitempty"`
	LatencyMeanMS float64 `yaml:"latency_mean_ms,omitempty"`
	LatencyStdMS  float64 `yaml:"latency_std_ms,omitempty"`
}

type CircuitBreakerConfig struct {
	// Failure fraction (0,1] that the full window must exceed to trip the breaker.
	FailureThreshold float64 `yaml:"failure_threshold"`

	// How long (seconds) a gateway stays OPEN before becoming HALF_OPEN.
	RecoveryTimeoutSeconds int `yaml:"recovery_timeout_seconds"`

	// Size of the rolling outcome window.
	WindowSize int `yaml:"window_size"`
}

// LedgerConfig configures the optional distributed per-merchant
// attempt-rate ledger. If RedisURL is empty the engine falls back to
// an in-process ledger.
type LedgerConfig struct {
	RedisURL      string `yaml:"redis_url,omitempty"`
	MaxPerWindow  int    `yaml:"max_per_window"`
	WindowSeconds int    `yaml:"window_seconds"`
}

// ---------------------------------------------------------------------------
// Loader + file watcher
// ---------------------------------------------------------------------------

// Watcher emits new configs when the file changes on disk.
type Watcher struct {
	updates chan *Config
	done    chan struct{}
	once    sync.Once
	fsw     *fsnotify.Watcher
}

func (w *Watcher) Updates() <-chan *Config { return w.updates }

func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

// LoadAndWatch reads the config file, starts watching for changes, and
// returns the initial config plus a Watcher whose channel delivers reloads.
func LoadAndWatch(path string, log *zap.SugaredLogger) (*Config, *Watcher, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		return nil, nil, fmt.Errorf("watch config file: %w", err)
	}

	w := &Watcher{
		updates: make(chan *Config, 1),
		done:    make(chan struct{}),
		fsw:     fsw,
	}

	go func() {
		// debounce rapid saves
		var debounce <-chan time.Time
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					debounce = time.After(200 * time.Millisecond)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warnw("fsnotify error", "err", err)
			case <-debounce:
				debounce = nil
				newCfg, err := load(path)
				if err != nil {
					log.Warnw("config reload failed, keeping old config", "err", err)
					continue
				}
				// non-blocking send; drop if nobody is consuming fast enough
				select {
				case w.updates <- newCfg:
				default:
				}
			}
		}
	}()

	return cfg, w, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ErrConfig is a fatal configuration error, surfaced to the caller at
// startup: configuration errors are never silently patched over.
type ErrConfig struct {
	Msg string
}

func (e *ErrConfig) Error() string { return e.Msg }

func validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":9090"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}

	if len(cfg.Gateways) < 2 {
		return &ErrConfig{Msg: "at least 2 gateways are required"}
	}
	seen := make(map[string]bool, len(cfg.Gateways))
	for i := range cfg.Gateways {
		g := &cfg.Gateways[i]
		if g.Label == "" {
			return fmt.Errorf("gateway[%d]: label is required", i)
		}
		if seen[g.Label] {
			return fmt.Errorf("gateway[%d]: duplicate label %q", i, g.Label)
		}
		seen[g.Label] = true
		if g.SuccessRate == 0 {
			g.SuccessRate = 0.9
		}
		if g.LatencyMeanMS == 0 {
			g.LatencyMeanMS = 200
		}
		if g.LatencyStdMS == 0 {
			g.LatencyStdMS = 50
		}
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = 0.5
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 || cfg.CircuitBreaker.FailureThreshold > 1 {
		return &ErrConfig{Msg: "circuit_breaker.failure_threshold must be in (0,1]"}
	}
	if cfg.CircuitBreaker.RecoveryTimeoutSeconds == 0 {
		cfg.CircuitBreaker.RecoveryTimeoutSeconds = 30
	}
	if cfg.CircuitBreaker.WindowSize == 0 {
		cfg.CircuitBreaker.WindowSize = 10
	}

	if cfg.Ledger != nil {
		if cfg.Ledger.MaxPerWindow == 0 {
			cfg.Ledger.MaxPerWindow = 100
		}
		if cfg.Ledger.WindowSeconds == 0 {
			cfg.Ledger.WindowSeconds = 60
		}
	}

	return nil
}

// GatewayLabels returns the configured gateway labels in file order —
// the deterministic scan order used by the router and orchestrator.
func (c *Config) GatewayLabels() []string {
	labels := make([]string, len(c.Gateways))
	for i, g := range c.Gateways {
		labels[i] = g.Label
	}
	return labels
}
