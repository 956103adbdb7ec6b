package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
gateways:
  - label: stripe
  - label: adyen
`)

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default server addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Admin.Addr != ":9090" {
		t.Errorf("expected default admin addr :9090, got %q", cfg.Admin.Addr)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("expected default max_attempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.CircuitBreaker.FailureThreshold != 0.5 {
		t.Errorf("expected default failure_threshold=0.5, got %v", cfg.CircuitBreaker.FailureThreshold)
	}
	if cfg.CircuitBreaker.RecoveryTimeoutSeconds != 30 {
		t.Errorf("expected default recovery_timeout_seconds=30, got %d", cfg.CircuitBreaker.RecoveryTimeoutSeconds)
	}
	if cfg.CircuitBreaker.WindowSize != 10 {
		t.Errorf("expected default window_size=10, got %d", cfg.CircuitBreaker.WindowSize)
	}
	for _, g := range cfg.Gateways {
		if g.SuccessRate != 0.9 || g.LatencyMeanMS != 200 || g.LatencyStdMS != 50 {
			t.Errorf("gateway %s: expected default simulation params, got %+v", g.Label, g)
		}
	}
}

func TestLoadRejectsFewerThanTwoGateways(t *testing.T) {
	path := writeTempConfig(t, `
gateways:
  - label: stripe
`)
	if _, err := load(path); err == nil {
		t.Fatal("expected an error for fewer than 2 gateways")
	}
}

func TestLoadRejectsDuplicateLabels(t *testing.T) {
	path := writeTempConfig(t, `
gateways:
  - label: stripe
  - label: stripe
`)
	if _, err := load(path); err == nil {
		t.Fatal("expected an error for duplicate gateway labels")
	}
}

func TestLoadRejectsInvalidFailureThreshold(t *testing.T) {
	path := writeTempConfig(t, `
gateways:
  - label: stripe
  - label: adyen
circuit_breaker:
  failure_threshold: 1.5
`)
	if _, err := load(path); err == nil {
		t.Fatal("expected an error for an out-of-range failure_threshold")
	}
}

func TestGatewayLabelsPreservesFileOrder(t *testing.T) {
	path := writeTempConfig(t, `
gateways:
  - label: zeta
  - label: alpha
  - label: mu
`)
	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	labels := cfg.GatewayLabels()
	want := []string{"zeta", "alpha", "mu"}
	for i, w := range want {
		if labels[i] != w {
			t.Fatalf("expected order %v, got %v", want, labels)
		}
	}
}

func TestEnvVarExpansion(t *testing.T) {
	os.Setenv("PAYROUTER_TEST_ADDR", ":7777")
	defer os.Unsetenv("PAYROUTER_TEST_ADDR")

	path := writeTempConfig(t, `
server:
  addr: "${PAYROUTER_TEST_ADDR}"
gateways:
  - label: stripe
  - label: adyen
`)
	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("expected env var expansion to produce :7777, got %q", cfg.Server.Addr)
	}
}
