package config

import (
	"testing"
	"time"
)

func TestGetDuration(t *testing.T) {
	t.Setenv("UNHAZZLE_TEST_DURATION", "90")
	if got := GetDuration("UNHAZZLE_TEST_DURATION", time.Second, time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("UNHAZZLE_TEST_DURATION", "1m30s")
	if got := GetDuration("UNHAZZLE_TEST_DURATION", time.Second, time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	t.Setenv("UNHAZZLE_TEST_DURATION", "soon")
	if got := GetDuration("UNHAZZLE_TEST_DURATION", time.Second, time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("SIMULATED_DELAY_MS", "250")
	cfg := LoadAPIConfig()
	if cfg.StateBackend != BackendRedis {
		t.Fatalf("expected redis backend, got %q", cfg.StateBackend)
	}
	if cfg.SimulatedDelay != 250*time.Millisecond {
		t.Fatalf("unexpected delay %s", cfg.SimulatedDelay)
	}
	if cfg.DomainSuffix != "unhazzle.app" {
		t.Fatalf("unexpected domain suffix %q", cfg.DomainSuffix)
	}
}
