package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.SessionEviction != EvictionNone {
		t.Errorf("expected eviction none, got %s", cfg.SessionEviction)
	}
	if cfg.ToolTimeout != 30*time.Second {
		t.Errorf("expected 30s tool timeout, got %s", cfg.ToolTimeout)
	}
	if cfg.ParallelTools {
		t.Errorf("parallel tools should default off")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SESSION_EVICTION", "ttl")
	t.Setenv("TOOLS_PARALLEL", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTPPort)
	}
	if cfg.SessionEviction != EvictionTTL {
		t.Errorf("expected eviction ttl, got %s", cfg.SessionEviction)
	}
	if !cfg.ParallelTools {
		t.Errorf("expected parallel tools on")
	}
}

func TestLoadRejectsBadEviction(t *testing.T) {
	t.Setenv("SESSION_EVICTION", "sometimes")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid eviction policy")
	}
}
