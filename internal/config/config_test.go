package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ricagent.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
ric_address = "10.0.0.5:36421"
node_id = 411
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "ricagent" {
		t.Fatalf("default name: %q", cfg.Name)
	}
	if cfg.TickPeriod != time.Millisecond {
		t.Fatalf("default tick period: %v", cfg.TickPeriod)
	}
	if cfg.SetupTimeoutTicks != 1000 {
		t.Fatalf("default setup timeout: %d", cfg.SetupTimeoutTicks)
	}
	if cfg.Backoff.InitialTicks != 250 || cfg.Backoff.Multiplier != 2.0 {
		t.Fatalf("default backoff: %+v", cfg.Backoff)
	}
	if cfg.NodeID != 411 {
		t.Fatalf("node id: %d", cfg.NodeID)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
name = "gnb-agent"
ric_address = "ric.local:36421"
bind_address = "10.1.2.3:0"
node_id = 7
tick_period = "2ms"
setup_timeout_ticks = 500
max_subscriptions = 8
admin_address = ":9290"
log_level = "debug"

[backoff]
initial_ticks = 100
multiplier = 1.5
max_ticks = 2000
jitter = false

[[functions]]
id = 147
revision = 2
description = "kpm-monitor"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "gnb-agent" || cfg.TickPeriod != 2*time.Millisecond {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Backoff.Jitter || cfg.Backoff.InitialTicks != 100 {
		t.Fatalf("backoff overrides not applied: %+v", cfg.Backoff)
	}
	if len(cfg.Functions) != 1 || cfg.Functions[0].ID != 147 {
		t.Fatalf("functions not loaded: %+v", cfg.Functions)
	}
}

func TestLoadRejectsMissingRICAddress(t *testing.T) {
	path := writeConfig(t, `node_id = 1`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "ric_address") {
		t.Fatalf("expected ric_address error, got %v", err)
	}
}

func TestLoadRejectsDuplicateFunctionIDs(t *testing.T) {
	path := writeConfig(t, `
ric_address = "a:1"

[[functions]]
id = 1

[[functions]]
id = 1
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "duplicate function id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoadRejectsBadTickPeriod(t *testing.T) {
	path := writeConfig(t, `
ric_address = "a:1"
tick_period = "fast"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
