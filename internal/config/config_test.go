package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMaxContextTokensResolution(t *testing.T) {
	cfg := defaultConfig()
	cfg.Models["claude-*"] = 500000
	cfg.Models["claude-opus-4-5"] = 1000000

	cases := []struct {
		model string
		want  int
	}{
		{"claude-opus-4-5", 1000000},  // exact match wins
		{"claude-sonnet-4-5", 500000}, // prefix match
		{"gpt-5", DefaultContextWindow}, // falls through to default key
	}
	for _, c := range cases {
		if got := cfg.MaxContextTokens(c.model); got != c.want {
			t.Errorf("MaxContextTokens(%q) = %d, want %d", c.model, got, c.want)
		}
	}
}

func TestRateForAndCostUSD(t *testing.T) {
	cfg := defaultConfig()
	rate := cfg.RateFor("claude")
	cost := rate.CostUSD(1_000_000, 1_000_000, 0, 0)
	want := rate.InputPerMTok + rate.OutputPerMTok
	if cost != want {
		t.Errorf("CostUSD = %v, want %v", cost, want)
	}
}

func TestRateForUnknownAgentIsZero(t *testing.T) {
	cfg := defaultConfig()
	rate := cfg.RateFor("unknown-vendor")
	if rate.CostUSD(1_000_000, 0, 0, 0) != 0 {
		t.Errorf("expected zero rate for unknown agent kind")
	}
}

func TestLoadOrDefaultMissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Supervisor.SessionRefreshInterval == 0 {
		t.Fatalf("expected default config to be populated")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "supervisor:\n  liveness_debounce_ticks: 7\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Supervisor.LivenessDebounceTicks != 7 {
		t.Fatalf("LivenessDebounceTicks = %d, want 7", cfg.Supervisor.LivenessDebounceTicks)
	}
	// Untouched defaults should survive the merge.
	if cfg.Preview.MaxCapturesPerTick != 8 {
		t.Fatalf("expected untouched default to survive, got %d", cfg.Preview.MaxCapturesPerTick)
	}
}

func TestValidateRejectsNonPositiveIntervals(t *testing.T) {
	cfg := defaultConfig()
	cfg.Supervisor.SessionRefreshInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a zero session refresh interval")
	}
}
