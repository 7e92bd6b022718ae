// Package config loads the dashboard's on-disk YAML configuration:
// supervisor tick intervals, provider discovery windows, preview-capture
// budgets, liveness debounce thresholds, and the per-agent token pricing
// table. Structured the way the teacher lays out its own config package
// (one struct per concern, Load/LoadOrDefault, an XDG-compliant default
// path), generalized from session monitoring to the dashboard's fuller
// supervisor/log-pipeline/tmux-control domain.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultContextWindow is the fallback context window size (in tokens)
// used when no model-specific entry or "default" key is found.
const DefaultContextWindow = 200000

type Config struct {
	Supervisor SupervisorConfig  `yaml:"supervisor"`
	Logs       LogsConfig        `yaml:"logs"`
	Preview    PreviewConfig     `yaml:"preview"`
	Sources    SourcesConfig     `yaml:"sources"`
	Models     map[string]int    `yaml:"models"`
	Pricing    map[string]Rate   `yaml:"pricing"`
	UI         UIConfig          `yaml:"ui"`
}

// Rate is the USD-per-million-tokens price for one agent kind, by token
// class. Keyed in the YAML file by agent kind ("claude", "codex", "gemini").
type Rate struct {
	InputPerMTok      float64 `yaml:"input_per_mtok"`
	OutputPerMTok     float64 `yaml:"output_per_mtok"`
	CacheReadPerMTok  float64 `yaml:"cache_read_per_mtok"`
	CacheWritePerMTok float64 `yaml:"cache_write_per_mtok"`
}

// SupervisorConfig governs the single-writer event loop's tick cadence
// and liveness debounce.
type SupervisorConfig struct {
	SessionRefreshInterval time.Duration `yaml:"session_refresh_interval"`
	MessageRefreshInterval time.Duration `yaml:"message_refresh_interval"`
	// LivenessDebounceTicks is how many consecutive "looks dead" ticks
	// are required before a pane is declared Exited under normal
	// conditions.
	LivenessDebounceTicks int `yaml:"liveness_debounce_ticks"`
	// LivenessDebounceTicksWithSubagents extends the debounce window
	// while active subagents are still running, since their completion
	// can briefly starve the parent transcript of new entries.
	LivenessDebounceTicksWithSubagents int `yaml:"liveness_debounce_ticks_with_subagents"`
	ManifestDir                        string `yaml:"manifest_dir"`
}

// LogsConfig governs the per-provider discovery cadence and retry
// behaviour of the log ingestion pipeline.
type LogsConfig struct {
	DiscoverWindow     time.Duration `yaml:"discover_window"`
	RefreshEveryNTicks int           `yaml:"refresh_every_n_ticks"`
	// RetryCooldownTicks is how many cycles an unresolved session's log
	// path is left unprobed after a failed resolve, before retrying.
	RetryCooldownTicks int `yaml:"retry_cooldown_ticks"`
}

// PreviewConfig governs the pane-content capture budget each tick.
type PreviewConfig struct {
	MaxCapturesPerTick    int `yaml:"max_captures_per_tick"`
	DirtySetLiveBudget    int `yaml:"dirty_set_live_budget"`
	RoundRobinFillBudget  int `yaml:"round_robin_fill_budget"`
}

type SourcesConfig struct {
	Claude bool `yaml:"claude"`
	Codex  bool `yaml:"codex"`
	Gemini bool `yaml:"gemini"`
}

// UIConfig governs the optional detached-UI transport (internal/uiproto).
type UIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Supervisor.ManifestDir == "" {
		cfg.Supervisor.ManifestDir = filepath.Join(defaultStateDir(), "agent-dashboard", "manifests")
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default config if
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Supervisor: SupervisorConfig{
			SessionRefreshInterval:             500 * time.Millisecond,
			MessageRefreshInterval:             50 * time.Millisecond,
			LivenessDebounceTicks:              3,
			LivenessDebounceTicksWithSubagents: 15,
			ManifestDir:                        filepath.Join(defaultStateDir(), "agent-dashboard", "manifests"),
		},
		Logs: LogsConfig{
			DiscoverWindow:     10 * time.Minute,
			RefreshEveryNTicks: 40,
			RetryCooldownTicks: 6,
		},
		Preview: PreviewConfig{
			MaxCapturesPerTick:   8,
			DirtySetLiveBudget:   2,
			RoundRobinFillBudget: 1,
		},
		Sources: SourcesConfig{
			Claude: true,
			Codex:  true,
			Gemini: true,
		},
		Models: map[string]int{
			"default": DefaultContextWindow,
		},
		Pricing: map[string]Rate{
			"claude": {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75},
			"codex":  {InputPerMTok: 1.1, OutputPerMTok: 4.4, CacheReadPerMTok: 0.275},
			"gemini": {InputPerMTok: 1.25, OutputPerMTok: 5.0},
		},
		UI: UIConfig{
			Enabled:        false,
			Host:           "127.0.0.1",
			Port:           7171,
			MaxConnections: 50,
		},
	}
}

// MaxContextTokens resolves the context window size for a model.
// Resolution order: exact match -> longest prefix match ("claude-*") ->
// "default" key -> DefaultContextWindow.
func (c *Config) MaxContextTokens(model string) int {
	if n, ok := c.Models[model]; ok {
		return n
	}
	bestLen, bestVal := 0, 0
	for key, val := range c.Models {
		if !strings.HasSuffix(key, "*") {
			continue
		}
		prefix := strings.TrimSuffix(key, "*")
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen, bestVal = len(prefix), val
		}
	}
	if bestLen > 0 {
		return bestVal
	}
	if n, ok := c.Models["default"]; ok {
		return n
	}
	return DefaultContextWindow
}

// RateFor returns the configured pricing rate for an agent kind, or a
// zero Rate if unconfigured.
func (c *Config) RateFor(agentKind string) Rate {
	return c.Pricing[agentKind]
}

// CostUSD applies a Rate to raw token counts.
func (r Rate) CostUSD(input, output, cacheRead, cacheWrite int64) float64 {
	const mtok = 1_000_000.0
	return float64(input)/mtok*r.InputPerMTok +
		float64(output)/mtok*r.OutputPerMTok +
		float64(cacheRead)/mtok*r.CacheReadPerMTok +
		float64(cacheWrite)/mtok*r.CacheWritePerMTok
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "agent-dashboard", "config.yaml")
}

// Validate reports an error if the config contains values the
// supervisor cannot safely run with.
func (c *Config) Validate() error {
	if c.Supervisor.SessionRefreshInterval <= 0 {
		return fmt.Errorf("config: supervisor.session_refresh_interval must be positive")
	}
	if c.Supervisor.MessageRefreshInterval <= 0 {
		return fmt.Errorf("config: supervisor.message_refresh_interval must be positive")
	}
	if c.Preview.MaxCapturesPerTick <= 0 {
		return fmt.Errorf("config: preview.max_captures_per_tick must be positive")
	}
	return nil
}
