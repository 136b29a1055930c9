// Package config loads, validates, and round-trips the .prprc
// configuration file: the schema-versioned JSON document that lists
// every AgentConfiguration the supervisor is permitted to spawn plus the
// tuning knobs for the scanner, token accounting, context manager, and
// orchestrator. Loading follows the teacher's viper-based pattern:
// defaults applied in code, overridden by file, overridden by
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/prpctl/internal/tokens"
	"github.com/andywolf/prpctl/internal/types"
)

// CurrentSchemaVersion is written into freshly exported .prprc documents
// and checked on import; a lower version is accepted and upgraded in
// place, a higher version is rejected.
const CurrentSchemaVersion = 1

// ScannerConfig tunes the worktree scanner.
type ScannerConfig struct {
	WorktreeRoots      []string      `mapstructure:"worktree_roots" json:"worktree_roots"`
	ScanInterval       time.Duration `mapstructure:"scan_interval" json:"scan_interval"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans" json:"max_concurrent_scans"`
	Debounce           time.Duration `mapstructure:"debounce" json:"debounce"`
}

// TokensConfig tunes the token accounting engine.
type TokensConfig struct {
	AgentLimits     []tokens.AgentLimit     `mapstructure:"agent_limits" json:"agent_limits"`
	ComponentLimits []tokens.ComponentLimit `mapstructure:"component_limits" json:"component_limits"`
	LedgerDir       string                  `mapstructure:"ledger_dir" json:"ledger_dir"`
	// MetricsAddr, if set, is the listen address for the Prometheus
	// /metrics endpoint. Left empty, no metrics server is started.
	MetricsAddr string `mapstructure:"metrics_addr" json:"metrics_addr"`
}

// ContextConfig tunes the context manager's packing budget.
type ContextConfig struct {
	Budget int `mapstructure:"budget" json:"budget"`
}

// OrchestratorConfig tunes the control loop's cadence.
type OrchestratorConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" json:"tick_interval"`
}

// GCPConfig names the cloud project a "secret_ref" authentication or
// structured logging sink resolves against.
type GCPConfig struct {
	ProjectID    string `mapstructure:"project_id" json:"project_id"`
	SecretPrefix string `mapstructure:"secret_prefix" json:"secret_prefix"`
	LogName      string `mapstructure:"log_name" json:"log_name"`
}

// SecurityConfig tunes rate limiting and credential scrubbing.
type SecurityConfig struct {
	SpawnRateLimitPerMinute int `mapstructure:"spawn_rate_limit_per_minute" json:"spawn_rate_limit_per_minute"`
}

// Config is the full, in-memory .prprc document.
type Config struct {
	Version      int                   `mapstructure:"version" json:"version"`
	Agents       []types.AgentConfiguration `mapstructure:"agents" json:"agents"`
	Scanner      ScannerConfig         `mapstructure:"scanner" json:"scanner"`
	Tokens       TokensConfig          `mapstructure:"tokens" json:"tokens"`
	Context      ContextConfig         `mapstructure:"context" json:"context"`
	Orchestrator OrchestratorConfig    `mapstructure:"orchestrator" json:"orchestrator"`
	GCP          GCPConfig             `mapstructure:"gcp" json:"gcp"`
	Security     SecurityConfig        `mapstructure:"security" json:"security"`

	// unknown preserves any top-level field this struct doesn't know
	// about, so Export round-trips a .prprc written by a newer version
	// of this schema without silently dropping data.
	unknown map[string]json.RawMessage
}

// Load reads path (a JSON .prprc file) through viper, applies defaults
// for anything left unset, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		cfg.unknown = unknownFields(raw)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// knownFields lists the top-level keys this struct decodes, used to find
// the leftover keys Import/Load must preserve on round-trip.
var knownFields = map[string]bool{
	"version": true, "agents": true, "scanner": true, "tokens": true,
	"context": true, "orchestrator": true, "gcp": true, "security": true,
}

func unknownFields(raw []byte) map[string]json.RawMessage {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil
	}
	out := make(map[string]json.RawMessage)
	for k, v := range all {
		if !knownFields[k] {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentSchemaVersion
	}
	if cfg.Scanner.ScanInterval == 0 {
		cfg.Scanner.ScanInterval = 30 * time.Second
	}
	if cfg.Scanner.MaxConcurrentScans == 0 {
		cfg.Scanner.MaxConcurrentScans = 5
	}
	if cfg.Scanner.Debounce == 0 {
		cfg.Scanner.Debounce = 500 * time.Millisecond
	}
	if cfg.Context.Budget == 0 {
		cfg.Context.Budget = 32000
	}
	if cfg.Orchestrator.TickInterval == 0 {
		cfg.Orchestrator.TickInterval = 10 * time.Second
	}
	if cfg.Tokens.LedgerDir == "" {
		cfg.Tokens.LedgerDir = ".prp"
	}
	if cfg.Security.SpawnRateLimitPerMinute == 0 {
		cfg.Security.SpawnRateLimitPerMinute = 30
	}
}

// Validate checks the document is internally consistent and importable.
func (c *Config) Validate() error {
	if c.Version > CurrentSchemaVersion {
		return fmt.Errorf("unsupported .prprc schema version %d (this binary supports up to %d)", c.Version, CurrentSchemaVersion)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent configuration missing id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent configuration id %q", a.ID)
		}
		seen[a.ID] = true

		if a.Environment.Binary == "" {
			return fmt.Errorf("agent %q: environment.binary is required", a.ID)
		}
		switch a.Authentication.Kind {
		case "", "none", "jwt", "secret_ref":
		default:
			return fmt.Errorf("agent %q: invalid authentication kind %q", a.ID, a.Authentication.Kind)
		}
	}

	if len(c.Scanner.WorktreeRoots) == 0 {
		return fmt.Errorf("scanner.worktree_roots must list at least one path")
	}

	return nil
}

// ExportJSON serializes the document back to canonical, schema-versioned
// JSON, re-merging any unknown top-level fields preserved from Import/Load.
func (c *Config) ExportJSON() ([]byte, error) {
	known, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	if len(c.unknown) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.unknown {
		merged[k] = v
	}
	return json.MarshalIndent(merged, "", "  ")
}

// ExportYAML renders a degraded YAML-like form of the document for
// human review; it is not meant to be re-imported (Import only accepts
// JSON), matching the spec's "export as JSON or a degraded YAML-like
// form" language.
func (c *Config) ExportYAML() ([]byte, error) {
	data, err := c.ExportJSON()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return yaml.Marshal(v)
}

// Import parses raw JSON bytes as a .prprc document, preserving unknown
// top-level fields for a later ExportJSON round-trip.
func Import(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing .prprc: %w", err)
	}
	cfg.unknown = unknownFields(raw)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
