package discovery

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// DefaultProbeTimeout bounds how long a single capability probe may run.
const DefaultProbeTimeout = 5 * time.Second

// CapabilityProbe is a cheap pass/fail test run against an agent binary to
// confirm it actually supports a claimed capability.
type CapabilityProbe struct {
	Feature string
	Args    []string // appended to the configured binary, e.g. "--version"
}

// DefaultProbes covers the capabilities AgentCapabilities can claim.
func DefaultProbes() []CapabilityProbe {
	return []CapabilityProbe{
		{Feature: "version", Args: []string{"--version"}},
		{Feature: "help", Args: []string{"--help"}},
	}
}

// ProbeResult records one probe's outcome and the confidence assigned to it.
type ProbeResult struct {
	Feature    string
	Passed     bool
	Confidence float64 // 1.0 for a clean pass, 0.0 for a clean fail
	Err        error
}

// Probe runs every probe against the configured binary and folds the
// results into d's SupportedFeatures and CapabilityConfidence.
func Probe(ctx context.Context, d *DiscoveredAgent, binary string, probes []CapabilityProbe) []ProbeResult {
	results := make([]ProbeResult, 0, len(probes))
	features := make([]string, 0, len(probes))
	confidence := make(map[string]float64, len(probes))

	for _, p := range probes {
		r := runProbe(ctx, binary, p)
		results = append(results, r)
		confidence[p.Feature] = r.Confidence
		if r.Passed {
			features = append(features, p.Feature)
		}
	}

	d.SupportedFeatures = features
	d.CapabilityConfidence = confidence
	return results
}

func runProbe(ctx context.Context, binary string, p CapabilityProbe) ProbeResult {
	cctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, binary, p.Args...)
	err := cmd.Run()
	if err != nil {
		return ProbeResult{Feature: p.Feature, Passed: false, Confidence: 0, Err: fmt.Errorf("probe %s: %w", p.Feature, err)}
	}
	return ProbeResult{Feature: p.Feature, Passed: true, Confidence: 1.0}
}

// HealthCheckKind identifies one stage of the health-check pipeline.
type HealthCheckKind string

const (
	CheckConfiguration HealthCheckKind = "configuration"
	CheckAuthentication HealthCheckKind = "authentication"
	CheckResource       HealthCheckKind = "resource"
)

// HealthCheckResult is "pass", "warn", or "fail" for one pipeline stage.
type HealthCheckResult struct {
	Kind    HealthCheckKind
	Status  string // pass|warn|fail
	Message string
}

// WarnUtilizationThreshold is the resource-utilization fraction above
// which the resource check warns instead of passing.
const WarnUtilizationThreshold = 0.90

// RunHealthChecks runs the configuration/authentication/resource pipeline
// against cfg and the agent's current memory utilization, then folds the
// result into d.HealthScore and d.Health via the 100-25*fail-10*warn
// formula.
func RunHealthChecks(d *DiscoveredAgent, cfg types.AgentConfiguration, memUtilization float64) []HealthCheckResult {
	results := []HealthCheckResult{
		checkConfiguration(cfg),
		checkAuthentication(cfg),
		checkResource(memUtilization),
	}

	score := 100
	for _, r := range results {
		switch r.Status {
		case "fail":
			score -= 25
		case "warn":
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}

	d.HealthScore = score
	d.Health = HealthForScore(score)
	return results
}

func checkConfiguration(cfg types.AgentConfiguration) HealthCheckResult {
	if cfg.ID == "" || cfg.Type == "" {
		return HealthCheckResult{Kind: CheckConfiguration, Status: "fail", Message: "missing id or type"}
	}
	if cfg.Environment.Binary == "" {
		return HealthCheckResult{Kind: CheckConfiguration, Status: "warn", Message: "no binary path configured"}
	}
	return HealthCheckResult{Kind: CheckConfiguration, Status: "pass"}
}

func checkAuthentication(cfg types.AgentConfiguration) HealthCheckResult {
	switch cfg.Authentication.Kind {
	case "", "none":
		return HealthCheckResult{Kind: CheckAuthentication, Status: "pass"}
	case "jwt", "secret_ref":
		if cfg.Authentication.SecretRef == "" {
			return HealthCheckResult{Kind: CheckAuthentication, Status: "fail", Message: "auth kind set without a secret reference"}
		}
		return HealthCheckResult{Kind: CheckAuthentication, Status: "pass"}
	default:
		return HealthCheckResult{Kind: CheckAuthentication, Status: "warn", Message: "unrecognized authentication kind " + cfg.Authentication.Kind}
	}
}

func checkResource(memUtilization float64) HealthCheckResult {
	if memUtilization > WarnUtilizationThreshold {
		return HealthCheckResult{Kind: CheckResource, Status: "warn", Message: "memory utilization above 90%"}
	}
	return HealthCheckResult{Kind: CheckResource, Status: "pass"}
}
