package discovery

import "github.com/andywolf/prpctl/internal/types"

// ValidationIssue is one structured error or warning surfaced while
// validating an AgentConfiguration before it is registered.
type ValidationIssue struct {
	Field   string
	Message string
}

// SubScores breaks a validation's overall confidence into the dimensions
// findBestAgent-adjacent callers may want to inspect independently.
type SubScores struct {
	Security      float64 // 0-1
	Performance   float64
	Compatibility float64
}

// ResourceEstimate is the expected footprint of running one instance of
// this configuration, used to size the supervisor's resource ledger.
type ResourceEstimate struct {
	MemoryMB            int
	CPUPercent          float64
	DiskMB              int
	NetworkMbps         float64
	AllocatedTokens     int
	EstimatedCostPerDay float64
}

// ValidationResult is the full output of Validate.
type ValidationResult struct {
	Valid      bool
	Errors     []ValidationIssue
	Warnings   []ValidationIssue
	SubScores  SubScores
	Resources  ResourceEstimate
}

// Validate checks d against the rules the health-check pipeline doesn't
// already cover (naming, limits sanity, security posture) and produces
// the cost/resource estimate the supervisor uses to size a spawn.
func Validate(d *DiscoveredAgent) ValidationResult {
	var errs, warns []ValidationIssue
	cfg := d.Config

	if cfg.ID == "" {
		errs = append(errs, ValidationIssue{Field: "id", Message: "agent id is required"})
	}
	if cfg.Environment.Binary == "" {
		errs = append(errs, ValidationIssue{Field: "environment.binary", Message: "binary path is required"})
	}
	if cfg.Limits.MaxTokensPerRun <= 0 {
		warns = append(warns, ValidationIssue{Field: "limits.max_tokens_per_run", Message: "no per-run token cap set"})
	}
	if cfg.Limits.MaxMemoryMB <= 0 {
		warns = append(warns, ValidationIssue{Field: "limits.max_memory_mb", Message: "no memory cap set, default will apply"})
	}

	security := 1.0
	if cfg.Authentication.Kind != "none" && cfg.Authentication.Kind != "" && cfg.Authentication.SecretRef == "" {
		security = 0.0
		errs = append(errs, ValidationIssue{Field: "authentication.secret_ref", Message: "authentication kind set without a secret reference"})
	}

	performance := 1.0
	if !cfg.Capabilities.SupportsParallel && cfg.Capabilities.MaxConcurrentTasks > 1 {
		performance = 0.5
		warns = append(warns, ValidationIssue{Field: "capabilities.max_concurrent_tasks", Message: "non-parallel agent claims more than one concurrent task"})
	}

	compatibility := 1.0
	if len(cfg.Capabilities.Languages) == 0 && len(cfg.Capabilities.Tools) == 0 {
		compatibility = 0.7
		warns = append(warns, ValidationIssue{Field: "capabilities", Message: "no languages or tools declared"})
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		SubScores: SubScores{
			Security:      security,
			Performance:   performance,
			Compatibility: compatibility,
		},
		Resources: EstimateResources(cfg),
	}
}

// EstimateResources implements the supervisor's resource allocation
// formulas so discovery can surface a cost preview before a spawn happens.
func EstimateResources(cfg types.AgentConfiguration) ResourceEstimate {
	memoryMB := cfg.Limits.MaxMemoryMB
	if memoryMB < 256 {
		memoryMB = 256
	}

	cpu := float64(cfg.Capabilities.MaxConcurrentTasks) * 10.0
	if cpu < 20.0 {
		cpu = 20.0
	}

	return ResourceEstimate{
		MemoryMB:            memoryMB,
		CPUPercent:          cpu,
		DiskMB:              100,
		NetworkMbps:         10,
		AllocatedTokens:     cfg.Limits.MaxTokensPerRun * cfg.Limits.MaxRequestsPerDay,
		EstimatedCostPerDay: cfg.Limits.MaxCostPerDay,
	}
}
