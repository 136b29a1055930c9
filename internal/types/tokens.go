package types

import "time"

// Layer identifies which component layer incurred a token usage record.
type Layer string

const (
	LayerScanner      Layer = "scanner"
	LayerOrchestrator Layer = "orchestrator"
	LayerAgent        Layer = "agent"
)

// TokenUsageRecord is an append-only ledger entry. Invariant:
// TotalTokens == InputTokens + OutputTokens and Cost >= 0.
type TokenUsageRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	AgentID      string            `json:"agent_id"`
	AgentType    string            `json:"agent_type"`
	Operation    string            `json:"operation"`
	Model        string            `json:"model"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	TotalTokens  int               `json:"total_tokens"`
	Cost         float64           `json:"cost"`
	Currency     string            `json:"currency"`
	Layer        Layer             `json:"layer"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AlertKind enumerates the kinds of TokenAlert the cap engine raises.
type AlertKind string

const (
	AlertApproachingLimit AlertKind = "approaching_limit"
	AlertLimitExceeded    AlertKind = "limit_exceeded"
	AlertSpikeDetected    AlertKind = "spike_detected"
)

// Severity is shared by TokenAlert and EnforcementAction reporting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// TokenAlert is raised by the cap engine. Unique per (AgentOrComponent,
// Kind) while Resolved is false.
type TokenAlert struct {
	ID                string    `json:"id"`
	Kind              AlertKind `json:"kind"`
	Severity          Severity  `json:"severity"`
	AgentOrComponent  string    `json:"agent_or_component"`
	Message           string    `json:"message"`
	CurrentUsage      float64   `json:"current_usage"`
	Threshold         float64   `json:"threshold"`
	Timestamp         time.Time `json:"timestamp"`
	Resolved          bool      `json:"resolved"`
	ResolvedAt        time.Time `json:"resolved_at,omitempty"`
}

// EnforcementComponent identifies which cap-enforcement subject crossed a threshold.
type EnforcementComponent string

const (
	ComponentInspector    EnforcementComponent = "inspector"
	ComponentOrchestrator EnforcementComponent = "orchestrator"
)

// EnforcementType enumerates the directive a crossed threshold emits.
type EnforcementType string

const (
	EnforcementWarningLogged    EnforcementType = "warning_logged"
	EnforcementSignalEmitted    EnforcementType = "signal_emitted"
	EnforcementRequestsThrottled EnforcementType = "requests_throttled"
	EnforcementRequestsBlocked  EnforcementType = "requests_blocked"
	EnforcementContextCompacted EnforcementType = "context_compacted"
	EnforcementEmergencyStopped EnforcementType = "emergency_stopped"
)

// EnforcementAction is a structured directive the cap engine publishes on
// the enforcement channel; supervisor and orchestrator treat unresolved
// requests_blocked/emergency_stopped actions as hard fences.
type EnforcementAction struct {
	ID         string                `json:"id"`
	Timestamp  time.Time             `json:"timestamp"`
	Component  EnforcementComponent  `json:"component"`
	Type       EnforcementType       `json:"type"`
	Reason     string                `json:"reason"`
	Threshold  float64               `json:"threshold"`
	Current    float64               `json:"current"`
	Limit      float64               `json:"limit"`
	Percentage float64               `json:"percentage"`
	Resolved   bool                  `json:"resolved"`
}

// IsHardFence reports whether this action blocks new work outright.
func (a EnforcementAction) IsHardFence() bool {
	return !a.Resolved && (a.Type == EnforcementRequestsBlocked || a.Type == EnforcementEmergencyStopped)
}

// UsageStatus is the bucket a usage percentage falls into.
type UsageStatus string

const (
	UsageHealthy  UsageStatus = "healthy"
	UsageWarning  UsageStatus = "warning"
	UsageCritical UsageStatus = "critical"
	UsageExceeded UsageStatus = "exceeded"
)

// StatusForPercentage maps a 0-100 usage percentage to its bucket.
func StatusForPercentage(pct float64) UsageStatus {
	switch {
	case pct > 95:
		return UsageExceeded
	case pct > 80:
		return UsageCritical
	case pct >= 60:
		return UsageWarning
	default:
		return UsageHealthy
	}
}
