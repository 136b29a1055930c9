// Package types holds the data model shared across the scanner, bus,
// orchestrator, supervisor, and token-accounting packages. Keeping these
// types leaf-level (no imports from sibling packages) avoids import cycles
// in a system where every component references the same handful of shapes.
package types

import "time"

// SignalCode is a two-letter signal code extracted from watched file
// content or emitted by a running agent (e.g. "Bb" for blocker, "Cc" for
// complete). Codes are case-sensitive as written by agents; callers that
// need a canonical form should use SignalKind.
type SignalCode string

// SignalKind is the canonical, case-normalized classification of a
// SignalCode, used to pick a SignalPayload variant and an urgency bucket.
type SignalKind string

const (
	KindBlocker  SignalKind = "blocker"
	KindProgress SignalKind = "progress"
	KindTestFail SignalKind = "test_fail"
	KindComplete SignalKind = "complete"
	KindCrash    SignalKind = "crash"
	KindHandoff     SignalKind = "handoff"
	KindGeneric     SignalKind = "generic"
	KindDevelopment SignalKind = "development"
)

// Urgency buckets: critical >=9, high 7-8, medium 4-6, low <=3.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// UrgencyForPriority maps a 1-10 priority to its default urgency bucket.
func UrgencyForPriority(priority int) Urgency {
	switch {
	case priority >= 9:
		return UrgencyCritical
	case priority >= 7:
		return UrgencyHigh
	case priority >= 4:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// SignalPayload is a tagged union of structured payload variants. Exactly
// one of the typed fields is populated, selected by Kind. This replaces a
// free-form map per the "dynamic typing of signal payloads" design note.
type SignalPayload struct {
	Kind     SignalKind
	Blocker  *BlockerPayload  `json:"blocker,omitempty"`
	Progress *ProgressPayload `json:"progress,omitempty"`
	TestFail *TestFailPayload `json:"test_fail,omitempty"`
	Complete *CompletePayload `json:"complete,omitempty"`
	Crash    *CrashPayload    `json:"crash,omitempty"`
	Generic  *GenericPayload  `json:"generic,omitempty"`
	Development *DevelopmentPayload `json:"development,omitempty"`
}

// BlockerPayload describes why progress on a PRP is stuck.
type BlockerPayload struct {
	Reason string `json:"reason"`
}

// ProgressPayload describes a single progress-log style update.
type ProgressPayload struct {
	Summary string `json:"summary"`
}

// TestFailPayload carries a failing-test summary.
type TestFailPayload struct {
	Suite   string `json:"suite,omitempty"`
	Summary string `json:"summary"`
}

// CompletePayload marks a PRP or task as done.
type CompletePayload struct {
	Summary string `json:"summary,omitempty"`
}

// CrashPayload carries the tail of an agent crash.
type CrashPayload struct {
	ExitCode int    `json:"exit_code"`
	Tail     string `json:"tail,omitempty"`
}

// DevelopmentPayload carries one line of an agent process's stdout/stderr,
// forwarded onto the bus as it is produced.
type DevelopmentPayload struct {
	Stream string `json:"stream"` // "stdout" | "stderr"
	Line   string `json:"line"`
}

// GenericPayload is the fallback for unrecognized signal codes: the raw
// text captured after the code, preserved verbatim rather than dropped.
type GenericPayload struct {
	Raw string `json:"raw"`
}

// Signal is a discrete, immutable event extracted from a PRP/watched file
// or emitted directly by an agent process.
type Signal struct {
	ID        string            `json:"id"`
	Code      SignalCode        `json:"code"`
	Kind      SignalKind        `json:"kind"`
	Priority  int               `json:"priority"` // 1-10
	Source    string            `json:"source"`   // "scanner" | "orchestrator" | "user" | agent instance id | "enforcement"
	Timestamp time.Time         `json:"timestamp"`
	Payload   SignalPayload     `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"` // worktree, file path, prp id, cycle id
}

// Urgency returns the urgency bucket for this signal's priority.
func (s Signal) Urgency() Urgency {
	return UrgencyForPriority(s.Priority)
}
