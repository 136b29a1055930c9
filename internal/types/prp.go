package types

import "time"

// ProgressEntry is one timestamped line in a PRP's progress log.
type ProgressEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// PRPFile is a parsed markdown "Product Requirement Prompt" document.
// The signal list is a pure function of the file's bytes: re-parsing
// identical content must yield an identical list, so PRPFile never
// carries derived state that parsing didn't produce.
type PRPFile struct {
	Path         string          `json:"path"`
	Name         string          `json:"name"` // filename stem
	Goal         string          `json:"goal"` // first H1
	Progress     []ProgressEntry `json:"progress"`
	Signals      []Signal        `json:"signals"`
	LastModified time.Time       `json:"last_modified"`
	ParseErrors  []string        `json:"parse_errors,omitempty"`
}

// PRPStatus is the orchestrator-tracked lifecycle status of a PRP's task.
type PRPStatus string

const (
	PRPStatusUnassigned PRPStatus = "unassigned"
	PRPStatusInProgress PRPStatus = "in_progress"
	PRPStatusBlocked    PRPStatus = "blocked"
	PRPStatusStalled    PRPStatus = "stalled"
	PRPStatusCompleted  PRPStatus = "completed"
	PRPStatusFailed     PRPStatus = "failed"
)
