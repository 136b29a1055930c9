package types

import "time"

// AggregationStrategy selects how the context manager merges multiple
// ContextSection candidates into a single packed context.
type AggregationStrategy string

const (
	AggregateMerge           AggregationStrategy = "merge"
	AggregatePriorityBased   AggregationStrategy = "priority_based"
	AggregateTokenOptimized  AggregationStrategy = "token_optimized"
	AggregateRelevanceScored AggregationStrategy = "relevance_scored"
)

// ContextSection is one named, independently-budgeted piece of content the
// packing algorithm may include, compress, or drop when building an
// agent's working context.
type ContextSection struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Content         string            `json:"content"`
	EstimatedTokens int               `json:"estimated_tokens"`
	Priority        int               `json:"priority"` // 1-10, higher packs first
	Required        bool              `json:"required"`
	Compressible    bool              `json:"compressible"`
	Version         int               `json:"version"`
	Source          string            `json:"source"`
	Tags            []string          `json:"tags,omitempty"`
	Permissions     []string          `json:"permissions,omitempty"`
	Dependencies    []string          `json:"dependencies,omitempty"` // other section IDs
	LastUpdated     time.Time         `json:"last_updated"`
	LastAccessed    time.Time         `json:"last_accessed"`
	AccessCount     int               `json:"access_count"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Touch records an access, bumping the access count and timestamp. Used
// by the cache's eviction scoring.
func (s *ContextSection) Touch(now time.Time) {
	s.AccessCount++
	s.LastAccessed = now
}

// WarRoomMemo is the shared five-section status board the orchestrator
// and agents append to; each section is capped at MaxItems, dropping the
// oldest entry once full.
type WarRoomMemo struct {
	Done     []string `json:"done"`
	Doing    []string `json:"doing"`
	Next     []string `json:"next"`
	Blockers []string `json:"blockers"`
	Notes    []string `json:"notes"`
	MaxItems int      `json:"max_items"`
}

// NewWarRoomMemo returns an empty memo with the given per-section cap.
func NewWarRoomMemo(maxItems int) *WarRoomMemo {
	if maxItems <= 0 {
		maxItems = 50
	}
	return &WarRoomMemo{MaxItems: maxItems}
}

func appendBounded(list []string, item string, maxItems int) []string {
	list = append(list, item)
	if len(list) > maxItems {
		list = list[len(list)-maxItems:]
	}
	return list
}

// AddDone appends to the done section, dropping the oldest entry past MaxItems.
func (m *WarRoomMemo) AddDone(item string) { m.Done = appendBounded(m.Done, item, m.MaxItems) }

// AddDoing appends to the doing section, dropping the oldest entry past MaxItems.
func (m *WarRoomMemo) AddDoing(item string) { m.Doing = appendBounded(m.Doing, item, m.MaxItems) }

// AddNext appends to the next section, dropping the oldest entry past MaxItems.
func (m *WarRoomMemo) AddNext(item string) { m.Next = appendBounded(m.Next, item, m.MaxItems) }

// AddBlocker appends to the blockers section, dropping the oldest entry past MaxItems.
func (m *WarRoomMemo) AddBlocker(item string) { m.Blockers = appendBounded(m.Blockers, item, m.MaxItems) }

// AddNote appends to the notes section, dropping the oldest entry past MaxItems.
func (m *WarRoomMemo) AddNote(item string) { m.Notes = appendBounded(m.Notes, item, m.MaxItems) }

// MoveDoingToDone moves the doing entry at index i to the done section. A
// no-op if the index is out of range.
func (m *WarRoomMemo) MoveDoingToDone(i int) {
	if i < 0 || i >= len(m.Doing) {
		return
	}
	item := m.Doing[i]
	m.Doing = append(m.Doing[:i], m.Doing[i+1:]...)
	m.AddDone(item)
}

// ArchiveBlocker removes the blocker entry at index i, typically once it
// has been resolved. A no-op if the index is out of range.
func (m *WarRoomMemo) ArchiveBlocker(i int) {
	if i < 0 || i >= len(m.Blockers) {
		return
	}
	m.Blockers = append(m.Blockers[:i], m.Blockers[i+1:]...)
}

// WarRoomSection names one of the memo's five bounded sequences.
type WarRoomSection string

const (
	SectionDone     WarRoomSection = "done"
	SectionDoing    WarRoomSection = "doing"
	SectionNext     WarRoomSection = "next"
	SectionBlockers WarRoomSection = "blockers"
	SectionNotes    WarRoomSection = "notes"
)

// section returns a pointer to the named section's backing slice, so
// callers can both read and mutate it in place. Returns nil for an
// unrecognized name.
func (m *WarRoomMemo) section(name WarRoomSection) *[]string {
	switch name {
	case SectionDone:
		return &m.Done
	case SectionDoing:
		return &m.Doing
	case SectionNext:
		return &m.Next
	case SectionBlockers:
		return &m.Blockers
	case SectionNotes:
		return &m.Notes
	default:
		return nil
	}
}

// Move relocates item from one named section to another by value,
// per §4.4's move(from, to, item). A no-op — and so idempotent under
// repetition — when item is not present in from.
func (m *WarRoomMemo) Move(from, to WarRoomSection, item string) bool {
	src := m.section(from)
	dst := m.section(to)
	if src == nil || dst == nil {
		return false
	}
	idx := -1
	for i, v := range *src {
		if v == item {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	*src = append((*src)[:idx], (*src)[idx+1:]...)
	*dst = appendBounded(*dst, item, m.MaxItems)
	return true
}

// Archive trims every section down to at most half of MaxItems,
// dropping the oldest entries first, per §4.4's
// archive(olderThanDays). Individual items carry no per-entry
// timestamp (§3: each section is a plain ordered string sequence), so
// age is approximated by position: the oldest entries sit at the front
// of each section, and those are exactly what overflow eviction has
// already been dropping.
func (m *WarRoomMemo) Archive(olderThanDays int) {
	half := m.MaxItems / 2
	for _, name := range []WarRoomSection{SectionDone, SectionDoing, SectionNext, SectionBlockers, SectionNotes} {
		s := m.section(name)
		if len(*s) > half {
			*s = (*s)[len(*s)-half:]
		}
	}
}
