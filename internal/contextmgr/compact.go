package contextmgr

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

// DefaultHighWaterMark is the fraction of total budget that triggers a
// compaction task.
const DefaultHighWaterMark = 0.85

// DefaultPreserveRecent is how many war-room/PRP entries a compaction
// keeps per section.
const DefaultPreserveRecent = 10

// DefaultShrinkRatio is the target size compressible sections shrink
// toward during compaction.
const DefaultShrinkRatio = 0.70

// CompactionResult is published as compaction_completed via the bus's
// war-room topic, carrying before/after sizes.
type CompactionResult struct {
	BeforeTokens int
	AfterTokens  int
	Timestamp    time.Time
}

// Manager owns the single-flight compaction guard for one running system.
type Manager struct {
	mu            sync.Mutex
	group         singleflight.Group
	highWaterMark float64
	preserveRecent int
	shrinkRatio    float64
	bus            *bus.Bus
}

// NewManager constructs a Manager with the default high-water mark,
// preserve-recent count, and shrink ratio.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{
		highWaterMark:  DefaultHighWaterMark,
		preserveRecent: DefaultPreserveRecent,
		shrinkRatio:    DefaultShrinkRatio,
		bus:            b,
	}
}

// ShouldCompact reports whether usedTokens against totalBudget crosses
// the high-water mark.
func (m *Manager) ShouldCompact(usedTokens, totalBudget int) bool {
	if totalBudget <= 0 {
		return false
	}
	return float64(usedTokens)/float64(totalBudget) >= m.highWaterMark
}

// CompactWarRoom keeps at most preserveRecent items per section.
func (m *Manager) CompactWarRoom(memo *types.WarRoomMemo) {
	memo.Done = lastN(memo.Done, m.preserveRecent)
	memo.Doing = lastN(memo.Doing, m.preserveRecent)
	memo.Next = lastN(memo.Next, m.preserveRecent)
	memo.Blockers = lastN(memo.Blockers, m.preserveRecent)
	memo.Notes = lastN(memo.Notes, m.preserveRecent)
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

// CompactProgress drops PRP progress entries beyond preserveRecent.
func (m *Manager) CompactProgress(entries []types.ProgressEntry) []types.ProgressEntry {
	if len(entries) <= m.preserveRecent {
		return entries
	}
	return entries[len(entries)-m.preserveRecent:]
}

// ShrinkCompressible shrinks a compressible section's content toward
// shrinkRatio of its original size.
func (m *Manager) ShrinkCompressible(s *types.ContextSection) {
	if !s.Compressible {
		return
	}
	target := int(float64(len(s.Content)) * m.shrinkRatio)
	if target <= 0 || target >= len(s.Content) {
		return
	}
	s.Content = truncateToFit(s.Content, target/4)
	s.EstimatedTokens = estimateTokens(s.Content)
}

// Compact runs a single-flight compaction pass over memo, PRP progress
// sections, and compressible context sections. Concurrent callers during
// an in-flight compaction share its result rather than running twice.
func (m *Manager) Compact(memo *types.WarRoomMemo, sections []types.ContextSection) (CompactionResult, error) {
	v, err, _ := m.group.Do("compaction", func() (any, error) {
		before := 0
		for _, s := range sections {
			before += s.EstimatedTokens
		}

		m.CompactWarRoom(memo)
		for i := range sections {
			m.ShrinkCompressible(&sections[i])
		}

		after := 0
		for _, s := range sections {
			after += s.EstimatedTokens
		}

		result := CompactionResult{BeforeTokens: before, AfterTokens: after, Timestamp: time.Now()}
		if m.bus != nil {
			m.bus.Publish(bus.TopicWarRoom, result)
		}
		return result, nil
	})
	if err != nil {
		return CompactionResult{}, err
	}
	return v.(CompactionResult), nil
}
