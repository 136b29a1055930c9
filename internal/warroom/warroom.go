// Package warroom owns the shared status memo and publishes a
// warroom_updated event on every mutation.
package warroom

import (
	"sync"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/types"
)

// DefaultMaxItems bounds each memo section, matching types.NewWarRoomMemo's default.
const DefaultMaxItems = 50

// Board owns the single running WarRoomMemo for the system and publishes
// an update event to the bus after every mutation.
type Board struct {
	mu   sync.Mutex
	memo *types.WarRoomMemo
	bus  *bus.Bus
}

// NewBoard constructs a Board with an empty memo bounded at maxItems (0 uses the default).
func NewBoard(b *bus.Bus, maxItems int) *Board {
	return &Board{memo: types.NewWarRoomMemo(maxItems), bus: b}
}

// Snapshot returns a copy of the current memo.
func (w *Board) Snapshot() types.WarRoomMemo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.memo
}

func (w *Board) publish() {
	w.bus.Publish(bus.TopicWarRoom, *w.memo)
}

// AddDone appends an item to the done section.
func (w *Board) AddDone(item string) {
	w.mu.Lock()
	w.memo.AddDone(item)
	w.mu.Unlock()
	w.publish()
}

// AddDoing appends an item to the doing section.
func (w *Board) AddDoing(item string) {
	w.mu.Lock()
	w.memo.AddDoing(item)
	w.mu.Unlock()
	w.publish()
}

// AddNext appends an item to the next section.
func (w *Board) AddNext(item string) {
	w.mu.Lock()
	w.memo.AddNext(item)
	w.mu.Unlock()
	w.publish()
}

// AddBlocker appends an item to the blockers section.
func (w *Board) AddBlocker(item string) {
	w.mu.Lock()
	w.memo.AddBlocker(item)
	w.mu.Unlock()
	w.publish()
}

// AddNote appends an item to the notes section.
func (w *Board) AddNote(item string) {
	w.mu.Lock()
	w.memo.AddNote(item)
	w.mu.Unlock()
	w.publish()
}

// MoveDoingToDone moves the doing entry at index i into done. Moving the
// same index twice from a state where it no longer exists is a no-op
// both times, so repeated calls are idempotent.
func (w *Board) MoveDoingToDone(i int) {
	w.mu.Lock()
	w.memo.MoveDoingToDone(i)
	w.mu.Unlock()
	w.publish()
}

// ArchiveBlocker removes the blocker entry at index i.
func (w *Board) ArchiveBlocker(i int) {
	w.mu.Lock()
	w.memo.ArchiveBlocker(i)
	w.mu.Unlock()
	w.publish()
}

// Move relocates item from one named section to another. A no-op when
// item is absent from from, so repeated calls are idempotent.
func (w *Board) Move(from, to types.WarRoomSection, item string) bool {
	w.mu.Lock()
	moved := w.memo.Move(from, to, item)
	w.mu.Unlock()
	w.publish()
	return moved
}

// Archive trims every section down to at most half its cap, used to
// periodically shed stale done/notes/blockers history.
func (w *Board) Archive(olderThanDays int) {
	w.mu.Lock()
	w.memo.Archive(olderThanDays)
	w.mu.Unlock()
	w.publish()
}
