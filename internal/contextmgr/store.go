package contextmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// SharedContextSnapshot is the serialized form of the war-room memo plus
// whatever cross-PRP sections were live at save time, per §6's
// context/shared-context.json.
type SharedContextSnapshot struct {
	WarRoom  types.WarRoomMemo       `json:"war_room"`
	Sections []types.ContextSection  `json:"sections"`
	SavedAt  time.Time               `json:"saved_at"`
}

// PRPSnapshot is one PRP's section list, persisted to
// context/prp-<name>.json.
type PRPSnapshot struct {
	Name     string                 `json:"name"`
	Sections []types.ContextSection `json:"sections"`
	SavedAt  time.Time              `json:"saved_at"`
}

// Store persists SharedContext and per-PRP snapshots under a repo's
// .prp/context directory, mutex-guarded and load-on-construct like
// the handoff package's task store.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore creates (if absent) a context subdirectory under baseDir
// (typically the same .prp directory the token ledger persists to) and
// returns a Store rooted there. It does not eagerly load anything:
// callers read specific snapshots with LoadShared / LoadPRP as needed.
func NewStore(baseDir string) (*Store, error) {
	dir := filepath.Join(baseDir, "context")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create context store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) sharedPath() string {
	return filepath.Join(s.dir, "shared-context.json")
}

func (s *Store) prpPath(name string) string {
	return filepath.Join(s.dir, "prp-"+name+".json")
}

// SaveShared writes the current memo and sections as the shared-context
// snapshot, overwriting whatever was there before.
func (s *Store) SaveShared(memo types.WarRoomMemo, sections []types.ContextSection, now time.Time) error {
	snap := SharedContextSnapshot{WarRoom: memo, Sections: sections, SavedAt: now}
	return s.write(s.sharedPath(), snap)
}

// LoadShared reads back the shared-context snapshot. A missing file is
// not an error; it reports a zero-value snapshot so callers can treat
// first-run and post-save identically.
func (s *Store) LoadShared() (SharedContextSnapshot, error) {
	var snap SharedContextSnapshot
	ok, err := s.read(s.sharedPath(), &snap)
	if err != nil || !ok {
		return SharedContextSnapshot{}, err
	}
	return snap, nil
}

// SavePRP writes one PRP's section list to context/prp-<name>.json.
func (s *Store) SavePRP(name string, sections []types.ContextSection, now time.Time) error {
	snap := PRPSnapshot{Name: name, Sections: sections, SavedAt: now}
	return s.write(s.prpPath(name), snap)
}

// LoadPRP reads back one PRP's section snapshot. A missing file reports
// ok=false rather than an error.
func (s *Store) LoadPRP(name string) (PRPSnapshot, bool, error) {
	var snap PRPSnapshot
	ok, err := s.read(s.prpPath(name), &snap)
	return snap, ok, err
}

func (s *Store) write(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) read(path string, v any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read context snapshot: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse context snapshot %s: %w", path, err)
	}
	return true, nil
}
