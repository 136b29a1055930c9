package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/prp"
	"github.com/andywolf/prpctl/internal/types"
)

// DefaultScanInterval is how often a healthy monitor is swept in full,
// independent of filesystem events.
const DefaultScanInterval = 30 * time.Second

// DefaultMaxConcurrentScans bounds how many worktree scans run at once.
const DefaultMaxConcurrentScans = 5

// DefaultDemoteAfter is the number of consecutive scan failures before a
// monitor is flipped to error status and skipped from periodic sweeps.
const DefaultDemoteAfter = 3

// betweenScansDelay is a small fixed pause inserted between finished scans
// so a burst of queued requests doesn't starve the event loop.
const betweenScansDelay = 20 * time.Millisecond

// scanKind distinguishes a full worktree sweep from an incremental,
// single-path rescan; full supersedes incremental for the same worktree.
type scanKind int

const (
	scanIncremental scanKind = iota
	scanFull
)

type scanRequest struct {
	worktree string
	path     string // only set for incremental
	kind     scanKind
}

// Pool owns the full set of WorktreeMonitor state and drives scanning. One
// Pool exists per running system.
type Pool struct {
	mu       sync.RWMutex
	monitors map[string]*types.WorktreeMonitor
	caches   map[string]*prp.Cache

	bus          *bus.Bus
	maxConcurrent int
	demoteAfter   int

	reqMu    sync.Mutex
	pending  map[string]scanRequest // worktree -> collapsed request
	reqCh    chan struct{}          // signals a new request is pending

	watcher *Watcher
}

// NewPool constructs an empty Pool publishing onto the given bus.
func NewPool(b *bus.Bus, maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentScans
	}
	return &Pool{
		monitors:      make(map[string]*types.WorktreeMonitor),
		caches:        make(map[string]*prp.Cache),
		bus:           b,
		maxConcurrent: maxConcurrent,
		demoteAfter:   DefaultDemoteAfter,
		pending:       make(map[string]scanRequest),
		reqCh:         make(chan struct{}, 1),
	}
}

// AddWorktree registers a new monitor for a discovered worktree and starts
// watching its filesystem. Fails with ErrWorktreePathMissing if absent.
func (p *Pool) AddWorktree(ctx context.Context, w DiscoveredWorktree) error {
	m, err := NewMonitor(w, DefaultScanInterval)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.monitors[m.Name] = m
	p.caches[m.Name] = prp.NewCache(prp.DefaultCacheBound)
	p.mu.Unlock()

	p.Enqueue(m.Name, "", scanFull)
	return nil
}

// RemoveWorktree drops a monitor and its cache entirely.
func (p *Pool) RemoveWorktree(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.monitors, name)
	delete(p.caches, name)
}

// Monitor returns the current snapshot for a named worktree monitor.
func (p *Pool) Monitor(name string) (types.WorktreeMonitor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.monitors[name]
	if !ok {
		return types.WorktreeMonitor{}, false
	}
	return *m, true
}

// Monitors returns a snapshot of every registered monitor.
func (p *Pool) Monitors() []types.WorktreeMonitor {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.WorktreeMonitor, 0, len(p.monitors))
	for _, m := range p.monitors {
		out = append(out, *m)
	}
	return out
}

// PRPs returns a snapshot of every PRP file currently cached for a
// worktree, for callers (the orchestrator) that need to enumerate and
// prioritize work across worktrees. Returns nil for an unknown worktree.
func (p *Pool) PRPs(worktree string) []*types.PRPFile {
	p.mu.RLock()
	cache, ok := p.caches[worktree]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	return cache.All()
}

// AllPRPs returns every cached PRP file across every known worktree,
// keyed by worktree name.
func (p *Pool) AllPRPs() map[string][]*types.PRPFile {
	p.mu.RLock()
	names := make([]string, 0, len(p.caches))
	for name := range p.caches {
		names = append(names, name)
	}
	p.mu.RUnlock()

	out := make(map[string][]*types.PRPFile, len(names))
	for _, name := range names {
		if prps := p.PRPs(name); len(prps) > 0 {
			out[name] = prps
		}
	}
	return out
}

// Enqueue submits a scan request for worktree. A full request collapses
// any pending incremental request for the same worktree; duplicate
// requests of the same or lesser kind are dropped.
func (p *Pool) Enqueue(worktree, path string, kind scanKind) {
	p.reqMu.Lock()
	existing, ok := p.pending[worktree]
	if !ok || kind >= existing.kind {
		p.pending[worktree] = scanRequest{worktree: worktree, path: path, kind: kind}
	}
	p.reqMu.Unlock()

	select {
	case p.reqCh <- struct{}{}:
	default:
	}
}

// drainPending removes and returns every currently queued scan request.
func (p *Pool) drainPending() []scanRequest {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	out := make([]scanRequest, 0, len(p.pending))
	for _, r := range p.pending {
		out = append(out, r)
	}
	p.pending = make(map[string]scanRequest)
	return out
}

// Run drives the scan queue and periodic sweep until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	sweep := time.NewTicker(DefaultScanInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			p.enqueueFullSweep()
			p.drainAndScan(ctx)
		case <-p.reqCh:
			p.drainAndScan(ctx)
		}
	}
}

func (p *Pool) enqueueFullSweep() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for name, m := range p.monitors {
		if m.Status == types.MonitorError {
			continue
		}
		p.Enqueue(name, "", scanFull)
	}
}

func (p *Pool) drainAndScan(ctx context.Context) {
	requests := p.drainPending()
	if len(requests) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for _, req := range requests {
		req := req
		g.Go(func() error {
			p.scanOne(gctx, req)
			time.Sleep(betweenScansDelay)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) scanOne(ctx context.Context, req scanRequest) {
	p.mu.RLock()
	m, ok := p.monitors[req.worktree]
	cache := p.caches[req.worktree]
	p.mu.RUnlock()
	if !ok {
		return
	}

	start := time.Now()
	m.Status = types.MonitorScanning

	changes, err := p.scanWorktree(ctx, m, cache, req)
	dur := time.Since(start)

	p.mu.Lock()
	if err != nil {
		m.RecordFailure(p.demoteAfter)
	} else {
		m.RecordSuccess()
		m.LastScan = time.Now()
	}
	m.Metrics.Record(dur, len(changes), err != nil)
	p.mu.Unlock()

	if len(changes) > 0 {
		p.bus.Publish(bus.TopicFileChanges, changes)
	}
}

// scanWorktree performs one full or incremental scan, returning the
// FileChange events it derived and publishing any extracted signals.
func (p *Pool) scanWorktree(ctx context.Context, m *types.WorktreeMonitor, cache *prp.Cache, req scanRequest) ([]types.FileChange, error) {
	if _, err := GitStatusDirty(ctx, m.Path); err != nil {
		return nil, err
	}

	var paths []string
	if req.kind == scanFull || req.path == "" {
		entries, err := os.ReadDir(filepath.Join(m.Path, "PRPs"))
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
					paths = append(paths, filepath.Join(m.Path, "PRPs", e.Name()))
				}
			}
		}
	} else {
		paths = []string{req.path}
	}

	var changes []types.FileChange
	for _, path := range paths {
		if !prp.IsPRPPath(m.Path, path) {
			continue
		}
		change, sigs, err := p.scanFile(m, cache, path)
		if err != nil {
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
		if len(sigs) > 0 {
			p.bus.Publish(bus.TopicSignals, sigs)
		}
	}

	return changes, nil
}

func (p *Pool) scanFile(m *types.WorktreeMonitor, cache *prp.Cache, path string) (*types.FileChange, []types.Signal, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGitQueryFailed, err)
	}

	_, cachedModTime, hit := cache.Get(path)
	if hit && !info.ModTime().After(cachedModTime) {
		return nil, nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSignalParseFailed, err)
	}

	parsed := prp.Parse(path, content, info.ModTime())
	cache.Put(path, parsed, info.ModTime())

	rel, _ := filepath.Rel(m.Path, path)
	change := &types.FileChange{
		WorktreeName:    m.Name,
		Path:            rel,
		Type:            types.ChangeModified,
		Size:            info.Size(),
		ContentHash:     hashContent(content),
		Timestamp:       time.Now(),
		EstimatedTokens: len(content) / 4,
	}

	sigs := make([]types.Signal, len(parsed.Signals))
	copy(sigs, parsed.Signals)
	for i := range sigs {
		if sigs[i].Metadata == nil {
			sigs[i].Metadata = map[string]string{}
		}
		sigs[i].Metadata["worktree"] = m.Name
	}

	return change, sigs, nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:8])
}
