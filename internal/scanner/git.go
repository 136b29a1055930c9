package scanner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/andywolf/prpctl/internal/types"
)

// DefaultGitTimeout bounds every git subprocess invocation the scanner
// makes; a hung git process must not stall the whole scan queue.
const DefaultGitTimeout = 10 * time.Second

// DiscoveredWorktree is one entry parsed from `git worktree list --porcelain`.
type DiscoveredWorktree struct {
	Path   string
	Branch string
	Commit string
}

// ListWorktrees runs `git worktree list --porcelain` against repoRoot and
// parses the result. Wraps failures in ErrGitQueryFailed.
func ListWorktrees(ctx context.Context, repoRoot string) ([]DiscoveredWorktree, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultGitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "worktree", "list", "--porcelain")
	cmd.Dir = repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: git worktree list: %v", ErrGitQueryFailed, err)
	}

	var worktrees []DiscoveredWorktree
	var cur DiscoveredWorktree
	flush := func() {
		if cur.Path != "" {
			worktrees = append(worktrees, cur)
		}
		cur = DiscoveredWorktree{}
	}

	for _, line := range strings.Split(string(out), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()

	return worktrees, nil
}

// GitStatusDirty reports whether the worktree at path has any uncommitted
// changes, using `git status --porcelain`. Wraps failures in ErrGitQueryFailed.
func GitStatusDirty(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultGitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("%w: git status: %v", ErrGitQueryFailed, err)
	}
	return strings.TrimSpace(string(out)) != "", nil
}

// CheckoutBranch switches path to branch, creating it off the current
// HEAD if it does not already exist. Wraps failures in ErrGitQueryFailed.
func CheckoutBranch(ctx context.Context, path, branch string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultGitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "checkout", branch)
	cmd.Dir = path
	if err := cmd.Run(); err == nil {
		return nil
	}

	createCtx, createCancel := context.WithTimeout(context.Background(), DefaultGitTimeout)
	defer createCancel()
	create := exec.CommandContext(createCtx, "git", "checkout", "-b", branch)
	create.Dir = path
	if err := create.Run(); err != nil {
		return fmt.Errorf("%w: git checkout -b %s: %v", ErrGitQueryFailed, branch, err)
	}
	return nil
}

// NewMonitor constructs a WorktreeMonitor for a discovered worktree,
// failing with ErrWorktreePathMissing if the directory does not exist.
func NewMonitor(w DiscoveredWorktree, scanInterval time.Duration) (*types.WorktreeMonitor, error) {
	if _, err := os.Stat(w.Path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorktreePathMissing, w.Path)
	}
	return &types.WorktreeMonitor{
		Name:         filepath.Base(w.Path),
		Path:         w.Path,
		Branch:       w.Branch,
		Commit:       w.Commit,
		Status:       types.MonitorActive,
		ScanInterval: scanInterval,
	}, nil
}
