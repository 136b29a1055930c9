package scanner

import "errors"

// Sentinel errors matching the system's error taxonomy. Callers use
// errors.Is to decide whether a failure demotes a monitor, is retried, or
// is surfaced to the user.
var (
	ErrWorktreePathMissing = errors.New("worktree path missing")
	ErrGitQueryFailed      = errors.New("git query failed")
	ErrSignalParseFailed   = errors.New("signal parse failed")
)
