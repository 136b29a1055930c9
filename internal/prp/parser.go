// Package prp parses Product Requirement Prompt markdown files and
// caches the parsed result per worktree.
package prp

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/andywolf/prpctl/internal/signals"
	"github.com/andywolf/prpctl/internal/types"
)

// progressLinePattern matches a progress log entry of the form:
// "- 2026-03-01T10:00:00Z did the thing" or "- [2026-03-01 10:00] did the thing".
var progressLinePattern = regexp.MustCompile(`^[-*]\s*\[?(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?Z?)\]?\s+(.*)$`)

var h1Pattern = regexp.MustCompile(`^#\s+(.+)$`)

// Parse reads a PRP file's content into a PRPFile. Re-parsing identical
// bytes always yields an identical Signals list and Progress log; Parse
// has no side effects beyond reading the clock for LastModified, which
// callers should set from the file's mtime instead when available.
func Parse(path string, content []byte, modTime time.Time) *types.PRPFile {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	f := &types.PRPFile{
		Path:         path,
		Name:         name,
		LastModified: modTime,
	}

	inProgressSection := false
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if f.Goal == "" {
			if m := h1Pattern.FindStringSubmatch(line); m != nil {
				f.Goal = strings.TrimSpace(m[1])
				continue
			}
		}

		lower := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(lower, "## progress") {
			inProgressSection = true
			continue
		}
		if strings.HasPrefix(line, "## ") {
			inProgressSection = false
			continue
		}

		if inProgressSection {
			if m := progressLinePattern.FindStringSubmatch(line); m != nil {
				ts, err := parseTimestamp(m[1])
				if err != nil {
					f.ParseErrors = append(f.ParseErrors, fmt.Sprintf("progress entry %q: %v", line, err))
					continue
				}
				f.Progress = append(f.Progress, types.ProgressEntry{Timestamp: ts, Text: m[2]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		f.ParseErrors = append(f.ParseErrors, err.Error())
	}

	f.Signals = signals.Extract(string(content), "scanner", map[string]string{
		"prp_path": path,
		"prp_name": name,
	})

	return f
}

func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// RecentProgress returns up to n of the most recent progress entries, in
// chronological order, used by the context manager when packing a PRP
// goal-and-progress section.
func RecentProgress(f *types.PRPFile, n int) []types.ProgressEntry {
	if n <= 0 || len(f.Progress) <= n {
		return f.Progress
	}
	return f.Progress[len(f.Progress)-n:]
}

// IsPRPPath reports whether path names a file the scanner should treat as
// a PRP document: anything under a PRPs/ directory, or any top-level .md
// file within the worktree root.
func IsPRPPath(worktreeRoot, path string) bool {
	rel, err := filepath.Rel(worktreeRoot, path)
	if err != nil {
		return false
	}
	if strings.HasPrefix(rel, "PRPs"+string(filepath.Separator)) {
		return strings.HasSuffix(rel, ".md")
	}
	return filepath.Ext(rel) == ".md" && !strings.Contains(rel, string(filepath.Separator))
}
