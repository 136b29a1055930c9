package security

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/andywolf/prpctl/internal/types"
)

// dangerousArgPatterns are shell metacharacters that indicate an argument
// is attempting injection rather than passing a plain value through to
// the spawned agent process.
var dangerousArgPatterns = []string{
	"$(", "${", "`", "&&", "||", ";", ">", "<", ">>", "&", "\n", "\r",
}

// CommandValidator enforces an AgentConfiguration's Environment
// allow/block lists before the supervisor execs a child process. It is
// constructed per spawn request so the allow list reflects that
// configuration rather than a process-wide default.
type CommandValidator struct {
	allowed map[string]bool
	blocked map[string]bool
	paths   []string
}

// NewCommandValidator builds a validator from one AgentConfiguration's
// Environment. An empty AllowedCommands list means "no restriction beyond
// BlockedCommands" — most configurations only need to name what to block.
func NewCommandValidator(env types.AgentEnvironment) *CommandValidator {
	v := &CommandValidator{
		allowed: make(map[string]bool, len(env.AllowedCommands)),
		blocked: make(map[string]bool, len(env.BlockedCommands)),
		paths:   env.AllowedFilePaths,
	}
	for _, c := range env.AllowedCommands {
		v.allowed[c] = true
	}
	for _, c := range env.BlockedCommands {
		v.blocked[c] = true
	}
	return v
}

// ValidateCommand checks the binary and argv the supervisor is about to
// exec against the configuration's allow/block lists and basic shell
// injection patterns.
func (v *CommandValidator) ValidateCommand(cmd string, args []string) error {
	base := filepath.Base(cmd)
	if v.blocked[base] {
		return fmt.Errorf("command is blocked: %s", base)
	}
	if len(v.allowed) > 0 && !v.allowed[base] {
		return fmt.Errorf("command not in allowed list: %s", base)
	}
	for _, arg := range args {
		if err := validateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument: %w", err)
		}
	}
	return nil
}

func validateArgument(arg string) error {
	for _, pattern := range dangerousArgPatterns {
		if strings.Contains(arg, pattern) {
			if pattern == "|" && strings.HasPrefix(arg, "grep ") {
				continue
			}
			return fmt.Errorf("argument contains dangerous pattern: %s", pattern)
		}
	}
	return nil
}

// ValidatePath checks a path the agent process will be given access to
// (its working directory, or a file path named in a signal) against the
// configuration's AllowedFilePaths and basic traversal protection. An
// empty AllowedFilePaths list means no additional restriction.
func (v *CommandValidator) ValidatePath(path string) error {
	clean := filepath.Clean(path)
	if strings.Contains(clean, "..") {
		return fmt.Errorf("path traversal detected: %s", path)
	}
	if len(v.paths) == 0 {
		return nil
	}
	for _, allowed := range v.paths {
		if strings.HasPrefix(clean, filepath.Clean(allowed)) {
			return nil
		}
	}
	return fmt.Errorf("path outside allowed list: %s", path)
}

// ValidateGitRef validates a git reference (branch, tag, commit) the
// orchestrator is about to check out, rejecting anything that isn't a
// plain ref name.
func ValidateGitRef(ref string) error {
	gitRefPattern := regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	if !gitRefPattern.MatchString(ref) {
		return fmt.Errorf("invalid git ref format: %s", ref)
	}
	return nil
}
