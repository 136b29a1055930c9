package types

import "time"

// AgentRole identifies the function an agent configuration plays in the
// system. Roles prefixed "robo-" are never operated by a human; they are
// always supervisor-spawned and never receive interactive escalation.
type AgentRole string

const (
	RoleRoboImplementer AgentRole = "robo-implementer"
	RoleRoboReviewer    AgentRole = "robo-reviewer"
	RoleRoboTester      AgentRole = "robo-tester"
	RoleImplementer     AgentRole = "implementer"
	RoleReviewer        AgentRole = "reviewer"
	RoleGeneralist      AgentRole = "generalist"
)

// AgentProvider names the adapter used to spawn and talk to an agent
// process (claudecode, codex, aider, ...).
type AgentProvider string

// AgentCapabilities describes what an agent configuration is able to do;
// consulted by discovery's scoring function and by the supervisor's
// admission check.
type AgentCapabilities struct {
	Languages          []string `json:"languages,omitempty" mapstructure:"languages"`
	SupportsParallel   bool     `json:"supports_parallel" mapstructure:"supports_parallel"`
	MaxConcurrentTasks int      `json:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
	Tools              []string `json:"tools,omitempty" mapstructure:"tools"`
	CanReview          bool     `json:"can_review" mapstructure:"can_review"`
	CanTest            bool     `json:"can_test" mapstructure:"can_test"`
}

// Normalize enforces the invariant that non-parallel-capable agents carry
// at most one concurrent task.
func (c *AgentCapabilities) Normalize() {
	if !c.SupportsParallel && c.MaxConcurrentTasks > 1 {
		c.MaxConcurrentTasks = 1
	}
	if c.MaxConcurrentTasks < 1 {
		c.MaxConcurrentTasks = 1
	}
}

// AgentLimits bounds the resources a single spawned instance may consume.
type AgentLimits struct {
	MaxTokensPerRun   int           `json:"max_tokens_per_run" mapstructure:"max_tokens_per_run"`
	MaxRequestsPerDay int           `json:"max_requests_per_day" mapstructure:"max_requests_per_day"`
	MaxCostPerDay     float64       `json:"max_cost_per_day" mapstructure:"max_cost_per_day"`
	MaxRuntimePerTask time.Duration `json:"max_runtime_per_task" mapstructure:"max_runtime_per_task"`
	MaxMemoryMB       int           `json:"max_memory_mb" mapstructure:"max_memory_mb"`
	MaxRestarts       int           `json:"max_restarts" mapstructure:"max_restarts"`
}

// AgentPersonality carries free-form prompt-shaping fields the context
// manager folds into a spawned agent's initial context section.
type AgentPersonality struct {
	SystemPromptSuffix string            `json:"system_prompt_suffix,omitempty" mapstructure:"system_prompt_suffix"`
	Traits             map[string]string `json:"traits,omitempty" mapstructure:"traits"`
}

// AgentEnvironment names the working directory and process environment a
// spawned instance of this configuration runs under.
type AgentEnvironment struct {
	Binary           string            `json:"binary" mapstructure:"binary"`
	WorkingDirectory string            `json:"working_directory" mapstructure:"working_directory"`
	Env              map[string]string `json:"env,omitempty" mapstructure:"env"`
	Shell            string            `json:"shell,omitempty" mapstructure:"shell"`
	AllowedCommands  []string          `json:"allowed_commands,omitempty" mapstructure:"allowed_commands"`
	BlockedCommands  []string          `json:"blocked_commands,omitempty" mapstructure:"blocked_commands"`
	AllowedFilePaths []string          `json:"allowed_file_paths,omitempty" mapstructure:"allowed_file_paths"`
}

// AgentAuthentication names the credential source this configuration
// authenticates with; the secret itself is never stored here, only a
// reference the credentials package resolves at spawn time.
type AgentAuthentication struct {
	Kind          string        `json:"kind" mapstructure:"kind"` // "none" | "jwt" | "secret_ref"
	SecretRef     string        `json:"secret_ref,omitempty" mapstructure:"secret_ref"`
	TokenLifetime time.Duration `json:"token_lifetime,omitempty" mapstructure:"token_lifetime"`
}

// AgentConfiguration is the durable, user-authored description of one kind
// of agent the supervisor is permitted to spawn. Multiple SpawnedAgent
// instances may reference the same configuration concurrently, up to
// Capabilities.MaxConcurrentTasks.
type AgentConfiguration struct {
	ID             string              `json:"id" mapstructure:"id"`
	DisplayName    string              `json:"display_name" mapstructure:"display_name"`
	Type           string              `json:"type" mapstructure:"type"` // adapter key, e.g. "claudecode"
	Role           AgentRole           `json:"role" mapstructure:"role"`
	Provider       AgentProvider       `json:"provider" mapstructure:"provider"`
	Capabilities   AgentCapabilities   `json:"capabilities" mapstructure:"capabilities"`
	Limits         AgentLimits         `json:"limits" mapstructure:"limits"`
	Personality    AgentPersonality    `json:"personality,omitempty" mapstructure:"personality"`
	Environment    AgentEnvironment    `json:"environment" mapstructure:"environment"`
	Authentication AgentAuthentication `json:"authentication" mapstructure:"authentication"`
	Metadata       map[string]string   `json:"metadata,omitempty" mapstructure:"metadata"`
}

// AgentState is the lifecycle state of a SpawnedAgent process.
type AgentState string

const (
	AgentInitializing AgentState = "initializing"
	AgentStarting     AgentState = "starting"
	AgentRunning      AgentState = "running"
	AgentBusy         AgentState = "busy"
	AgentIdle         AgentState = "idle"
	AgentStopping     AgentState = "stopping"
	AgentStopped      AgentState = "stopped"
	AgentCrashed      AgentState = "crashed"
	AgentError        AgentState = "error"
)

// validAgentTransitions enumerates the edges of the SpawnedAgent lifecycle
// state machine. Kept as data rather than a switch so the supervisor and
// its tests can share one source of truth.
var validAgentTransitions = map[AgentState][]AgentState{
	AgentInitializing: {AgentStarting, AgentError},
	AgentStarting:      {AgentRunning, AgentError, AgentCrashed},
	AgentRunning:       {AgentBusy, AgentIdle, AgentStopping, AgentCrashed, AgentError},
	AgentBusy:          {AgentIdle, AgentStopping, AgentCrashed, AgentError},
	AgentIdle:          {AgentBusy, AgentStopping, AgentCrashed, AgentError},
	AgentStopping:      {AgentStopped, AgentCrashed},
	AgentStopped:       {},
	AgentCrashed:       {AgentStarting}, // restart
	AgentError:         {AgentStarting}, // restart
}

// CanTransition reports whether moving from the state to the next is a
// legal edge of the lifecycle state machine.
func CanTransition(from, to AgentState) bool {
	for _, s := range validAgentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state machine has no further automatic
// transitions without an explicit restart.
func (s AgentState) IsTerminal() bool {
	return s == AgentStopped
}

// AllocatedResources tracks one spawned agent's resource budget against
// its actual and peak consumption.
type AllocatedResources struct {
	AllocatedTokens   int     `json:"allocated_tokens"`
	UsedTokens        int     `json:"used_tokens"`
	PeakMemoryMB      int     `json:"peak_memory_mb"`
	AllocatedMemoryMB int     `json:"allocated_memory_mb"`
	AllocatedCPUPercent float64 `json:"allocated_cpu_percent"`
	AllocatedDiskMB   int     `json:"allocated_disk_mb"`
	AllocatedNetworkMbps float64 `json:"allocated_network_mbps"`
	MaxCostPerDay     float64 `json:"max_cost_per_day"`
}

// AgentPerformance is a running summary of one spawned agent's output
// quality and throughput, updated by the supervisor as signals arrive.
type AgentPerformance struct {
	TasksCompleted int           `json:"tasks_completed"`
	TasksFailed    int           `json:"tasks_failed"`
	AverageRuntime time.Duration `json:"average_runtime"`
	LastSignalAt   time.Time     `json:"last_signal_at"`
}

// AgentHealth is the supervisor's most recent verdict on a spawned agent's
// liveness, used by discovery's scoring function.
type AgentHealth struct {
	Healthy          bool      `json:"healthy"`
	LastCheckAt      time.Time `json:"last_check_at"`
	ConsecutiveFails int       `json:"consecutive_fails"`
	LastError        string    `json:"last_error,omitempty"`
}

// SpawnedAgent is one running (or terminated) instance of an
// AgentConfiguration, owned exclusively by the supervisor.
type SpawnedAgent struct {
	InstanceID    string              `json:"instance_id"`
	ConfigID      string              `json:"config_id"`
	PID           int                 `json:"pid"`
	State         AgentState          `json:"state"`
	RestartCount  int                 `json:"restart_count"`
	MaxRestarts   int                 `json:"max_restarts"`
	Resources     AllocatedResources  `json:"resources"`
	Performance   AgentPerformance    `json:"performance"`
	Health        AgentHealth         `json:"health"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
	TTL           time.Duration       `json:"ttl"`
	SpawnedAt     time.Time           `json:"spawned_at"`
	SpawnRequestID string             `json:"spawn_request_id"`
}

// Expired reports whether the instance has outlived its TTL.
func (a SpawnedAgent) Expired(now time.Time) bool {
	if a.TTL <= 0 {
		return false
	}
	return now.Sub(a.SpawnedAt) > a.TTL
}

// ExhaustedRestarts reports whether another crash should be treated as
// permanent failure rather than triggering an automatic restart.
func (a SpawnedAgent) ExhaustedRestarts() bool {
	return a.RestartCount >= a.MaxRestarts
}

// SpawnRequirements narrows which configs the supervisor may pick to
// satisfy a SpawnRequest.
type SpawnRequirements struct {
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	MinPerformance       float64       `json:"min_performance,omitempty"`
	MaxCost              float64       `json:"max_cost,omitempty"`
	RequiredTools        []string      `json:"required_tools,omitempty"`
	Env                  map[string]string `json:"env,omitempty"`
	MinMemoryMB          int           `json:"min_memory_mb,omitempty"`
}

// SpawnOptions tunes the spawn flow's retry, reuse, and shutdown behavior.
type SpawnOptions struct {
	ReuseExisting           bool          `json:"reuse_existing"`
	TTL                     time.Duration `json:"ttl,omitempty"`
	MaxRetries              int           `json:"max_retries,omitempty"`
	RetryDelay              time.Duration `json:"retry_delay,omitempty"`
	GracefulShutdownTimeout time.Duration `json:"graceful_shutdown_timeout,omitempty"`
	Sandbox                 bool          `json:"sandbox,omitempty"`
	Debug                   bool          `json:"debug,omitempty"`
	Timeout                 time.Duration `json:"timeout,omitempty"`
}

// SpawnRequest asks the supervisor to produce a running SpawnedAgent,
// either by reuse or by starting a new process.
type SpawnRequest struct {
	ID           string            `json:"id"`
	Requester    string            `json:"requester"`
	AgentID      string            `json:"agent_id"`
	RoleOverride AgentRole         `json:"role_override,omitempty"`
	Priority     int               `json:"priority"`
	Requirements SpawnRequirements `json:"requirements"`
	Options      SpawnOptions      `json:"options"`
}

// SpawnErrorCode enumerates the supervisor's structured spawn failures.
type SpawnErrorCode string

const (
	ErrNoSuitableAgent  SpawnErrorCode = "NO_SUITABLE_AGENT"
	ErrQueueFull        SpawnErrorCode = "QUEUE_FULL"
	ErrSpawnTimeout     SpawnErrorCode = "SPAWN_TIMEOUT"
	ErrInvalidRequest   SpawnErrorCode = "INVALID_REQUEST"
	ErrRateLimited      SpawnErrorCode = "RATE_LIMITED"
)

// SpawnError is a recoverable failure recorded against a SpawnRequest or a
// running SpawnedAgent.
type SpawnError struct {
	Code      SpawnErrorCode `json:"code"`
	Message   string         `json:"message"`
	Recoverable bool         `json:"recoverable"`
}

func (e *SpawnError) Error() string {
	return string(e.Code) + ": " + e.Message
}
