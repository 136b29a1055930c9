package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/security"
	"github.com/andywolf/prpctl/internal/types"
)

// runningProcess is the live os/exec handle for one SpawnedAgent, plus the
// channels watchProcess and the spawn flow coordinate through.
type runningProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	log    *logRing
	ready  chan struct{}
	exited chan struct{}

	readyOnce sync.Once
	exitErr   error
}

func (rp *runningProcess) signalReady() {
	rp.readyOnce.Do(func() { close(rp.ready) })
}

// startProcess validates and execs the agent binary per the agent process
// contract: argv carries the instance identity, env carries the
// configured environment plus AGENT_ID/SPAWN_ID/AGENT_CONFIG, stdin is a
// control pipe, stdout/stderr are captured line by line.
func (p *Pool) startProcess(ctx context.Context, cfg types.AgentConfiguration, agent *types.SpawnedAgent, req types.SpawnRequest) (*runningProcess, error) {
	argv := []string{
		"--agent-id", agent.InstanceID,
		"--config", cfg.ID,
		"--role", string(roleFor(cfg, req)),
		"--spawn-id", req.ID,
	}
	if req.Options.Debug {
		argv = append(argv, "--debug")
	}
	if req.Options.Sandbox {
		argv = append(argv, "--sandbox")
	}

	validator := security.NewCommandValidator(cfg.Environment)
	if err := validator.ValidateCommand(cfg.Environment.Binary, argv); err != nil {
		return nil, fmt.Errorf("command validation: %w", err)
	}

	cmd := exec.CommandContext(ctx, cfg.Environment.Binary, argv...)
	cmd.Env = p.buildEnv(ctx, cfg, agent, req)
	if cfg.Environment.WorkingDirectory != "" {
		cmd.Dir = cfg.Environment.WorkingDirectory
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	rp := &runningProcess{
		cmd:    cmd,
		stdin:  stdin,
		log:    newLogRing(DefaultLogRingSize),
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go p.forwardOutput(agent.InstanceID, "stdout", stdout, rp)
	go p.forwardOutput(agent.InstanceID, "stderr", stderr, rp)
	go func() {
		rp.exitErr = cmd.Wait()
		close(rp.exited)
	}()

	return rp, nil
}

func roleFor(cfg types.AgentConfiguration, req types.SpawnRequest) types.AgentRole {
	if req.RoleOverride != "" {
		return req.RoleOverride
	}
	return cfg.Role
}

// buildEnv layers OS env, configured env, request-level env overrides, and
// the agent identity triple the process contract requires, adding a
// minted token when the configuration authenticates via jwt or a
// resolved secret when it authenticates via secret_ref.
func (p *Pool) buildEnv(ctx context.Context, cfg types.AgentConfiguration, agent *types.SpawnedAgent, req types.SpawnRequest) []string {
	env := os.Environ()
	for k, v := range cfg.Environment.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range req.Requirements.Env {
		env = append(env, k+"="+v)
	}

	cfgJSON, _ := json.Marshal(cfg)
	env = append(env,
		"AGENT_ID="+agent.InstanceID,
		"SPAWN_ID="+req.ID,
		"AGENT_CONFIG="+string(cfgJSON),
	)

	switch cfg.Authentication.Kind {
	case "jwt":
		p.mu.Lock()
		minter := p.credentials
		p.mu.Unlock()
		if minter != nil {
			if token, err := minter.MintFor(cfg.ID, cfg.Authentication.TokenLifetime); err == nil {
				env = append(env, "AGENT_TOKEN="+token)
			}
		}
	case "secret_ref":
		p.mu.Lock()
		resolver := p.secrets
		p.mu.Unlock()
		if resolver != nil {
			if secret, err := resolver.Resolve(ctx, cfg.Authentication); err == nil {
				env = append(env, "AGENT_SECRET="+secret)
			}
		}
	}

	return env
}

// forwardOutput scans one stdio stream line by line, appending to the
// agent's bounded log ring and forwarding each line as a development
// signal. The first line of either stream counts as the process signaling
// a successful spawn.
func (p *Pool) forwardOutput(instanceID, stream string, r io.Reader, rp *runningProcess) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		rp.signalReady()
		rp.log.Append(stream, line)
		if p.bus == nil {
			continue
		}
		p.bus.Publish(bus.TopicSignals, types.Signal{
			ID:        uuid.NewString(),
			Kind:      types.KindDevelopment,
			Priority:  1,
			Source:    instanceID,
			Timestamp: time.Now(),
			Payload: types.SignalPayload{
				Kind:        types.KindDevelopment,
				Development: &types.DevelopmentPayload{Stream: stream, Line: line},
			},
		})
	}
}

// watchProcess waits for the process to exit and applies the lifecycle
// rules: a graceful Stop in progress finishes as stopped; a non-zero exit
// is a crash that schedules a restart if the agent hasn't exhausted its
// budget, otherwise the instance is removed and agent-exited published.
func (p *Pool) watchProcess(instanceID string, rp *runningProcess, cfg types.AgentConfiguration, req types.SpawnRequest) {
	<-rp.exited

	p.mu.Lock()
	agent, ok := p.agents[instanceID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.processes, instanceID)

	if agent.State == types.AgentStopping {
		p.transition(agent, types.AgentStopped, "agent-stopped")
		p.removeLocked(agent)
		p.mu.Unlock()
		return
	}

	crashed := exitCodeOf(rp.exitErr) != 0
	if crashed {
		p.transition(agent, types.AgentCrashed, "agent-crashed")
	} else {
		p.transition(agent, types.AgentStopped, "")
	}

	restart := crashed && agent.RestartCount < agent.MaxRestarts
	if restart {
		agent.RestartCount++
	} else {
		p.removeLocked(agent)
		p.publish("agent-exited", agent)
	}
	p.mu.Unlock()

	if !restart {
		return
	}

	time.Sleep(p.retryDelay)
	if err := p.respawn(context.Background(), agent, cfg, req); err != nil {
		p.mu.Lock()
		if a, ok := p.agents[instanceID]; ok {
			p.transition(a, types.AgentError, "agent-error")
			a.Health.LastError = err.Error()
		}
		p.mu.Unlock()
	}
}

// respawn starts a fresh process for an already-indexed agent instance
// after a crash, reusing its instance id.
func (p *Pool) respawn(ctx context.Context, agent *types.SpawnedAgent, cfg types.AgentConfiguration, req types.SpawnRequest) error {
	p.mu.Lock()
	p.transition(agent, types.AgentStarting, "")
	p.mu.Unlock()

	rp, err := p.startProcess(ctx, cfg, agent, req)
	if err != nil {
		return err
	}

	select {
	case <-rp.ready:
	case <-rp.exited:
		return fmt.Errorf("process exited before signaling a successful spawn")
	case <-time.After(p.spawnTimeout):
	}

	p.mu.Lock()
	p.transition(agent, types.AgentRunning, "agent-started")
	p.processes[agent.InstanceID] = rp
	p.consecutiveFails[agent.InstanceID] = 0
	p.mu.Unlock()

	go p.watchProcess(agent.InstanceID, rp, cfg, req)
	return nil
}

// removeLocked unindexes and deletes agent's bookkeeping. Callers must
// hold p.mu.
func (p *Pool) removeLocked(agent *types.SpawnedAgent) {
	p.subAggregate(agent.Resources)
	p.unindex(agent)
	delete(p.agents, agent.InstanceID)
	delete(p.processes, agent.InstanceID)
	delete(p.consecutiveFails, agent.InstanceID)
	delete(p.lastStateChange, agent.InstanceID)
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// processAlive probes liveness with a zero-signal, the standard way to
// check a process exists without affecting it.
func processAlive(cmd *exec.Cmd) bool {
	if cmd.Process == nil || cmd.ProcessState != nil {
		return false
	}
	return cmd.Process.Signal(syscall.Signal(0)) == nil
}
