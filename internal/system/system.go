// Package system wires the full control loop described in §2's
// dependency order (leaves first: types/time/hash utilities → event bus
// → token accounting → context manager → scanner → agent supervisor →
// orchestrator) into one running process. It replaces the source's
// global singletons (agentConfigManager, agentSpawner, agentDiscovery)
// with explicit constructor-injected collaborators: New(cfg) returns the
// fully wired graph and Run(ctx) drives every worker until ctx is
// cancelled or the 15s shutdown deadline from §5 expires.
package system

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andywolf/prpctl/internal/bus"
	"github.com/andywolf/prpctl/internal/cloud/gcp"
	"github.com/andywolf/prpctl/internal/config"
	"github.com/andywolf/prpctl/internal/contextmgr"
	"github.com/andywolf/prpctl/internal/credentials"
	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/events"
	"github.com/andywolf/prpctl/internal/orchestrator"
	"github.com/andywolf/prpctl/internal/scanner"
	"github.com/andywolf/prpctl/internal/security"
	"github.com/andywolf/prpctl/internal/supervisor"
	"github.com/andywolf/prpctl/internal/tokens"
	"github.com/andywolf/prpctl/internal/warroom"
)

// ShutdownDeadline is the hard limit from §5: past this, workers are
// forced to terminate rather than drain cleanly.
const ShutdownDeadline = 15 * time.Second

// DiscoveryProbeInterval is how often registered agent configurations are
// re-probed and re-scored, independent of the supervisor's own 30s
// liveness tick.
const DiscoveryProbeInterval = 30 * time.Second

// System bundles every long-lived component plus the goroutines that
// drive them. It is the sole owner of process lifetime: callers get one
// from New and call Run.
type System struct {
	Config *config.Config

	Bus          *bus.Bus
	Metrics      *tokens.Metrics
	Ledger       *tokens.Ledger
	Tokens       *tokens.Engine
	ContextMgr   *contextmgr.Manager
	ContextStore *contextmgr.Store
	WarRoom      *warroom.Board
	Discovery    *discovery.Registry
	Scanner      *scanner.Pool
	Supervisor   *supervisor.Pool
	Orchestrator *orchestrator.Orchestrator
	EventSink    *events.FileSink
	Scrubber     *security.Scrubber
	RateLimiter  *security.RateLimiter

	logger *gcp.SecureCloudLogger
}

// New builds the full dependency graph from cfg but starts nothing.
// Dependency order follows §2: bus, then tokens, then context manager,
// then scanner, then supervisor (with discovery wired in), then
// orchestrator last, since it is the only component that reaches into
// every other one.
func New(cfg *config.Config) (*System, error) {
	ctx := context.Background()

	var logOpts []gcp.CloudLoggerOption
	if cfg.GCP.LogName != "" {
		logOpts = append(logOpts, gcp.WithLabels(map[string]string{"log_name": cfg.GCP.LogName}))
	}
	logger := gcp.NewSecureCloudLogger(gcp.NewLogger(ctx, uuid.NewString(), logOpts...))

	b := bus.New(bus.DefaultBufferSize)

	metrics := tokens.NewMetrics()
	ledger := tokens.NewLedger(cfg.Tokens.LedgerDir, metrics)
	if err := ledger.Load(); err != nil {
		return nil, err
	}
	engine := tokens.NewEngine(ledger, b, cfg.Tokens.AgentLimits, cfg.Tokens.ComponentLimits)

	warRoom := warroom.NewBoard(b, warroom.DefaultMaxItems)
	ctxMgr := contextmgr.NewManager(b)
	ctxStore, err := contextmgr.NewStore(cfg.Tokens.LedgerDir)
	if err != nil {
		return nil, err
	}

	registry := discovery.NewRegistry()
	for _, a := range cfg.Agents {
		registry.Register(a)
	}

	scanPool := scanner.NewPool(b, cfg.Scanner.MaxConcurrentScans)

	supPool := supervisor.NewPool(registry, b)
	if minter, err := buildCredentials(cfg); err != nil {
		logger.LogErrorf("jwt credentials: %v", err)
	} else if minter != nil {
		supPool.SetCredentials(minter)
	}
	if resolver := buildSecretResolver(ctx, cfg, logger); resolver != nil {
		supPool.SetSecretResolver(resolver)
	}

	scrubber := security.NewScrubber()
	rateLimiter := security.NewRateLimiter(cfg.Security.SpawnRateLimitPerMinute, time.Minute)
	supPool.SetRateLimiter(rateLimiter)

	sink, err := events.NewFileSink(cfg.Tokens.LedgerDir)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Collaborators{
		Bus:         b,
		Scanner:     scanPool,
		Discovery:   registry,
		Supervisor:  supPool,
		Tokens:      engine,
		Ledger:      ledger,
		ContextMgr:   ctxMgr,
		ContextStore: ctxStore,
		WarRoom:      warRoom,
		Scrubber:    scrubber,
		EventSink:   sink,
		Logger:      logger,
	})

	return &System{
		Config:       cfg,
		Bus:          b,
		Metrics:      metrics,
		Ledger:       ledger,
		Tokens:       engine,
		ContextMgr:   ctxMgr,
		ContextStore: ctxStore,
		WarRoom:      warRoom,
		Discovery:    registry,
		Scanner:      scanPool,
		Supervisor:   supPool,
		Orchestrator: orch,
		EventSink:    sink,
		Scrubber:     scrubber,
		RateLimiter:  rateLimiter,
		logger:       logger,
	}, nil
}

// buildCredentials mints a JWTMinter from a signing key read out of
// PRPCTL_JWT_SIGNING_KEY. Absence of any agent declaring jwt
// authentication is not an error: the minter is simply never set.
func buildCredentials(cfg *config.Config) (*credentials.JWTMinter, error) {
	for _, a := range cfg.Agents {
		if a.Authentication.Kind == "jwt" {
			key := os.Getenv("PRPCTL_JWT_SIGNING_KEY")
			if key == "" {
				return nil, nil
			}
			return credentials.NewJWTMinter("prpctl", []byte(key))
		}
	}
	return nil, nil
}

// buildSecretResolver wires a credentials.SecretResolver around a GCP
// Secret Manager client when any agent declares secret_ref
// authentication. cfg.GCP.ProjectID, if set, seeds GOOGLE_CLOUD_PROJECT
// so the client resolves the same project getProjectID would pick up
// from the environment; cfg.GCP.SecretPrefix is handed to the resolver
// as-is. A client that fails to construct (no ambient GCP credentials,
// unreachable metadata server) only logs: secret_ref agents then spawn
// without a resolved secret rather than failing System construction.
func buildSecretResolver(ctx context.Context, cfg *config.Config, logger *gcp.SecureCloudLogger) *credentials.SecretResolver {
	needed := false
	for _, a := range cfg.Agents {
		if a.Authentication.Kind == "secret_ref" {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	if cfg.GCP.ProjectID != "" && os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
		os.Setenv("GOOGLE_CLOUD_PROJECT", cfg.GCP.ProjectID)
	}

	client, err := gcp.NewSecretManagerClient(ctx)
	if err != nil {
		logger.LogErrorf("secret manager client unavailable, secret_ref agents will spawn without a resolved secret: %v", err)
		return nil
	}
	return credentials.NewSecretResolver(client, cfg.GCP.SecretPrefix)
}

// AddWorktree discovers every worktree under repoRoot via `git worktree
// list` and registers each with the scanner, per §4.2. It is the
// programmatic equivalent of the out-of-scope add-worktree CLI command.
func (s *System) AddWorktree(ctx context.Context, repoRoot string) error {
	worktrees, err := scanner.ListWorktrees(ctx, repoRoot)
	if err != nil {
		return err
	}
	for _, w := range worktrees {
		if err := s.Scanner.AddWorktree(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every worker and blocks until ctx is cancelled, then drains
// with ShutdownDeadline before forcing termination. Workers are started
// in the same dependency order New wires them in, since the
// orchestrator's Run loop immediately reads from the scanner and
// supervisor it was handed.
func (s *System) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.Tokens.Run(gctx) })
	g.Go(func() error { return s.Scanner.Run(gctx) })
	g.Go(func() error { return s.Supervisor.Run(gctx) })
	g.Go(func() error { return s.runDiscoveryProbes(gctx) })
	g.Go(func() error { return s.Orchestrator.Run(gctx) })
	if s.Config.Tokens.MetricsAddr != "" {
		g.Go(func() error { return s.Metrics.ServeMetrics(gctx, s.Config.Tokens.MetricsAddr) })
	}

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownDeadline)
	defer cancel()
	s.shutdown(shutdownCtx)

	return err
}

// shutdown flushes the token ledger and closes the event sink. The
// scanner's watcher, the supervisor's graceful agent stops, and the bus
// drain are each owned by their respective Run loops, which already
// unwind on ctx cancellation; this only handles the resources System
// itself holds a handle to.
func (s *System) shutdown(_ context.Context) {
	if err := s.Ledger.Persist(); err != nil {
		s.logger.LogErrorf("ledger persist on shutdown: %v", err)
	}
	if s.ContextStore != nil && s.WarRoom != nil {
		if err := s.ContextStore.SaveShared(s.WarRoom.Snapshot(), nil, time.Now()); err != nil {
			s.logger.LogErrorf("context store persist on shutdown: %v", err)
		}
	}
	if s.EventSink != nil {
		if err := s.EventSink.Close(); err != nil {
			s.logger.LogErrorf("event sink close on shutdown: %v", err)
		}
	}
	s.logger.Close()
}

// runDiscoveryProbes re-probes and re-scores every registered agent on
// DiscoveryProbeInterval, folding the supervisor's current aggregate
// memory utilization into the resource health check per §4.5.
func (s *System) runDiscoveryProbes(ctx context.Context) error {
	ticker := time.NewTicker(DiscoveryProbeInterval)
	defer ticker.Stop()

	probes := discovery.DefaultProbes()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			memUtil := s.Supervisor.MemoryUtilization()
			for _, d := range s.Discovery.All() {
				binary := d.Config.Environment.Binary
				if binary != "" {
					discovery.Probe(ctx, d, binary, probes)
				}
				discovery.RunHealthChecks(d, d.Config, memUtil)
				d.Online = d.Health != discovery.HealthUnhealthy
			}
		}
	}
}
