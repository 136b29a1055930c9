package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/andywolf/prpctl/internal/config"
	"github.com/andywolf/prpctl/internal/system"
)

var runRepoRoot string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control loop: scanner, supervisor, and orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		sys, err := system.New(cfg)
		if err != nil {
			return fmt.Errorf("wiring system: %w", err)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		if runRepoRoot != "" {
			if err := sys.AddWorktree(ctx, runRepoRoot); err != nil {
				fmt.Fprintf(os.Stderr, "add-worktree %s: %v\n", runRepoRoot, err)
			}
		}

		if err := sys.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("system exited: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runRepoRoot, "repo", "", "repository root to discover worktrees under")
}
