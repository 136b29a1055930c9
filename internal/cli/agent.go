package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/prpctl/internal/config"
	"github.com/andywolf/prpctl/internal/system"
	"github.com/andywolf/prpctl/internal/types"
)

var spawnAgentID string

var spawnAgentCmd = &cobra.Command{
	Use:   "spawn-agent",
	Short: "Spawn one instance of a configured agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		sys, err := system.New(cfg)
		if err != nil {
			return fmt.Errorf("wiring system: %w", err)
		}
		agent, err := sys.Supervisor.Spawn(cmd.Context(), types.SpawnRequest{
			ID:        "cli-spawn",
			Requester: "cli",
			AgentID:   spawnAgentID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), agent.InstanceID)
		return nil
	},
}

var stopAgentForce bool

var stopAgentCmd = &cobra.Command{
	Use:   "stop-agent [instance-id]",
	Short: "Stop a spawned agent instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		sys, err := system.New(cfg)
		if err != nil {
			return fmt.Errorf("wiring system: %w", err)
		}
		return sys.Supervisor.Stop(cmd.Context(), args[0], stopAgentForce)
	},
}

func init() {
	spawnAgentCmd.Flags().StringVar(&spawnAgentID, "agent-id", "", "configured agent id to spawn")
	stopAgentCmd.Flags().BoolVar(&stopAgentForce, "force", false, "skip the graceful-shutdown grace period")
}
