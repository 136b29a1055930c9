package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andywolf/prpctl/internal/config"
	"github.com/andywolf/prpctl/internal/system"
)

var addWorktreeCmd = &cobra.Command{
	Use:   "add-worktree [path]",
	Short: "Discover worktrees under path and register them with the scanner",
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
		if err := sys.AddWorktree(cmd.Context(), args[0]); err != nil {
			return err
		}
		for _, m := range sys.Scanner.Monitors() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Name, m.Path, m.Branch)
		}
		return nil
	},
}

var removeWorktreeCmd = &cobra.Command{
	Use:   "remove-worktree [name]",
	Short: "Retire a watched worktree monitor",
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
		sys.Scanner.RemoveWorktree(args[0])
		return nil
	},
}
