// Package cli is the thin, explicitly out-of-scope command-line boundary
// (spec.md §1, §6) in front of the core control loop. Every subcommand
// here does nothing but parse flags, load the .prprc configuration, and
// call into internal/system or the collaborator the spec names as the
// CLI's target — it carries no control-loop logic of its own.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/prpctl/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "prpctl",
	Short: "prpctl - autonomous multi-agent development orchestrator",
	Long: `prpctl watches git worktrees for Product Requirement Prompt files,
turns observed changes into prioritized signals, and drives agent
processes to completion against a token- and cost-budget cap.

Example:
  prpctl run --repo ~/src/myapp`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to .prprc (default .prprc in the working directory)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(addWorktreeCmd)
	rootCmd.AddCommand(removeWorktreeCmd)
	rootCmd.AddCommand(spawnAgentCmd)
	rootCmd.AddCommand(stopAgentCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(importConfigCmd)
	rootCmd.AddCommand(exportConfigCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error getting working directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("json")
		viper.SetConfigName(".prprc")
	}

	viper.SetEnvPrefix("PRPCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

// configPath resolves the --config flag to a concrete path, falling back
// to the default ".prprc" the same way config.Load does.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return ".prprc"
}
