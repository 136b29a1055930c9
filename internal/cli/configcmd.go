package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andywolf/prpctl/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate the .prprc configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	},
}

var importConfigCmd = &cobra.Command{
	Use:   "import-config [path]",
	Short: "Import a .prprc document from path and validate it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		cfg, err := config.Import(data)
		if err != nil {
			return err
		}
		out, err := cfg.ExportJSON()
		if err != nil {
			return err
		}
		return os.WriteFile(configPath(), out, 0o600)
	},
}

var exportConfigYAML bool

var exportConfigCmd = &cobra.Command{
	Use:   "export-config",
	Short: "Export the current .prprc as JSON or a degraded YAML-like form",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		if exportConfigYAML {
			out, err := cfg.ExportYAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		}
		out, err := cfg.ExportJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	exportConfigCmd.Flags().BoolVar(&exportConfigYAML, "yaml", false, "export in the degraded YAML-like form instead of JSON")
}
