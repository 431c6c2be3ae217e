package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/internal/cli/output"
	"github.com/marmos91/lockfs/pkg/config"
)

var showFormat string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and LOCKFS_* environment
variables are applied. Without a config file, the defaults are shown.

Examples:
  lockfs config show
  LOCKFS_STORAGE_TYPE=memory lockfs config show --output json`,
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "output", "o", "yaml", "Output format (yaml|json)")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showFormat)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	case output.FormatYAML:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	default:
		return fmt.Errorf("config show supports yaml or json, not %s", format)
	}
}
