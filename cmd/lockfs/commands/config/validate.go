package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the LockFS configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  lockfs config validate
  lockfs config validate --config /etc/lockfs/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Storage.Type == config.StorageMemory {
		warnings = append(warnings, "memory storage loses all file contents on restart")
	}
	if cfg.Server.Fault.Enabled() {
		warnings = append(warnings, fmt.Sprintf("fault injection drops %.0f%% of requests and %.0f%% of replies",
			cfg.Server.Fault.DropRequest*100, cfg.Server.Fault.DropReply*100))
	}
	if cfg.Storage.Type == config.StorageS3 && cfg.Storage.S3.AccessKeyID == "" {
		warnings = append(warnings, "no static S3 credentials, the default AWS credential chain will be used")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  UDP port:      %d\n", cfg.Server.Port)
	_, _ = fmt.Fprintf(out, "  Storage type:  %s\n", cfg.Storage.Type)
	_, _ = fmt.Fprintf(out, "  Seek policy:   %s\n", cfg.Server.SeekPolicy)
	_, _ = fmt.Fprintf(out, "  API enabled:   %t (port %d)\n", cfg.API.IsEnabled(), cfg.API.Port)
	_, _ = fmt.Fprintf(out, "  Metrics:       %t\n", cfg.Metrics.Enabled)
	_, _ = fmt.Fprintf(out, "  Log level:     %s\n", cfg.Logging.Level)
	return nil
}
