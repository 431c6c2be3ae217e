// Package commands implements the lockfs server CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfs/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "lockfs",
	Short: "LockFS - remote file service with exactly-once requests",
	Long: `LockFS serves open, close, read, write and lseek requests over UDP.

Clients identify themselves by machine name and client number. Every request
carries a sequence number so that retransmissions are answered from a reply
cache instead of being executed twice, and an incarnation number so that a
restarted client's locks are released.

Use "lockfs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/lockfs/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
