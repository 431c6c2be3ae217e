// Package commands implements the lockfsctl client CLI.
package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/internal/logger"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/pkg/client"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "lockfsctl",
	Short: "LockFS Control - client for a LockFS server",
	Long: `lockfsctl sends file operations to a LockFS server and inspects its state.

Each invocation acts as one client, identified by --machine and --client-id.
The client's incarnation and last sequence number are kept in --state-dir so
that consecutive invocations continue the same request sequence.

Use "lockfsctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmdutil.Flags.Verbose {
			logger.SetLevel("DEBUG")
		} else {
			logger.SetLevel("WARN")
		}
	},
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
	f := rootCmd.PersistentFlags()
	f.StringVar(&cmdutil.Flags.Server, "server", "127.0.0.1:7049", "LockFS UDP endpoint (host:port)")
	f.StringVar(&cmdutil.Flags.Machine, "machine", defaultMachine(), "Machine name announced to the server")
	f.Int32Var(&cmdutil.Flags.ClientID, "client-id", 0, "Client number on the machine")
	f.DurationVar(&cmdutil.Flags.Timeout, "timeout", client.DefaultTimeout, "How long to wait for each reply")
	f.IntVar(&cmdutil.Flags.Retries, "retries", client.DefaultRetries, "Retransmissions before giving up on a request")
	f.StringVar(&cmdutil.Flags.StateDir, "state-dir", "", "Directory for client state (default: $XDG_STATE_HOME/lockfsctl)")
	f.StringVar(&cmdutil.Flags.APIURL, "api", "http://127.0.0.1:9080", "LockFS admin API URL")
	f.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	f.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")
	f.BoolVarP(&cmdutil.Flags.Verbose, "verbose", "v", false, "Log retransmissions and other client activity")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(incarnationCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// defaultMachine is the host name, cut to the protocol limit.
func defaultMachine() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "localhost"
	}
	name = strings.ReplaceAll(name, ":", "-")
	if len(name) > wire.MaxMachine {
		name = name[:wire.MaxMachine]
	}
	return name
}
