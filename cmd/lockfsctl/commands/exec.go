package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/pkg/client"
)

var execCmd = &cobra.Command{
	Use:   "exec <operation...>",
	Short: "Send a single operation",
	Long: `Send one operation and print the server's reply.

Operations:
  open <file> <read|write|readwrite>
  close <file>
  read <file> <count>
  write <file> <data...>
  lseek <file> <offset>

Examples:
  lockfsctl exec open notes.txt write
  lockfsctl exec write notes.txt hello world
  lockfsctl exec -o json read notes.txt 5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	c, err := cmdutil.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	r, err := client.NewRunner(c).Step(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := printResults(cmd.OutOrStdout(), []client.Result{r}); err != nil {
		return err
	}
	return r.Err
}
