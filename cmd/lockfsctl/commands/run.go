package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/pkg/client"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a script of operations",
	Long: `Run a script file, one operation per line. Use "-" to read from stdin.

Lines may be any operation, or "fail" to simulate a client crash: the
incarnation is bumped and the server releases everything the client held.
Blank lines and lines starting with '#' are ignored.

Example script:
  open notes.txt readwrite
  write notes.txt hello world
  lseek notes.txt 0
  read notes.txt 11
  fail
  open notes.txt read

Examples:
  lockfsctl run --machine alpha --client-id 1 script.txt
  cat script.txt | lockfsctl run -`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func runScript(cmd *cobra.Command, args []string) error {
	var script io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open script: %w", err)
		}
		defer func() { _ = f.Close() }()
		script = f
	}

	printer, err := cmdutil.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	c, err := cmdutil.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	runner := client.NewRunner(c)
	if !printer.Structured() {
		runner.Report = func(r client.Result) { printLive(printer.Writer(), r) }
	}

	results, runErr := runner.Run(cmd.Context(), script)
	if printer.Structured() {
		if err := printResults(printer.Writer(), results); err != nil {
			return err
		}
	}
	return runErr
}
