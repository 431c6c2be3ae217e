package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/internal/cli/prompt"
	"github.com/marmos91/lockfs/internal/protocol/wire"
	"github.com/marmos91/lockfs/pkg/client"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive operation prompt",
	Long: `Start an interactive prompt that sends each line as an operation.

Besides the operations accepted by "exec", the shell understands:
  fail    simulate a client crash (bump the incarnation)
  state   show the incarnation and last sequence number
  help    list commands
  exit    leave the shell (also Ctrl+D)`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

const shellHelp = `open <file> <read|write|readwrite>
close <file>
read <file> <count>
write <file> <data...>
lseek <file> <offset>
fail | state | help | exit`

func runShell(cmd *cobra.Command, args []string) error {
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
	label := fmt.Sprintf("%s/%d", cmdutil.Flags.Machine, cmdutil.Flags.ClientID)
	validate := func(line string) error {
		if len(line) > wire.MaxOperation {
			return fmt.Errorf("operation exceeds %d bytes", wire.MaxOperation)
		}
		return nil
	}

	for {
		line, err := prompt.Line(label, validate)
		if err != nil {
			if prompt.IsAborted(err) {
				return nil
			}
			return err
		}

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help", "?":
			printer.Printf("%s\n", shellHelp)
			continue
		case "state":
			st := c.State()
			printer.Printf("incarnation=%d last_sequence=%d\n", st.Incarnation, st.LastSequence)
			continue
		}

		r, err := runner.Step(cmd.Context(), line)
		switch {
		case errors.Is(r.Err, client.ErrNoResponse):
			printer.Warning(r.String())
		case err != nil:
			printer.Error(err.Error())
		case r.Operation == client.FailDirective:
			printer.Warning(fmt.Sprintf("incarnation is now %d", c.State().Incarnation))
		case r.Status == "OK":
			printer.Success(r.String())
		default:
			printer.Error(r.String())
		}
	}
}
