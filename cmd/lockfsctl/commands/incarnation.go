package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/internal/cli/output"
	"github.com/marmos91/lockfs/internal/cli/prompt"
	"github.com/marmos91/lockfs/pkg/client"
)

var incarnationForce bool

var incarnationCmd = &cobra.Command{
	Use:   "incarnation",
	Short: "Inspect or bump the local client state",
	Long: `Inspect or bump the incarnation and sequence number kept on disk
for the client named by --machine and --client-id.

Bumping the incarnation makes the server release every file the client
holds on its next request.`,
}

var incarnationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted client state",
	Args:  cobra.NoArgs,
	RunE:  runIncarnationShow,
}

var incarnationBumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Increment the incarnation",
	Args:  cobra.NoArgs,
	RunE:  runIncarnationBump,
}

func init() {
	incarnationBumpCmd.Flags().BoolVarP(&incarnationForce, "force", "f", false, "Skip confirmation prompt")
	incarnationCmd.AddCommand(incarnationShowCmd)
	incarnationCmd.AddCommand(incarnationBumpCmd)
}

// clientState is the printable form of the persisted state.
type clientState struct {
	Machine      string `json:"machine" yaml:"machine"`
	ClientID     int32  `json:"client_id" yaml:"client_id"`
	Incarnation  int32  `json:"incarnation" yaml:"incarnation"`
	LastSequence int32  `json:"last_sequence" yaml:"last_sequence"`
	Path         string `json:"path" yaml:"path"`
}

func newClientState(store *client.StateStore, st client.State) clientState {
	return clientState{
		Machine:      cmdutil.Flags.Machine,
		ClientID:     cmdutil.Flags.ClientID,
		Incarnation:  st.Incarnation,
		LastSequence: st.LastSequence,
		Path:         store.Path(cmdutil.Flags.Machine, cmdutil.Flags.ClientID),
	}
}

func printClientState(cmd *cobra.Command, cs clientState) error {
	printer, err := cmdutil.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if printer.Structured() {
		return printer.Print(cs)
	}
	return output.KeyValue(printer.Writer(), [][2]string{
		{"Client", fmt.Sprintf("%s/%d", cs.Machine, cs.ClientID)},
		{"Incarnation", fmt.Sprint(cs.Incarnation)},
		{"Last sequence", fmt.Sprint(cs.LastSequence)},
		{"State file", cs.Path},
	})
}

func runIncarnationShow(cmd *cobra.Command, args []string) error {
	store := cmdutil.StateStore()
	st, err := store.Load(cmdutil.Flags.Machine, cmdutil.Flags.ClientID)
	if err != nil {
		return err
	}
	return printClientState(cmd, newClientState(store, st))
}

func runIncarnationBump(cmd *cobra.Command, args []string) error {
	label := fmt.Sprintf("Bump incarnation for %s/%d? Held locks will be released", cmdutil.Flags.Machine, cmdutil.Flags.ClientID)
	ok, err := prompt.ConfirmWithForce(label, incarnationForce)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	store := cmdutil.StateStore()
	st, err := store.BumpIncarnation(cmdutil.Flags.Machine, cmdutil.Flags.ClientID)
	if err != nil {
		return err
	}
	return printClientState(cmd, newClientState(store, st))
}
