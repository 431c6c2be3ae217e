// Package cmdutil provides shared utilities for lockfsctl commands.
package cmdutil

import (
	"fmt"
	"io"
	"time"

	"github.com/marmos91/lockfs/internal/cli/output"
	"github.com/marmos91/lockfs/pkg/apiclient"
	"github.com/marmos91/lockfs/pkg/client"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Server   string
	Machine  string
	ClientID int32
	Timeout  time.Duration
	Retries  int
	StateDir string
	APIURL   string
	Output   string
	NoColor  bool
	Verbose  bool
}

// StateStore returns the store for --state-dir, or the default directory.
func StateStore() *client.StateStore {
	dir := Flags.StateDir
	if dir == "" {
		dir = client.DefaultStateDir()
	}
	return client.NewStateStore(dir)
}

// NewClient dials the server as the client named by the global flags.
func NewClient() (*client.Client, error) {
	c, err := client.New(client.Config{
		Server:   Flags.Server,
		Machine:  Flags.Machine,
		ClientID: Flags.ClientID,
		Timeout:  Flags.Timeout,
		Retries:  Flags.Retries,
	}, StateStore())
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

// NewAPIClient returns an admin API client for --api.
func NewAPIClient() *apiclient.Client {
	return apiclient.New(Flags.APIURL)
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// NewPrinter returns a printer for the --output and --no-color flags.
func NewPrinter(w io.Writer) (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// PrintOutput prints data in the selected format. In table format emptyMsg
// replaces an empty table.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}
