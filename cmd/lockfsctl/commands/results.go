package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/pkg/client"
)

// ResultList renders script results as a table.
type ResultList []client.Result

// Headers implements TableRenderer.
func (rl ResultList) Headers() []string {
	return []string{"Seq", "Operation", "Status", "Size", "Payload"}
}

// Rows implements TableRenderer.
func (rl ResultList) Rows() [][]string {
	rows := make([][]string, 0, len(rl))
	for _, r := range rl {
		seq := "-"
		if r.Sequence > 0 {
			seq = strconv.Itoa(int(r.Sequence))
		}
		status := r.Status
		if r.Error != "" {
			status = r.Error
		}
		payload := ""
		if r.Payload != "" {
			payload = strconv.Quote(r.Payload)
		}
		rows = append(rows, []string{seq, r.Operation, status, strconv.Itoa(int(r.Size)), payload})
	}
	return rows
}

// printResults prints results in the selected output format.
func printResults(w io.Writer, results []client.Result) error {
	return cmdutil.PrintOutput(w, results, len(results) == 0, "No operations.", ResultList(results))
}

// printLive prints one result as a line while a script runs in table mode.
func printLive(w io.Writer, r client.Result) {
	_, _ = fmt.Fprintln(w, r.String())
}
