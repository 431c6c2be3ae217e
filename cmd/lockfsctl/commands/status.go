package commands

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/lockfs/cmd/lockfsctl/cmdutil"
	"github.com/marmos91/lockfs/internal/cli/output"
	"github.com/marmos91/lockfs/internal/cli/timeutil"
	"github.com/marmos91/lockfs/pkg/apiclient"
	"github.com/marmos91/lockfs/pkg/lock"
	"github.com/marmos91/lockfs/pkg/server"
	"github.com/marmos91/lockfs/pkg/session"
)

var (
	statusMachine   string
	statusFileState string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Show server status through the admin API.

Without a subcommand, prints health, storage readiness and request counters.

Examples:
  lockfsctl status
  lockfsctl status sessions --machine alpha
  lockfsctl status files --state write
  lockfsctl status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List client sessions",
	Args:  cobra.NoArgs,
	RunE:  runStatusSessions,
}

var statusFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List file lock records",
	Args:  cobra.NoArgs,
	RunE:  runStatusFiles,
}

func init() {
	statusSessionsCmd.Flags().StringVar(&statusMachine, "machine", "", "Only sessions from this machine")
	statusFilesCmd.Flags().StringVar(&statusFileState, "state", "", "Only files in this lock state (unlocked|read|write)")
	statusCmd.AddCommand(statusSessionsCmd)
	statusCmd.AddCommand(statusFilesCmd)
}

// ServerStatus is the combined health and counter view.
type ServerStatus struct {
	Healthy bool          `json:"healthy" yaml:"healthy"`
	Storage string        `json:"storage" yaml:"storage"`
	Latency string        `json:"storage_latency,omitempty" yaml:"storage_latency,omitempty"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
	Stats   *server.Stats `json:"stats,omitempty" yaml:"stats,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	api := cmdutil.NewAPIClient()

	if _, err := api.Health(); err != nil {
		return fmt.Errorf("server unreachable at %s: %w", cmdutil.Flags.APIURL, err)
	}

	status := ServerStatus{Healthy: true}
	ready, err := api.Ready()
	switch {
	case err == nil:
		status.Storage = ready.Type
		status.Latency = ready.Latency
	default:
		status.Healthy = false
		status.Error = err.Error()
		var apiErr *apiclient.APIError
		if !errors.As(err, &apiErr) || !apiErr.IsUnavailable() {
			return fmt.Errorf("failed to probe storage: %w", err)
		}
	}

	stats, err := api.Stats()
	if err != nil {
		return fmt.Errorf("failed to fetch stats: %w", err)
	}
	status.Stats = stats
	if status.Storage == "" {
		status.Storage = stats.StoreType
	}

	printer, err := cmdutil.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if printer.Structured() {
		return printer.Print(status)
	}
	return printStatusTable(printer, status)
}

func printStatusTable(p *output.Printer, s ServerStatus) error {
	health := "healthy"
	if !s.Healthy {
		health = "unhealthy: " + s.Error
	}
	pairs := [][2]string{
		{"Status", health},
		{"Storage", s.Storage},
	}
	if s.Latency != "" {
		pairs = append(pairs, [2]string{"Storage latency", s.Latency})
	}
	st := s.Stats
	pairs = append(pairs,
		[2]string{"Seek policy", st.SeekPolicy},
		[2]string{"Started", timeutil.FormatTime(st.StartedAt)},
		[2]string{"Uptime", timeutil.FormatUptime(st.UptimeSecs)},
		[2]string{"Sessions", strconv.Itoa(st.Sessions)},
		[2]string{"Files", strconv.Itoa(st.Files)},
	)
	if err := output.KeyValue(p.Writer(), pairs); err != nil {
		return err
	}

	if len(st.Outcomes) > 0 {
		p.Printf("\nRequests:\n")
		table := output.NewTableData("Outcome", "Count")
		for _, k := range sortedKeys(st.Outcomes) {
			table.AddRow(k, strconv.FormatUint(st.Outcomes[k], 10))
		}
		if err := output.PrintTable(p.Writer(), table); err != nil {
			return err
		}
	}

	if len(st.LockStates) > 0 {
		p.Printf("\nLocks:\n")
		table := output.NewTableData("State", "Files")
		for _, k := range sortedKeys(st.LockStates) {
			table.AddRow(k, strconv.Itoa(st.LockStates[k]))
		}
		return output.PrintTable(p.Writer(), table)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SessionList renders sessions as a table.
type SessionList []session.SessionInfo

// Headers implements TableRenderer.
func (sl SessionList) Headers() []string {
	return []string{"Machine", "Client", "Incarnation", "Last Seq", "Open Files", "Last Seen"}
}

// Rows implements TableRenderer.
func (sl SessionList) Rows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		names := make([]string, 0, len(s.OpenFiles))
		for _, f := range s.OpenFiles {
			names = append(names, f.Filename)
		}
		open := "-"
		if len(names) > 0 {
			open = strings.Join(names, ",")
		}
		rows = append(rows, []string{
			s.Machine,
			strconv.Itoa(int(s.ClientID)),
			strconv.Itoa(int(s.LastIncarnation)),
			strconv.Itoa(int(s.LastRequest)),
			open,
			timeutil.FormatAge(s.LastSeen, now),
		})
	}
	return rows
}

func runStatusSessions(cmd *cobra.Command, args []string) error {
	sessions, err := cmdutil.NewAPIClient().Sessions(statusMachine)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), sessions, len(sessions) == 0, "No sessions.", SessionList(sessions))
}

// FileList renders lock records as a table.
type FileList []lock.FileInfo

// Headers implements TableRenderer.
func (fl FileList) Headers() []string {
	return []string{"File", "State", "Holders"}
}

// Rows implements TableRenderer.
func (fl FileList) Rows() [][]string {
	rows := make([][]string, 0, len(fl))
	for _, f := range fl {
		holders := "-"
		switch {
		case f.WriteHolder != "":
			holders = f.WriteHolder
		case len(f.ReadHolders) > 0:
			holders = strings.Join(f.ReadHolders, ",")
		}
		rows = append(rows, []string{f.Key, f.State, holders})
	}
	return rows
}

func runStatusFiles(cmd *cobra.Command, args []string) error {
	files, err := cmdutil.NewAPIClient().Files(statusFileState)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	return cmdutil.PrintOutput(cmd.OutOrStdout(), files, len(files) == 0, "No files.", FileList(files))
}
