package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/signals"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored connection status of every service",
	Long: `Show the connection status stored for the active scope.

Output is a table on a terminal and JSON otherwise.

Examples:
  hrconnect status
  hrconnect status --user alice@example.com --json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Disconnect every service and remove the stored record",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var markCmd = &cobra.Command{
	Use:   "mark <service> <status>",
	Short: "Set a service's stored status directly",
	Long: `Set a service's stored status directly.

A running server following the same state file picks the change up.

Examples:
  hrconnect mark slack connected
  hrconnect mark trello disconnected`,
	Args: cobra.ExactArgs(2),
	RunE: runMark,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(markCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

// scopedStore opens the configured backend bound to the active scope.
func scopedStore(cmd *cobra.Command) (*store.Scoped, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	backend, scope, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	scoped := store.NewScoped(backend, scope, newLogger(os.Stderr))
	return scoped, func() { backend.Close() }, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	scoped, closeFn, err := scopedStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	st := scoped.Load(cmd.Context())
	out := cmd.OutOrStdout()
	if statusJSON || !isTerminal(out) {
		return writeStatusJSON(out, scoped.Scope(), st)
	}
	writeStatusTable(out, scoped.Scope(), st)
	if pid, ok := signals.RunningPID(signals.DefaultPIDFilePath()); ok {
		fmt.Fprintf(out, "\n  Server running (pid %d)\n", pid)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	scoped, closeFn, err := scopedStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	scoped.Purge(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Reset all connections for %s\n", scoped.Scope().Key())
	notifyServer()
	return nil
}

func runMark(cmd *cobra.Command, args []string) error {
	svc, err := connection.ParseService(args[0])
	if err != nil {
		return err
	}
	status, err := connection.ParseStatus(args[1])
	if err != nil {
		return err
	}

	scoped, closeFn, err := scopedStore(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	st := scoped.Load(cmd.Context())
	prev := st[svc]
	st[svc] = status
	scoped.Save(cmd.Context(), st)
	if scoped.Degraded() {
		return fmt.Errorf("store unavailable; %s not saved", svc)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", svc, prev, status)
	notifyServer()
	return nil
}

// notifyServer asks a running server to re-read the store. Backends
// without file notifications rely on this.
func notifyServer() {
	pid, ok := signals.RunningPID(signals.DefaultPIDFilePath())
	if !ok || pid == os.Getpid() {
		return
	}
	if err := signals.SendHUP(pid); err != nil {
		newLogger(os.Stderr).Debug("cannot notify server", "pid", pid, "error", err)
	}
}

// StatusOutput is the JSON form of `hrconnect status`.
type StatusOutput struct {
	Scope    string           `json:"scope"`
	Services connection.State `json:"services"`
}

func writeStatusJSON(w io.Writer, scope store.Scope, st connection.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(StatusOutput{Scope: scope.Key(), Services: st})
}

var (
	tableHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#bd93f9"))
	statusColor = map[connection.Status]lipgloss.Style{
		connection.StatusConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("#50fa7b")),
		connection.StatusError:        lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5555")),
		connection.StatusDetecting:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c")),
		connection.StatusLoading:      lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb86c")),
		connection.StatusDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("#6272a4")),
	}
)

func writeStatusTable(w io.Writer, scope store.Scope, st connection.State) {
	fmt.Fprintln(w, tableHeader.Render("Scope: "+scope.Key()))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-10s %s\n", "SERVICE", "STATUS")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", 24))
	for _, svc := range connection.Services() {
		status := st[svc]
		fmt.Fprintf(w, "  %-10s %s\n", svc, statusColor[status].Render(status.String()))
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
