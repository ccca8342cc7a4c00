package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent status changes for the active scope",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of changes to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, scope, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	events, closeEvents, err := openEventLog(cfg, backend, scope)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer closeEvents()

	out := cmd.OutOrStdout()
	if events == nil {
		fmt.Fprintln(out, "No history is kept for session scopes.")
		return nil
	}

	list, err := events.RecentEvents(cmd.Context(), scope.Key(), historyLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "No status changes recorded for %s\n", scope.Key())
		return nil
	}
	for _, e := range list {
		fmt.Fprintf(out, "%s  %-7s %-12s -> %-12s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Service, e.From, e.To, e.Reason)
	}
	return nil
}
