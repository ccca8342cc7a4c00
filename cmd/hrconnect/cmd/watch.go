package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running tracker in a terminal dashboard",
	Long: `Follow a running tracker in a terminal dashboard.

Keys: c connect the selected service in a popup, m mark it connected,
r reset every service, ? help, q quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchServer string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchServer, "server", "", "Server address (default: from config listen)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	base := watchServer
	if base == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		base = cfg.BaseURL()
	}
	return tui.Run(base)
}
