// Package cmd implements the hrconnect command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/config"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connector"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/db"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

var (
	flagConfig  string
	flagVerbose bool
	flagUser    string
	flagLabel   string
	flagTier    string
)

var rootCmd = &cobra.Command{
	Use:   "hrconnect",
	Short: "Track connections to external services",
	Long: `hrconnect tracks whether the HR app is connected to its external services
(Slack, Trello). It opens authorization windows, detects when they complete,
and keeps the result per user scope.

Examples:
  # Run the tracker and open the dashboard
  hrconnect serve

  # Show the state for a signed-in user
  hrconnect status --user alice@example.com

  # Follow a running tracker
  hrconnect watch`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default: "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "User identity for the scope (empty for an anonymous session)")
	rootCmd.PersistentFlags().StringVar(&flagLabel, "scope", "", "Logical scope label")
	rootCmd.PersistentFlags().StringVar(&flagTier, "tier", "", "Persistence tier: session, local or shared")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Scope.User = flagUser
	}
	if flags.Changed("scope") {
		cfg.Scope.Label = flagLabel
	}
	if flags.Changed("tier") {
		tier, err := store.ParseTier(flagTier)
		if err != nil {
			return nil, err
		}
		cfg.Scope.Tier = string(tier)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the backend for the configured tier.
func openStore(cfg *config.Config) (store.Backend, store.Scope, error) {
	scope, err := cfg.ScopeValue()
	if err != nil {
		return nil, store.Scope{}, err
	}
	backend, err := store.OpenBackend(scope.Tier, cfg.StoreOptions())
	if err != nil {
		return nil, store.Scope{}, fmt.Errorf("open store: %w", err)
	}
	return backend, scope, nil
}

// openEventLog returns the database that keeps status history. A sqlite
// backend shares its database; the session tier keeps no history. The
// returned close function is safe to call in every case.
func openEventLog(cfg *config.Config, backend store.Backend, scope store.Scope) (*db.DB, func(), error) {
	if sb, ok := backend.(*store.SQLiteBackend); ok {
		return sb.DB(), func() {}, nil
	}
	if scope.Tier == store.TierSession {
		return nil, func() {}, nil
	}
	path := db.DefaultPath()
	if strings.EqualFold(cfg.Store.Backend, store.BackendSQLite) && cfg.Store.Path != "" {
		path = cfg.Store.Path
	}
	d, err := db.OpenAt(path)
	if err != nil {
		return nil, func() {}, err
	}
	return d, func() { d.Close() }, nil
}

func buildConnector(cfg *config.Config) *connector.Connector {
	endpoints := make(map[connection.Service]connector.Endpoint, len(cfg.Services))
	for _, svc := range connection.Services() {
		sc, ok := cfg.Service(svc)
		if !ok {
			continue
		}
		endpoints[svc] = connector.Endpoint{
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			AuthURL:      sc.AuthURL,
			TokenURL:     sc.TokenURL,
			Scopes:       sc.Scopes,
			RedirectURL:  sc.RedirectURL,
			CheckURL:     sc.CheckURL,
		}
	}
	return connector.New(cfg.BaseURL(), endpoints, nil)
}
