package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/callback"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/config"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/hub"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/signals"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker, its callback server and the browser driver",
	Long: `Run the connection tracker.

serve starts the callback server, launches Chrome with the dashboard as the
host window and opens authorization windows on request. Completion is taken
from explicit messages, the return-navigation page, the window's title and
address, and finally from the user coming back to the dashboard.

Examples:
  # Default: Chrome window plus server on 127.0.0.1:8765
  hrconnect serve

  # Server only (popups are then unavailable and report an error)
  hrconnect serve --no-browser

  # Attach to an existing Chrome started with --remote-debugging-port
  hrconnect serve --remote ws://127.0.0.1:9222/devtools/browser/<id>`,
	RunE: runServe,
}

var (
	serveNoBrowser bool
	serveHeadless  bool
	serveRemote    string
	serveListen    string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoBrowser, "no-browser", false, "Do not launch Chrome")
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "Run Chrome headless")
	serveCmd.Flags().StringVar(&serveRemote, "remote", "", "DevTools websocket URL of an existing Chrome")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Callback server address (host:port)")
}

// blockedOpener stands in for the browser when none is running; every
// popup attempt is reported as blocked.
type blockedOpener struct{}

func (blockedOpener) Open(context.Context, string, browser.Features) (browser.Window, error) {
	return nil, errors.New("no browser available")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = serveListen
	}
	if cmd.Flags().Changed("headless") {
		cfg.Chrome.Headless = serveHeadless
	}
	if cmd.Flags().Changed("remote") {
		cfg.Chrome.RemoteURL = serveRemote
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	backend, scope, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	events, closeEvents, err := openEventLog(cfg, backend, scope)
	if err != nil {
		logger.Warn("status history disabled", "error", err)
	}
	defer closeEvents()

	sigs, err := signals.New()
	if err != nil {
		return fmt.Errorf("signal handler: %w", err)
	}
	defer sigs.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pidPath := signals.DefaultPIDFilePath()
	if err := signals.WritePIDFile(pidPath, os.Getpid()); err != nil {
		logger.Warn("cannot write pid file", "path", pidPath, "error", err)
	} else {
		defer signals.RemovePIDFile(pidPath)
	}

	var opener browser.Opener = blockedOpener{}
	var chrome *browser.Chrome
	if cfg.Chrome.Enabled && !serveNoBrowser {
		chrome, err = browser.LaunchChrome(browser.ChromeOptions{
			RemoteURL:  cfg.Chrome.RemoteURL,
			ExecPath:   cfg.Chrome.ExecPath,
			ProfileDir: cfg.Chrome.ProfileDir,
			Headless:   cfg.Chrome.Headless,
			HostOrigin: cfg.BaseURL(),
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		defer chrome.Close()
		opener = chrome
	}

	hcfg := hubConfig(cfg, backend, scope, opener, logger)
	if events != nil {
		hcfg.Events = events
	}
	h := hub.New(ctx, hcfg)
	defer h.Close()

	server, err := callback.NewServer(h, cfg.Listen, logger)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	if chrome != nil {
		go h.RunResume(ctx, chrome.HostEvents())
		if err := chrome.ShowHost(ctx, cfg.BaseURL()+"/"); err != nil {
			logger.Warn("cannot show dashboard", "error", err)
		}
	}

	if fb, ok := backend.(*store.FileBackend); ok {
		if err := followFile(ctx, fb.Path(), h, logger); err != nil {
			logger.Warn("not following state file", "path", fb.Path(), "error", err)
		}
	}

	fmt.Printf("hrconnect serving\n")
	fmt.Printf("  Scope: %s\n", scope.Key())
	fmt.Printf("  API: %s\n", cfg.BaseURL())
	if chrome == nil {
		fmt.Println("\nNote: no browser; popup connections will report an error.")
	}
	fmt.Println("Press Ctrl+C to stop.")

loop:
	for {
		select {
		case <-sigs.Shutdown():
			fmt.Println("\nShutting down...")
			break loop
		case <-sigs.Reload():
			if h.Refresh(ctx) {
				logger.Info("stored state reloaded", "action", "reload")
			}
		case <-sigs.DumpStats():
			logger.Info("state dump",
				"scope", h.Scope().Key(),
				"state", h.State().String(),
				"pending", h.Pending(),
				"feeds", server.FeedCount())
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("callback server error: %w", err)
			}
			break loop
		case <-ctx.Done():
			break loop
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", "error", err)
	}
	return nil
}

func hubConfig(cfg *config.Config, backend store.Backend, scope store.Scope, opener browser.Opener, logger *slog.Logger) hub.Config {
	return hub.Config{
		Backend:         backend,
		Scope:           scope,
		Opener:          opener,
		Connector:       buildConnector(cfg),
		Thresholds:      cfg.Thresholds(),
		Features:        cfg.Features(),
		FallbackTimeout: cfg.Detection.FallbackTimeout.Duration(),
		Logger:          logger,
	}
}

// followFile applies writes other processes make to the state file, such
// as `hrconnect mark` while the server runs.
func followFile(ctx context.Context, path string, h *hub.Hub, logger *slog.Logger) error {
	w, err := watcher.New(path)
	if err != nil {
		return err
	}
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				if h.Refresh(ctx) {
					logger.Info("state file changed", "event", ev.Type.String(), "action", "refresh")
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Warn("state file watcher error", "error", err)
			}
		}
	}()
	return nil
}
