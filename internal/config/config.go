// Package config manages hrconnect configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connector"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/detect"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/store"
)

// DefaultListen is the callback server address.
const DefaultListen = "127.0.0.1:8765"

// Duration is a time.Duration written as "90s" in YAML.
type Duration time.Duration

// Duration returns the value as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the on-disk configuration.
type Config struct {
	Listen    string                   `yaml:"listen"`
	Scope     ScopeConfig              `yaml:"scope"`
	Store     StoreConfig              `yaml:"store"`
	Detection DetectionConfig          `yaml:"detection"`
	Popup     PopupConfig              `yaml:"popup"`
	Chrome    ChromeConfig             `yaml:"chrome"`
	Services  map[string]ServiceConfig `yaml:"services"`
}

// ScopeConfig selects the identity scope.
type ScopeConfig struct {
	Tier  string `yaml:"tier"`
	User  string `yaml:"user,omitempty"`
	Label string `yaml:"label"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"`
	Path    string `yaml:"path,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

// DetectionConfig tunes the completion detector.
type DetectionConfig struct {
	PollInterval    Duration `yaml:"poll_interval"`
	ClosureInterval Duration `yaml:"closure_interval"`
	LongOpenTicks   int      `yaml:"long_open_ticks"`
	ShortCloseTicks int      `yaml:"short_close_ticks"`
	MaxAttempts     int      `yaml:"max_attempts"`
	FallbackTimeout Duration `yaml:"fallback_timeout"`
}

// PopupConfig sizes the authorization window.
type PopupConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// ChromeConfig configures the browser driver.
type ChromeConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Headless   bool   `yaml:"headless"`
	ExecPath   string `yaml:"exec_path,omitempty"`
	RemoteURL  string `yaml:"remote_url,omitempty"`
	ProfileDir string `yaml:"profile_dir,omitempty"`
}

// ServiceConfig describes one provider's authorization endpoints.
type ServiceConfig struct {
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	RedirectURL  string   `yaml:"redirect_url,omitempty"`
	CheckURL     string   `yaml:"check_url,omitempty"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	th := detect.DefaultThresholds()
	f := browser.DefaultFeatures()
	return &Config{
		Listen: DefaultListen,
		Scope: ScopeConfig{
			Tier:  string(store.TierLocal),
			Label: store.DefaultLabel,
		},
		Detection: DetectionConfig{
			PollInterval:    Duration(th.PollInterval),
			ClosureInterval: Duration(th.ClosureInterval),
			LongOpenTicks:   th.LongOpen,
			ShortCloseTicks: th.ShortClose,
			MaxAttempts:     th.MaxAttempts,
			FallbackTimeout: Duration(connection.DefaultFallbackTimeout),
		},
		Popup: PopupConfig{Width: f.Width, Height: f.Height},
		Chrome: ChromeConfig{
			Enabled: true,
		},
		Services: map[string]ServiceConfig{
			string(connection.ServiceSlack): {
				AuthURL:  "https://slack.com/oauth/v2/authorize",
				TokenURL: "https://slack.com/api/oauth.v2.access",
				Scopes:   []string{"chat:write", "channels:read"},
				CheckURL: "https://slack.com/api/api.test",
			},
			string(connection.ServiceTrello): {
				AuthURL:  "https://trello.com/1/authorize",
				Scopes:   []string{"read", "write"},
				CheckURL: "https://api.trello.com/1/",
			},
		},
	}
}

// HomeDir returns HRCONNECT_HOME when set.
func HomeDir() string {
	return os.Getenv("HRCONNECT_HOME")
}

// ConfigPath returns the configuration file location.
func ConfigPath() string {
	if home := HomeDir(); home != "" {
		return filepath.Join(home, "config.yaml")
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "hrconnect", "config.yaml")
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "hrconnect", "config.yaml")
}

// Load reads the configuration from ConfigPath.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads path. A missing file yields DefaultConfig. Fields absent
// from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to ConfigPath.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the configuration atomically with 0600 permissions.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the tracker cannot run with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	tier, err := store.ParseTier(c.Scope.Tier)
	if err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "", store.BackendMemory, store.BackendFile, store.BackendSQLite, store.BackendPostgres:
	default:
		return fmt.Errorf("store: unknown backend %q", c.Store.Backend)
	}
	if tier == store.TierShared && strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("store: shared tier requires a dsn")
	}
	if err := c.Thresholds().Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}
	if c.Detection.FallbackTimeout <= 0 {
		return fmt.Errorf("detection: fallback_timeout must be positive")
	}
	if c.Popup.Width <= 0 || c.Popup.Height <= 0 {
		return fmt.Errorf("popup: width and height must be positive")
	}
	for name, svc := range c.Services {
		if _, err := connection.ParseService(name); err != nil {
			return fmt.Errorf("services: %w", err)
		}
		if strings.TrimSpace(svc.AuthURL) == "" {
			return fmt.Errorf("services.%s: auth_url is required", name)
		}
		for field, raw := range map[string]string{
			"auth_url":     svc.AuthURL,
			"token_url":    svc.TokenURL,
			"check_url":    svc.CheckURL,
			"redirect_url": svc.RedirectURL,
		} {
			if raw == "" {
				continue
			}
			if err := connector.ValidateEndpoint(raw, nil); err != nil {
				return fmt.Errorf("services.%s.%s: %w", name, field, err)
			}
		}
	}
	return nil
}

// Thresholds returns the detector settings.
func (c *Config) Thresholds() detect.Thresholds {
	return detect.Thresholds{
		LongOpen:        c.Detection.LongOpenTicks,
		ShortClose:      c.Detection.ShortCloseTicks,
		MaxAttempts:     c.Detection.MaxAttempts,
		PollInterval:    c.Detection.PollInterval.Duration(),
		ClosureInterval: c.Detection.ClosureInterval.Duration(),
	}
}

// Features returns the popup window features.
func (c *Config) Features() browser.Features {
	f := browser.DefaultFeatures()
	f.Width = c.Popup.Width
	f.Height = c.Popup.Height
	return f
}

// ScopeValue returns the configured scope.
func (c *Config) ScopeValue() (store.Scope, error) {
	tier, err := store.ParseTier(c.Scope.Tier)
	if err != nil {
		return store.Scope{}, err
	}
	return store.Scope{Tier: tier, UserID: c.Scope.User, Label: c.Scope.Label}, nil
}

// StoreOptions returns the backend options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{Backend: c.Store.Backend, Path: c.Store.Path, DSN: c.Store.DSN}
}

// Service returns the settings for svc.
func (c *Config) Service(svc connection.Service) (ServiceConfig, bool) {
	sc, ok := c.Services[string(svc)]
	return sc, ok
}

// BaseURL is the address of the callback server.
func (c *Config) BaseURL() string {
	return "http://" + c.Listen
}
