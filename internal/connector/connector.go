// Package connector knows how to reach each provider: the address of its
// authorization page and a reachability check for the non-popup path.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

// ErrNotConfigured is returned for a service with no endpoints.
var ErrNotConfigured = errors.New("service not configured")

const defaultCheckTimeout = 10 * time.Second

// Endpoint holds one provider's settings.
type Endpoint struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	// RedirectURL defaults to <callback base>/callback?service=<name>.
	RedirectURL string
	// CheckURL is fetched by Check. Empty means nothing to check.
	CheckURL string
}

// Connector builds authorization addresses and runs checks.
type Connector struct {
	callbackBase string
	endpoints    map[connection.Service]Endpoint
	client       *http.Client
}

// New returns a Connector. callbackBase is the callback server address,
// e.g. "http://127.0.0.1:8765".
func New(callbackBase string, endpoints map[connection.Service]Endpoint, client *http.Client) *Connector {
	if client == nil {
		client = &http.Client{Timeout: defaultCheckTimeout}
	}
	eps := make(map[connection.Service]Endpoint, len(endpoints))
	for svc, ep := range endpoints {
		eps[svc] = ep
	}
	return &Connector{
		callbackBase: strings.TrimRight(callbackBase, "/"),
		endpoints:    eps,
		client:       client,
	}
}

// OAuthConfig returns the oauth2 settings for svc.
func (c *Connector) OAuthConfig(svc connection.Service) (*oauth2.Config, error) {
	ep, ok := c.endpoints[svc]
	if !ok || ep.AuthURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, svc)
	}
	redirect := ep.RedirectURL
	if redirect == "" {
		redirect = c.CallbackURL(svc)
	}
	return &oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  ep.AuthURL,
			TokenURL: ep.TokenURL,
		},
		RedirectURL: redirect,
		Scopes:      ep.Scopes,
	}, nil
}

// CallbackURL is where the provider sends the user back for svc.
func (c *Connector) CallbackURL(svc connection.Service) string {
	return c.callbackBase + "/callback?service=" + url.QueryEscape(string(svc))
}

// AuthURL returns the authorization page for svc. state is echoed back by
// the provider on the return navigation.
func (c *Connector) AuthURL(svc connection.Service, state string) (string, error) {
	cfg, err := c.OAuthConfig(svc)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Check verifies svc is reachable. A service without a check address
// passes.
func (c *Connector) Check(ctx context.Context, svc connection.Service) error {
	ep, ok := c.endpoints[svc]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConfigured, svc)
	}
	if ep.CheckURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.CheckURL, nil)
	if err != nil {
		return fmt.Errorf("build check request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("check %s: %w", svc, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("check %s: unexpected status %d", svc, resp.StatusCode)
	}
	return nil
}
