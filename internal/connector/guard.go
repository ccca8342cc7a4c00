package connector

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
)

// ErrUnsafeEndpoint is returned for addresses the tracker refuses to open
// or fetch.
var ErrUnsafeEndpoint = errors.New("unsafe endpoint")

// ValidateEndpoint accepts https addresses, and plain http only on a
// loopback host. A non-empty allowHosts further restricts the host to the
// listed domains and their subdomains; loopback hosts always pass.
func ValidateEndpoint(raw string, allowHosts []string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty address", ErrUnsafeEndpoint)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeEndpoint, err)
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("%w: missing host in %s", ErrUnsafeEndpoint, browser.RedactURL(raw))
	}

	loopback := browser.IsLoopback(raw)
	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && !(scheme == "http" && loopback) {
		return fmt.Errorf("%w: scheme %q (host=%q)", ErrUnsafeEndpoint, scheme, host)
	}
	if loopback || len(allowHosts) == 0 {
		return nil
	}

	for _, allowed := range allowHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q not allowlisted", ErrUnsafeEndpoint, host)
}
