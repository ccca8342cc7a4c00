package browser

import (
	"net"
	"net/url"
	"strings"
)

// RedactURL hides the query and fragment of raw so authorization codes and
// tokens never reach the logs.
func RedactURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			return raw[:i] + "?[redacted]"
		}
		return raw
	}
	hidden := u.RawQuery != "" || u.Fragment != ""
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	out := u.String()
	if hidden {
		out += "?[redacted]"
	}
	return out
}

// IsLoopback reports whether raw points at this machine. Redirect targets
// for the callback server must be loopback.
func IsLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// trimURL removes trailing punctuation that sometimes sticks to addresses
// copied out of text.
func trimURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".,;:!)]}>")
}

// SameOrigin reports whether a and b share scheme, host and port.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme != "" &&
		strings.EqualFold(ua.Scheme, ub.Scheme) &&
		strings.EqualFold(ua.Host, ub.Host)
}
