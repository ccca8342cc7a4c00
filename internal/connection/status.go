// Package connection holds the per-service connection status and the rules
// for moving between statuses.
package connection

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Service identifies an external provider.
type Service string

const (
	ServiceSlack  Service = "slack"
	ServiceTrello Service = "trello"
)

// ErrUnknownService is returned when a name is not one of Services().
var ErrUnknownService = errors.New("unknown service")

// Services returns the closed set of known services in a stable order.
func Services() []Service {
	return []Service{ServiceSlack, ServiceTrello}
}

// ParseService converts a user-supplied name to a Service.
func ParseService(name string) (Service, error) {
	s := Service(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Services() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
}

// Status is the connection status of one service.
type Status int

const (
	StatusDisconnected Status = iota
	StatusLoading
	StatusDetecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusLoading:
		return "loading"
	case StatusDetecting:
		return "detecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseStatus converts the text form of a status back to a Status.
func ParseStatus(text string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "disconnected":
		return StatusDisconnected, nil
	case "loading":
		return StatusLoading, nil
	case "detecting":
		return StatusDetecting, nil
	case "connected":
		return StatusConnected, nil
	case "error":
		return StatusError, nil
	default:
		return 0, fmt.Errorf("unknown status %q", text)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// State maps every known service to its status.
type State map[Service]Status

// NewState returns a State with every service disconnected.
func NewState() State {
	st := make(State, len(Services()))
	for _, svc := range Services() {
		st[svc] = StatusDisconnected
	}
	return st
}

// Clone returns a copy that always contains every known service.
func (st State) Clone() State {
	out := NewState()
	for svc, status := range st {
		if _, err := ParseService(string(svc)); err != nil {
			continue
		}
		out[svc] = status
	}
	return out
}

// IsDefault reports whether every service is disconnected.
func (st State) IsDefault() bool {
	for _, svc := range Services() {
		if st[svc] != StatusDisconnected {
			return false
		}
	}
	return true
}

// Equal compares two states over the known services.
func (st State) Equal(other State) bool {
	for _, svc := range Services() {
		if st[svc] != other[svc] {
			return false
		}
	}
	return true
}

// String renders the state as "slack=connected trello=disconnected".
func (st State) String() string {
	parts := make([]string, 0, len(st))
	for _, svc := range Services() {
		parts = append(parts, string(svc)+"="+st[svc].String())
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
