// Package browser drives the secondary authorization window and the host
// window that shows the dashboard.
//
// The popup logic only sees the Window and Opener interfaces; Chrome is the
// DevTools-protocol implementation used by the server.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAccessDenied is returned when a window property cannot be read, as
// when the window is on another origin or its target detached.
var ErrAccessDenied = errors.New("window property not readable")

// ErrWindowClosed is returned by reads on a window that is gone.
var ErrWindowClosed = errors.New("window closed")

// Features describes the secondary window.
type Features struct {
	Width      int
	Height     int
	Resizable  bool
	Scrollbars bool
}

// DefaultFeatures is the fixed popup feature set.
func DefaultFeatures() Features {
	return Features{Width: 600, Height: 700, Resizable: true, Scrollbars: true}
}

// String renders the features in window.open form.
func (f Features) String() string {
	return fmt.Sprintf("width=%d,height=%d,resizable=%s,scrollbars=%s",
		f.Width, f.Height, yesNo(f.Resizable), yesNo(f.Scrollbars))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// Window is an open secondary window.
type Window interface {
	// ID identifies the window for logs.
	ID() string
	// Title reads the document title. Cross-origin or detached windows
	// return an error wrapping ErrAccessDenied.
	Title(ctx context.Context) (string, error)
	// URL reads the current address, with the same error rules as Title.
	URL(ctx context.Context) (string, error)
	// Closed reports whether the user or the page closed the window.
	Closed() bool
	// Close closes the window. Closing twice is not an error.
	Close() error
}

// Opener creates secondary windows. A failure to open is how a blocked
// popup shows up.
type Opener interface {
	Open(ctx context.Context, url string, features Features) (Window, error)
}

// HostEvent is a signal that the user returned to the host window.
type HostEvent string

const (
	HostFocus    HostEvent = "focus"
	HostVisible  HostEvent = "visible"
	HostPageShow HostEvent = "pageshow"
)

// ParseHostEvent validates an event name.
func ParseHostEvent(name string) (HostEvent, error) {
	switch ev := HostEvent(strings.ToLower(strings.TrimSpace(name))); ev {
	case HostFocus, HostVisible, HostPageShow:
		return ev, nil
	default:
		return "", fmt.Errorf("unknown host event %q", name)
	}
}
