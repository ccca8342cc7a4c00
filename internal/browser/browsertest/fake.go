// Package browsertest provides in-memory windows for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
)

// Window is a scripted browser.Window. Title and URL return the values set
// by the test; a cross-origin window returns browser.ErrAccessDenied.
type Window struct {
	mu          sync.Mutex
	id          string
	openedURL   string
	title       string
	url         string
	crossOrigin bool
	closed      bool
	closeCalls  int
	reads       int
}

// ID implements browser.Window.
func (w *Window) ID() string { return w.id }

// OpenedURL returns the address the window was opened with.
func (w *Window) OpenedURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openedURL
}

// SetTitle sets the document title.
func (w *Window) SetTitle(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.title = title
}

// Navigate sets the current address.
func (w *Window) Navigate(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.url = url
}

// SetCrossOrigin makes property reads fail.
func (w *Window) SetCrossOrigin(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.crossOrigin = v
}

// UserClose simulates the user closing the window.
func (w *Window) UserClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Title implements browser.Window.
func (w *Window) Title(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	if w.closed {
		return "", browser.ErrWindowClosed
	}
	if w.crossOrigin {
		return "", fmt.Errorf("%w: cross-origin", browser.ErrAccessDenied)
	}
	return w.title, nil
}

// URL implements browser.Window.
func (w *Window) URL(context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reads++
	if w.closed {
		return "", browser.ErrWindowClosed
	}
	if w.crossOrigin {
		return "", fmt.Errorf("%w: cross-origin", browser.ErrAccessDenied)
	}
	return w.url, nil
}

// Closed implements browser.Window.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Close implements browser.Window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.closeCalls++
	return nil
}

// CloseCalls returns how many times Close was called.
func (w *Window) CloseCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeCalls
}

// Reads returns how many property reads were attempted.
func (w *Window) Reads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reads
}

// Opener records opened windows. Set Blocked to make Open fail.
type Opener struct {
	mu       sync.Mutex
	blocked  bool
	windows  []*Window
	features []browser.Features
}

// NewOpener returns an Opener that allows popups.
func NewOpener() *Opener { return &Opener{} }

// SetBlocked makes subsequent Open calls fail.
func (o *Opener) SetBlocked(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blocked = v
}

// Open implements browser.Opener.
func (o *Opener) Open(_ context.Context, url string, features browser.Features) (browser.Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.blocked {
		return nil, errors.New("popup blocked by browser")
	}
	w := &Window{id: fmt.Sprintf("window-%d", len(o.windows)+1), openedURL: url, url: "about:blank"}
	o.windows = append(o.windows, w)
	o.features = append(o.features, features)
	return w, nil
}

// Windows returns every window opened so far.
func (o *Opener) Windows() []*Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Window(nil), o.windows...)
}

// Last returns the most recently opened window, or nil.
func (o *Opener) Last() *Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.windows) == 0 {
		return nil
	}
	return o.windows[len(o.windows)-1]
}

// LastFeatures returns the features of the most recent Open.
func (o *Opener) LastFeatures() browser.Features {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.features) == 0 {
		return browser.Features{}
	}
	return o.features[len(o.features)-1]
}
