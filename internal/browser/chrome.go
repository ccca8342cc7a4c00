package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

const (
	chromeStartTimeout = 30 * time.Second
	readTimeout        = 2 * time.Second
	hostBindingName    = "hrconnectHost"
)

// hostScript reports focus, visibility and pageshow events on the host page
// through the CDP binding.
const hostScript = `(() => {
  const send = (t) => { try { window.` + hostBindingName + `(t); } catch (_) {} };
  window.addEventListener('focus', () => send('focus'));
  document.addEventListener('visibilitychange', () => {
    if (document.visibilityState === 'visible') send('visible');
  });
  window.addEventListener('pageshow', () => send('pageshow'));
})();`

// ChromeOptions configures the Chrome driver.
type ChromeOptions struct {
	// RemoteURL attaches to a running Chrome (ws://...) instead of
	// launching one.
	RemoteURL string
	// ExecPath overrides the Chrome binary.
	ExecPath string
	// ProfileDir is the user data directory for a launched Chrome.
	ProfileDir string
	Headless   bool
	// HostOrigin is the origin of the dashboard. Popup title and address
	// are only readable while the popup is on this origin; empty allows
	// every read.
	HostOrigin string
	Logger     *slog.Logger
}

// Chrome opens popups as new browser windows and watches the host tab.
type Chrome struct {
	logger     *slog.Logger
	hostOrigin string

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	events chan HostEvent

	mu      sync.Mutex
	windows map[target.ID]*chromeWindow
	closed  bool
}

// LaunchChrome starts (or attaches to) Chrome and prepares the host tab.
func LaunchChrome(opts ChromeOptions) (*Chrome, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		opts.Logger.Info("connecting to Chrome", "url", RedactURL(opts.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), opts.RemoteURL)
	} else {
		if opts.ProfileDir != "" {
			if err := os.MkdirAll(opts.ProfileDir, 0700); err != nil {
				return nil, fmt.Errorf("create chrome profile dir: %w", err)
			}
		}
		opts.Logger.Info("launching Chrome", "profile", opts.ProfileDir, "headless", opts.Headless)
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), execOptions(opts)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c := &Chrome{
		logger:        opts.Logger,
		hostOrigin:    opts.HostOrigin,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		events:        make(chan HostEvent, 16),
		windows:       make(map[target.ID]*chromeWindow),
	}

	chromedp.ListenTarget(browserCtx, c.onHostEvent)

	startCtx, cancel := context.WithTimeout(browserCtx, chromeStartTimeout)
	defer cancel()
	err := chromedp.Run(startCtx,
		cdpruntime.AddBinding(hostBindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hostScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return target.SetDiscoverTargets(true).Do(browserExecutor(ctx))
		}),
	)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	chromedp.ListenBrowser(browserCtx, c.onBrowserEvent)
	return c, nil
}

func execOptions(opts ChromeOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-popup-blocking", false),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.WindowSize(1280, 800),
	)
	if opts.ProfileDir != "" {
		out = append(out, chromedp.UserDataDir(opts.ProfileDir))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.Headless {
		out = append(out, chromedp.Headless)
	} else {
		out = append(out, chromedp.Flag("headless", false))
	}
	return out
}

func browserExecutor(ctx context.Context) context.Context {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Browser == nil {
		return ctx
	}
	return cdp.WithExecutor(ctx, c.Browser)
}

// ShowHost navigates the host tab to url.
func (c *Chrome) ShowHost(ctx context.Context, url string) error {
	if err := chromedp.Run(c.browserCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate host: %w", err)
	}
	c.logger.Info("host window ready", "url", RedactURL(url))
	return nil
}

// HostEvents delivers focus, visibility and pageshow signals from the host
// tab. Events are dropped while the channel is full.
func (c *Chrome) HostEvents() <-chan HostEvent {
	return c.events
}

// Open creates a new browser window showing url.
func (c *Chrome) Open(ctx context.Context, url string, features Features) (Window, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("chrome closed")
	}
	c.mu.Unlock()

	url = trimURL(url)
	var id target.ID
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget(url).
			WithNewWindow(true).
			WithWidth(int64(features.Width)).
			WithHeight(int64(features.Height)).
			Do(browserExecutor(ctx))
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach window: %w", err)
	}

	w := &chromeWindow{id: id, ctx: tabCtx, cancel: cancel, origin: c.hostOrigin}
	c.mu.Lock()
	c.windows[id] = w
	c.mu.Unlock()

	c.logger.Debug("window opened",
		"target_id", string(id),
		"url", RedactURL(url),
		"features", features.String())
	return w, nil
}

// Close closes every window and shuts Chrome down.
func (c *Chrome) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	windows := make([]*chromeWindow, 0, len(c.windows))
	for _, w := range c.windows {
		windows = append(windows, w)
	}
	c.mu.Unlock()

	for _, w := range windows {
		_ = w.Close()
	}
	c.browserCancel()
	c.allocCancel()
	return nil
}

// onBrowserEvent marks a window closed once its target is destroyed.
// Detach events only carry a session and are covered by the read path.
func (c *Chrome) onBrowserEvent(ev interface{}) {
	destroyed, ok := ev.(*target.EventTargetDestroyed)
	if !ok {
		return
	}
	c.mu.Lock()
	w, ok := c.windows[destroyed.TargetID]
	delete(c.windows, destroyed.TargetID)
	c.mu.Unlock()
	if ok {
		w.markClosed()
	}
}

func (c *Chrome) onHostEvent(ev interface{}) {
	called, ok := ev.(*cdpruntime.EventBindingCalled)
	if !ok || called.Name != hostBindingName {
		return
	}
	hostEv, err := ParseHostEvent(called.Payload)
	if err != nil {
		return
	}
	select {
	case c.events <- hostEv:
	default:
	}
}

type chromeWindow struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc
	origin string

	mu     sync.Mutex
	closed bool
}

func (w *chromeWindow) ID() string { return string(w.id) }

func (w *chromeWindow) Title(ctx context.Context) (string, error) {
	if _, err := w.URL(ctx); err != nil {
		return "", err
	}
	var title string
	err := w.read(ctx, chromedp.Title(&title))
	return title, err
}

// URL reads the address. Like a page script, it cannot see where a window
// on another origin went.
func (w *chromeWindow) URL(ctx context.Context) (string, error) {
	var loc string
	if err := w.read(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	if w.origin != "" && !SameOrigin(loc, w.origin) {
		return "", fmt.Errorf("%w: cross-origin", ErrAccessDenied)
	}
	return loc, nil
}

func (w *chromeWindow) read(ctx context.Context, action chromedp.Action) error {
	if w.Closed() {
		return ErrWindowClosed
	}
	readCtx, cancel := context.WithTimeout(w.ctx, readTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(readCtx, action); err != nil {
		if isTargetGone(err) {
			w.markClosed()
			return ErrWindowClosed
		}
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}
	return nil
}

func (w *chromeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *chromeWindow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(w.ctx, readTimeout)
	defer cancel()
	err := chromedp.Run(ctx, page.Close())
	w.cancel()
	if err != nil && !isTargetGone(err) {
		return fmt.Errorf("close window: %w", err)
	}
	return nil
}

func (w *chromeWindow) markClosed() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func isTargetGone(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no target with given id") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "session with given id not found")
}
