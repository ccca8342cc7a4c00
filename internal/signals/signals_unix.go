//go:build !windows

// Package signals routes process signals to a running server and keeps the
// PID file other commands use to find it.
package signals

import (
	"os"
	"os/signal"
	"syscall"
)

// Handler turns process signals into channel events:
//   - SIGHUP re-reads the stored state
//   - SIGUSR1 logs a state dump
//   - SIGINT/SIGTERM shut down
type Handler struct {
	reload   chan struct{}
	shutdown chan os.Signal
	dump     chan struct{}
	stop     func()
}

// New starts listening for signals. Call Close to stop.
func New() (*Handler, error) {
	h := &Handler{
		reload:   make(chan struct{}, 1),
		shutdown: make(chan os.Signal, 1),
		dump:     make(chan struct{}, 1),
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					notify(h.reload)
				case syscall.SIGUSR1:
					notify(h.dump)
				default:
					select {
					case h.shutdown <- sig:
					default:
					}
				}
			}
		}
	}()

	h.stop = func() {
		signal.Stop(sigCh)
		close(done)
	}
	return h, nil
}

// notify coalesces bursts: one pending event is enough.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Reload fires on SIGHUP.
func (h *Handler) Reload() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.reload
}

// DumpStats fires on SIGUSR1.
func (h *Handler) DumpStats() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.dump
}

// Shutdown fires on SIGINT or SIGTERM.
func (h *Handler) Shutdown() <-chan os.Signal {
	if h == nil {
		return nil
	}
	return h.shutdown
}

// Close stops signal delivery.
func (h *Handler) Close() error {
	if h == nil || h.stop == nil {
		return nil
	}
	h.stop()
	h.stop = nil
	return nil
}

// SendHUP asks the process pid to re-read its stored state.
func SendHUP(pid int) error {
	return syscall.Kill(pid, syscall.SIGHUP)
}
