//go:build windows

// Package signals routes process signals to a running server and keeps the
// PID file other commands use to find it.
package signals

import (
	"errors"
	"os"
	"os/signal"
)

// Handler delivers interrupt as shutdown. Reload and dump have no signal on
// this platform.
type Handler struct {
	reload   chan struct{}
	shutdown chan os.Signal
	dump     chan struct{}
	stop     func()
}

// New starts listening for interrupts.
func New() (*Handler, error) {
	h := &Handler{
		reload:   make(chan struct{}, 1),
		shutdown: make(chan os.Signal, 1),
		dump:     make(chan struct{}, 1),
	}
	signal.Notify(h.shutdown, os.Interrupt)
	h.stop = func() { signal.Stop(h.shutdown) }
	return h, nil
}

func (h *Handler) Reload() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.reload
}

func (h *Handler) DumpStats() <-chan struct{} {
	if h == nil {
		return nil
	}
	return h.dump
}

func (h *Handler) Shutdown() <-chan os.Signal {
	if h == nil {
		return nil
	}
	return h.shutdown
}

func (h *Handler) Close() error {
	if h == nil || h.stop == nil {
		return nil
	}
	h.stop()
	h.stop = nil
	return nil
}

// SendHUP is not supported on Windows.
func SendHUP(pid int) error {
	return errors.New("reload signal not supported on windows")
}
