// Package resume treats the user returning to the host window as evidence
// that an authorization finished.
package resume

import (
	"context"
	"log/slog"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/browser"
	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/connection"
)

// Detector resolves armed detections when the host window regains focus,
// becomes visible or is restored from the page cache.
type Detector struct {
	machine *connection.Machine
	logger  *slog.Logger
}

// New returns a Detector for machine.
func New(machine *connection.Machine, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{machine: machine, logger: logger}
}

// Handle processes one host event and returns the services it resolved.
// Only services that are detecting with an armed detection are touched.
func (d *Detector) Handle(ev browser.HostEvent) []connection.Service {
	var resolved []connection.Service
	for _, svc := range d.machine.PendingServices() {
		if d.machine.Status(svc) != connection.StatusDetecting {
			continue
		}
		if d.machine.Resolve(svc, connection.StatusConnected, "host_"+string(ev)) {
			resolved = append(resolved, svc)
		}
	}
	if len(resolved) > 0 {
		d.logger.Info("host window resumed",
			"event", string(ev),
			"resolved", len(resolved),
			"action", "resume_connect")
	}
	return resolved
}

// Run handles events until ctx is done or events is closed.
func (d *Detector) Run(ctx context.Context, events <-chan browser.HostEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Handle(ev)
		}
	}
}
