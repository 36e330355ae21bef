// Package netmon watches backend reachability by polling the API health
// endpoint and feeds connectivity transitions into the offline queue.
package netmon

import (
	"context"
	"time"

	"github.com/portphilio/portkeeper/internal/logging"
)

// HealthChecker probes the backend. *api.Client satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// StatusSink receives connectivity transitions. *queue.Queue satisfies it.
type StatusSink interface {
	Online() bool
	SetOnline(ctx context.Context, online bool) error
}

// Monitor polls the health endpoint on a fixed interval and flips the
// sink's online status whenever reachability changes.
type Monitor struct {
	checker  HealthChecker
	sink     StatusSink
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger
}

func New(checker HealthChecker, sink StatusSink, interval, timeout time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		checker:  checker,
		sink:     sink,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "netmon"),
	}
}

// Run polls until ctx is cancelled. The first check happens immediately
// so the client does not sit in its default offline state for a full
// interval after boot.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check performs a single health probe and records the transition if
// reachability changed. Errors from the sink (a failed queue drain on
// coming online) are logged, not fatal: the queue keeps its own state
// and will retry on resume.
func (m *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.checker.Health(probeCtx)
	cancel()

	online := err == nil
	if online == m.sink.Online() {
		return
	}
	if online {
		m.log.Info(ctx, "backend reachable, going online")
	} else {
		m.log.Warn(ctx, "backend unreachable, going offline", "error", err)
	}
	if err := m.sink.SetOnline(ctx, online); err != nil {
		m.log.Error(ctx, "connectivity transition incomplete", "error", err)
	}
}
