// Package routeguard holds navigation until the application is ready for
// it: durable state must be rehydrated before any route renders, and
// protected routes additionally need a valid session.
package routeguard

import (
	"context"
	"fmt"

	"github.com/portphilio/portkeeper/internal/logging"
)

// Route describes a navigation target and whether it needs a session.
type Route struct {
	Name         string
	RequiresAuth bool
}

// Readiness is the one-shot rehydration signal. *persistence.Engine
// satisfies it.
type Readiness interface {
	Wait(ctx context.Context) error
}

// SessionEnsurer validates (and silently refreshes) the current session.
// *auth.Coordinator satisfies it.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) error
}

// Guard decides whether navigation to a route may proceed.
type Guard struct {
	ready    Readiness
	sessions SessionEnsurer
	log      logging.Logger
}

func New(ready Readiness, sessions SessionEnsurer, log logging.Logger) *Guard {
	return &Guard{
		ready:    ready,
		sessions: sessions,
		log:      log.With("component", "routeguard"),
	}
}

// Allow blocks until durable state is rehydrated, then validates the
// session for routes that require one. A nil return means navigation may
// proceed; an error means the caller should redirect to login (or
// surface the failure).
func (g *Guard) Allow(ctx context.Context, route Route) error {
	if err := g.ready.Wait(ctx); err != nil {
		return fmt.Errorf("route %s: waiting for rehydration: %w", route.Name, err)
	}
	if !route.RequiresAuth {
		return nil
	}
	if err := g.sessions.EnsureSession(ctx); err != nil {
		g.log.Debug(ctx, "navigation blocked", "route", route.Name, "error", err)
		return fmt.Errorf("route %s: %w", route.Name, err)
	}
	return nil
}
