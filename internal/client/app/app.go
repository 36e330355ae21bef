// Package app assembles the client core: configuration, snapshot
// database, state store, persistence, offline queue, session
// coordinator, and connectivity monitor, wired as explicit dependencies.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/portphilio/portkeeper/internal/client/api"
	"github.com/portphilio/portkeeper/internal/client/artifacts"
	"github.com/portphilio/portkeeper/internal/client/auth"
	"github.com/portphilio/portkeeper/internal/client/config"
	"github.com/portphilio/portkeeper/internal/client/idp"
	"github.com/portphilio/portkeeper/internal/client/netmon"
	"github.com/portphilio/portkeeper/internal/client/queue"
	"github.com/portphilio/portkeeper/internal/client/repositories/snapshots"
	"github.com/portphilio/portkeeper/internal/client/routeguard"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/client/store/persistence"
	"github.com/portphilio/portkeeper/internal/client/users"
	"github.com/portphilio/portkeeper/internal/logging"

	_ "modernc.org/sqlite"
)

// App is the assembled client core.
type App struct {
	Store       *store.Store
	Persistence *persistence.Engine
	Queue       *queue.Queue
	Auth        *auth.Coordinator
	Artifacts   *artifacts.Repository
	Users       *users.Module
	Guard       *routeguard.Guard
	Monitor     *netmon.Monitor

	db  *sql.DB
	log logging.Logger
}

// New wires the client core together. The redirect hook surfaces
// identity-provider redirects to the host environment.
func New(ctx context.Context, cfg *config.Config, redirect idp.RedirectFunc, log logging.Logger) (*App, error) {
	repo, db, err := snapshots.InitDatabase(ctx, cfg.SnapshotDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	st := store.New()
	engine := persistence.New(repo, st, log)
	q := queue.New(st, log)

	// The API client authenticates with the coordinator's token, and the
	// coordinator resolves auxiliary tokens through the API. The token
	// source breaks the construction cycle: it reads the coordinator
	// lazily and yields no token until one exists.
	var coordinator *auth.Coordinator
	apiClient, err := api.New(cfg.APIBaseURL, func() string {
		if coordinator == nil {
			return ""
		}
		return coordinator.AccessToken()
	}, cfg.RequestTimeout)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build api client: %w", err)
	}

	provider := idp.NewAuth0Provider(idp.Auth0Config{
		Domain:      cfg.Auth0.Domain,
		ClientID:    cfg.Auth0.ClientID,
		RedirectURI: cfg.Auth0.RedirectURI,
		Audience:    cfg.Auth0.Audience,
		Scope:       cfg.Auth0.Scope,
	}, redirect, cfg.RequestTimeout)

	coordinator = auth.NewCoordinator(st, provider, apiClient.Service("tokens"),
		cfg.Auth0.Namespace, log,
		auth.WithLogoutReturnTo(cfg.Auth0.LogoutReturnTo))

	repository := artifacts.New(st, apiClient.Service("artifacts"), q, log)
	profile := users.New(st, apiClient.Service("users"), log)

	for _, m := range []store.Module{coordinator, q, repository, profile} {
		if err := st.Register(m); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &App{
		Store:       st,
		Persistence: engine,
		Queue:       q,
		Auth:        coordinator,
		Artifacts:   repository,
		Users:       profile,
		Guard:       routeguard.New(engine, coordinator, log),
		Monitor:     netmon.New(apiClient, q, cfg.OnlineCheckInterval, cfg.HealthTimeout, log),
		db:          db,
		log:         log,
	}, nil
}

// Run boots the core and blocks until ctx is cancelled: rehydrates
// durable state, starts connectivity monitoring, and validates any
// restored session once online.
func (a *App) Run(ctx context.Context) error {
	if err := a.Persistence.Start(ctx); err != nil {
		return fmt.Errorf("failed to start persistence: %w", err)
	}

	go a.Monitor.Run(ctx)

	if err := a.Auth.EnsureSession(ctx); err != nil {
		// no session or an expired one is a normal cold start
		a.log.Info(ctx, "no valid session at boot", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Close flushes pending snapshot writes and releases the database.
func (a *App) Close() error {
	a.Persistence.Flush()
	return a.db.Close()
}
