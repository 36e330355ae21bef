// Package users holds the signed-in user's profile document and keeps it
// in sync with the users resource of the remote API.
package users

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/portphilio/portkeeper/internal/client/auth"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/logging"
)

// ModuleName is the profile's key in the persisted snapshot.
const ModuleName = "user"

// Service is the slice of the remote API the module uses. *api.Service
// satisfies it.
type Service interface {
	Find(ctx context.Context, query url.Values, out any) error
	Patch(ctx context.Context, id string, data, out any) error
}

// Profile is the user document as the backend stores it. Metadata is an
// open bag; the "public" flag inside it drives the read-public
// capability.
type Profile struct {
	ID       string         `json:"_id"`
	Email    string         `json:"email,omitempty"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Mutations.

type Fetched struct{ ID string }
type Updated struct{ ID string }
type Cleared struct{}
type OpFailed struct{ Err string }

func (Fetched) Module() string  { return ModuleName }
func (Fetched) Kind() string    { return "fetched" }
func (Updated) Module() string  { return ModuleName }
func (Updated) Kind() string    { return "updated" }
func (Cleared) Module() string  { return ModuleName }
func (Cleared) Kind() string    { return "cleared" }
func (OpFailed) Module() string { return ModuleName }
func (OpFailed) Kind() string   { return "op_failed" }

type state struct {
	Profile Profile `json:"profile"`
	Error   string  `json:"error,omitempty"`
}

// Module is the user profile store module. It watches the mutation
// stream and clears itself when the session ends, so a logout leaves no
// profile data behind.
type Module struct {
	st  *store.Store
	svc Service
	log logging.Logger

	state state
}

func New(st *store.Store, svc Service, log logging.Logger) *Module {
	m := &Module{
		st:  st,
		svc: svc,
		log: log.With("component", "users"),
	}
	st.Subscribe(func(mut store.Mutation, _ store.Snapshot, _ uint64) {
		if _, ok := mut.(auth.LoggedOut); ok {
			m.Clear()
		}
	})
	return m
}

// Name implements store.Module.
func (m *Module) Name() string { return ModuleName }

// State implements store.Module.
func (m *Module) State() any { return m.state }

// Restore implements store.Module.
func (m *Module) Restore(raw json.RawMessage) error {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	m.state = st
	return nil
}

// Profile returns a copy of the current profile document.
func (m *Module) Profile() Profile {
	var p Profile
	m.st.View(func() { p = m.state.Profile.clone() })
	return p
}

// Fetch loads the profile for the given identity-provider subject.
func (m *Module) Fetch(ctx context.Context, subjectID string) (Profile, error) {
	query := url.Values{}
	query.Set("sub", subjectID)

	var docs []Profile
	if err := m.svc.Find(ctx, query, &docs); err != nil {
		m.fail(ctx, err)
		return Profile{}, err
	}
	var p Profile
	if len(docs) > 0 {
		p = docs[0]
	}
	m.st.Commit(Fetched{ID: p.ID}, func() {
		m.state.Profile = p
		m.state.Error = ""
	})
	return p.clone(), nil
}

// Update patches the stored profile with the given metadata changes and
// adopts whatever document the backend returns. The server's answer
// wins: a concurrent edit elsewhere is overwritten remotely but the
// local copy always reflects the stored state.
func (m *Module) Update(ctx context.Context, metadata map[string]any) (Profile, error) {
	id := m.Profile().ID

	var doc Profile
	patch := map[string]any{"user_metadata": metadata}
	if err := m.svc.Patch(ctx, id, patch, &doc); err != nil {
		m.fail(ctx, err)
		return Profile{}, err
	}
	m.st.Commit(Updated{ID: doc.ID}, func() {
		m.state.Profile = doc
		m.state.Error = ""
	})
	return doc.clone(), nil
}

// Clear drops the profile, typically on logout.
func (m *Module) Clear() {
	m.st.Commit(Cleared{}, func() { m.state = state{} })
}

func (m *Module) fail(ctx context.Context, err error) {
	m.log.Warn(ctx, "profile request failed", "error", err)
	m.st.Commit(OpFailed{Err: err.Error()}, func() { m.state.Error = err.Error() })
}

func (p Profile) clone() Profile {
	cp := p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
