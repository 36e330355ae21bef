package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/portphilio/portkeeper/internal/client/queue"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/logging"
)

// ModuleName is the artifact collection's key in the persisted snapshot.
const ModuleName = "artifacts"

// Queue action names. Replayed calls use the same parameters as direct
// ones, so a replay is indistinguishable from the call it defers.
const (
	ActionCreate = "artifacts/create"
	ActionUpdate = "artifacts/update"
	ActionRemove = "artifacts/remove"
)

// Service is the slice of the remote API the repository uses.
// *api.Service satisfies it.
type Service interface {
	Find(ctx context.Context, query url.Values, out any) error
	Create(ctx context.Context, data, out any) error
	Update(ctx context.Context, id string, data, out any) error
	Remove(ctx context.Context, id string) error
}

// Mutations.

type Loaded struct{ Count int }
type Saved struct{ ID string }
type Confirmed struct{ ID string }
type Removed struct{ ID string }
type OpFailed struct{ Err string }
type SearchTermsSet struct{ Terms string }
type StatusFilterSet struct{ Statuses []Status }

func (Loaded) Module() string          { return ModuleName }
func (Loaded) Kind() string            { return "loaded" }
func (Saved) Module() string           { return ModuleName }
func (Saved) Kind() string             { return "saved" }
func (Confirmed) Module() string       { return ModuleName }
func (Confirmed) Kind() string         { return "confirmed" }
func (Removed) Module() string         { return ModuleName }
func (Removed) Kind() string           { return "removed" }
func (OpFailed) Module() string        { return ModuleName }
func (OpFailed) Kind() string          { return "op_failed" }
func (SearchTermsSet) Module() string  { return ModuleName }
func (SearchTermsSet) Kind() string    { return "search_terms_set" }
func (StatusFilterSet) Module() string { return ModuleName }
func (StatusFilterSet) Kind() string   { return "status_filter_set" }

type state struct {
	Artifacts   []Artifact `json:"artifacts"`
	Statuses    []Status   `json:"statuses"`
	SearchTerms string     `json:"searchTerms"`
	Error       string     `json:"error,omitempty"`
}

// Repository is the artifact store module.
type Repository struct {
	st  *store.Store
	svc Service
	q   *queue.Queue
	log logging.Logger

	state state
}

func New(st *store.Store, svc Service, q *queue.Queue, log logging.Logger) *Repository {
	r := &Repository{
		st:  st,
		svc: svc,
		q:   q,
		log: log.With("component", "artifacts"),
	}
	q.Register(ActionCreate, r.replayCreate)
	q.Register(ActionUpdate, r.replayUpdate)
	q.Register(ActionRemove, r.replayRemove)
	return r
}

// Name implements store.Module.
func (r *Repository) Name() string { return ModuleName }

// State implements store.Module.
func (r *Repository) State() any { return r.state }

// Restore implements store.Module. Artifact records are reconstructed as
// typed values; any record that predates the local-id scheme gets one
// assigned so it stays addressable.
func (r *Repository) Restore(raw json.RawMessage) error {
	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	for i := range st.Artifacts {
		if st.Artifacts[i].LocalID == "" {
			st.Artifacts[i].LocalID = NewLocalID()
		}
	}
	r.state = st
	return nil
}

// Create adds the artifact locally right away, then synchronizes it:
// directly when online, deferred through the queue otherwise.
func (r *Repository) Create(ctx context.Context, a Artifact) (Artifact, error) {
	if a.LocalID == "" {
		a.LocalID = NewLocalID()
	}
	a = a.Clone()
	r.st.Commit(Saved{ID: a.LocalID}, func() {
		r.state.Artifacts = append(r.state.Artifacts, a)
		r.state.Error = ""
	})

	if !r.q.Online() {
		return a, r.q.Enqueue(ctx, ActionCreate, a)
	}
	return a, r.syncCreate(ctx, a)
}

// Update replaces the local copy immediately and synchronizes the change
// the same way Create does.
func (r *Repository) Update(ctx context.Context, a Artifact) (Artifact, error) {
	a = a.Clone()
	var found bool
	r.st.Commit(Saved{ID: a.SyncID()}, func() {
		for i := range r.state.Artifacts {
			if r.state.Artifacts[i].Is(a.SyncID()) {
				if a.LocalID == "" {
					a.LocalID = r.state.Artifacts[i].LocalID
				}
				r.state.Artifacts[i] = a
				found = true
				return
			}
		}
	})
	if !found {
		return a, fmt.Errorf("artifact %s: %w", a.SyncID(), common.ErrorNotFound)
	}

	if !r.q.Online() {
		return a, r.q.Enqueue(ctx, ActionUpdate, a)
	}
	return a, r.syncUpdate(ctx, a)
}

// removeParams are the parameters of a deferred removal.
type removeParams struct {
	ID string `json:"id"`
}

// Remove deletes the artifact addressed by id (remote id first, local id
// as fallback) from a cloned copy of the collection, then synchronizes
// the deletion if the backend ever saw the artifact.
func (r *Repository) Remove(ctx context.Context, id string) error {
	var removed *Artifact
	r.st.Commit(Removed{ID: id}, func() {
		artifacts := make([]Artifact, 0, len(r.state.Artifacts))
		for _, a := range r.state.Artifacts {
			if removed == nil && a.Is(id) {
				cp := a.Clone()
				removed = &cp
				continue
			}
			artifacts = append(artifacts, a)
		}
		r.state.Artifacts = artifacts
	})
	if removed == nil {
		return fmt.Errorf("artifact %s: %w", id, common.ErrorNotFound)
	}
	if removed.RemoteID == "" {
		// the backend never saw it; nothing to synchronize
		return nil
	}

	if !r.q.Online() {
		return r.q.Enqueue(ctx, ActionRemove, removeParams{ID: removed.RemoteID})
	}
	return r.syncRemove(ctx, removed.RemoteID)
}

// LoadAll replaces the local collection with the owner's artifacts from
// the remote API.
func (r *Repository) LoadAll(ctx context.Context, ownerID string) error {
	query := url.Values{}
	query.Set("userId", ownerID)
	query.Set("$limit", "-1")

	var docs []Artifact
	if err := r.svc.Find(ctx, query, &docs); err != nil {
		r.fail(ctx, err)
		return err
	}
	for i := range docs {
		if docs[i].LocalID == "" {
			docs[i].LocalID = NewLocalID()
		}
	}
	r.st.Commit(Loaded{Count: len(docs)}, func() {
		r.state.Artifacts = docs
		r.state.Error = ""
	})
	return nil
}

// SetSearchTerms updates the search filter applied by Artifacts.
func (r *Repository) SetSearchTerms(terms string) {
	r.st.Commit(SearchTermsSet{Terms: terms}, func() { r.state.SearchTerms = terms })
}

// SetStatuses updates the status filter applied by Artifacts.
func (r *Repository) SetStatuses(statuses []Status) {
	r.st.Commit(StatusFilterSet{Statuses: statuses}, func() { r.state.Statuses = statuses })
}

// Artifact finds one artifact by remote id, falling back to local id.
func (r *Repository) Artifact(id string) (Artifact, bool) {
	var (
		found Artifact
		ok    bool
	)
	r.st.View(func() {
		for _, a := range r.state.Artifacts {
			if a.RemoteID != "" && a.RemoteID == id {
				found, ok = a.Clone(), true
				return
			}
		}
		for _, a := range r.state.Artifacts {
			if a.LocalID == id {
				found, ok = a.Clone(), true
				return
			}
		}
	})
	return found, ok
}

// Artifacts returns the current filtered view of the collection: a clone
// of the full list, narrowed by the status filter, then by the search
// terms. The search scans the already status-filtered set only.
func (r *Repository) Artifacts() []Artifact {
	var (
		list     []Artifact
		statuses []Status
		terms    string
	)
	r.st.View(func() {
		list = make([]Artifact, len(r.state.Artifacts))
		for i, a := range r.state.Artifacts {
			list[i] = a.Clone()
		}
		statuses = r.state.Statuses
		terms = r.state.SearchTerms
	})
	list = filterByStatus(list, statuses)
	list = search(list, terms)
	return list
}

// ---- sync paths (shared by direct calls and queue replays) ----

func (r *Repository) syncCreate(ctx context.Context, a Artifact) error {
	var doc Artifact
	if err := r.svc.Create(ctx, a, &doc); err != nil {
		r.fail(ctx, err)
		return err
	}
	if doc.LocalID == "" {
		doc.LocalID = a.LocalID
	}
	r.confirm(a.LocalID, doc)
	return nil
}

func (r *Repository) syncUpdate(ctx context.Context, a Artifact) error {
	if a.RemoteID == "" {
		// updated before the create ever reached the backend
		return r.syncCreate(ctx, a)
	}
	var doc Artifact
	if err := r.svc.Update(ctx, a.RemoteID, a, &doc); err != nil {
		r.fail(ctx, err)
		return err
	}
	if doc.LocalID == "" {
		doc.LocalID = a.LocalID
	}
	r.confirm(a.LocalID, doc)
	return nil
}

func (r *Repository) syncRemove(ctx context.Context, remoteID string) error {
	if err := r.svc.Remove(ctx, remoteID); err != nil {
		r.fail(ctx, err)
		return err
	}
	return nil
}

func (r *Repository) replayCreate(ctx context.Context, params json.RawMessage) error {
	var a Artifact
	if err := json.Unmarshal(params, &a); err != nil {
		return err
	}
	return r.syncCreate(ctx, a)
}

func (r *Repository) replayUpdate(ctx context.Context, params json.RawMessage) error {
	var a Artifact
	if err := json.Unmarshal(params, &a); err != nil {
		return err
	}
	return r.syncUpdate(ctx, a)
}

func (r *Repository) replayRemove(ctx context.Context, params json.RawMessage) error {
	var p removeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return r.syncRemove(ctx, p.ID)
}

// confirm replaces the optimistic local copy with the stored document
// once the backend has acknowledged it.
func (r *Repository) confirm(localID string, doc Artifact) {
	r.st.Commit(Confirmed{ID: doc.SyncID()}, func() {
		for i := range r.state.Artifacts {
			if r.state.Artifacts[i].LocalID == localID {
				r.state.Artifacts[i] = doc
				return
			}
		}
		// confirmed after a reload dropped the optimistic copy
		r.state.Artifacts = append(r.state.Artifacts, doc)
	})
}

func (r *Repository) fail(ctx context.Context, err error) {
	r.log.Warn(ctx, "artifact sync failed", "error", err)
	r.st.Commit(OpFailed{Err: err.Error()}, func() { r.state.Error = err.Error() })
}

// ---- filtering ----

// filterByStatus keeps only artifacts whose status is in the filter set.
// An empty filter set (or empty collection) passes the input through
// unchanged.
func filterByStatus(artifacts []Artifact, statuses []Status) []Artifact {
	if len(statuses) == 0 || len(artifacts) == 0 {
		return artifacts
	}
	keep := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		keep[s] = true
	}
	out := artifacts[:0]
	for _, a := range artifacts {
		if keep[a.Status] {
			out = append(out, a)
		}
	}
	return out
}

// search narrows the list to artifacts matching the terms. Terms split on
// commas and whitespace into independent case-insensitive fragments; an
// artifact matches if any fragment occurs as a substring in its name,
// URI, narrative, concatenated tags, or concatenated notes.
func search(artifacts []Artifact, terms string) []Artifact {
	fragments := splitTerms(terms)
	if len(fragments) == 0 || len(artifacts) == 0 {
		return artifacts
	}
	out := artifacts[:0]
	for _, a := range artifacts {
		if matchesAny(a, fragments) {
			out = append(out, a)
		}
	}
	return out
}

func splitTerms(terms string) []string {
	raw := strings.FieldsFunc(terms, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		out = append(out, strings.ToLower(f))
	}
	return out
}

func matchesAny(a Artifact, fragments []string) bool {
	var notes strings.Builder
	for _, n := range a.Notes {
		notes.WriteString(n.Note)
	}
	fields := []string{
		strings.ToLower(a.Name),
		strings.ToLower(a.URI),
		strings.ToLower(a.Narrative),
		strings.ToLower(strings.Join(a.Tags, "")),
		strings.ToLower(notes.String()),
	}
	for _, frag := range fragments {
		for _, field := range fields {
			if strings.Contains(field, frag) {
				return true
			}
		}
	}
	return false
}
