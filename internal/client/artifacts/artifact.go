// Package artifacts maintains the local copy of a user's portfolio
// artifacts and keeps it synchronized with the remote API. Creates,
// updates, and removals are optimistic: the local collection changes
// immediately and the remote call is deferred through the offline queue
// whenever connectivity is missing.
package artifacts

import "github.com/google/uuid"

// Status indicates how the user feels about an artifact.
type Status string

const (
	StatusIdea       Status = "idea"
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
)

// Note is one to-do item helping the user organize the artifact-creation
// process. Order is meaningful.
type Note struct {
	ID   string `json:"_id,omitempty"`
	Done bool   `json:"done"`
	Note string `json:"note"`
}

// Artifact is one portfolio item. LocalID is client-generated and stable
// before the backend has seen the artifact; RemoteID is assigned by the
// backend once synced. For lookup an artifact is addressable by either,
// remote id first.
type Artifact struct {
	RemoteID  string   `json:"_id,omitempty"`
	LocalID   string   `json:"uuid"`
	Name      string   `json:"name"`
	Narrative string   `json:"narrative,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Notes     []Note   `json:"notes,omitempty"`
	Status    Status   `json:"status,omitempty"`
	URI       string   `json:"uri,omitempty"`
	OwnerID   string   `json:"userId,omitempty"`
}

// NewLocalID returns a fresh client-side artifact id.
func NewLocalID() string { return uuid.NewString() }

// Is reports whether the artifact is addressable by id: the remote id is
// authoritative, the local id is the fallback.
func (a Artifact) Is(id string) bool {
	if a.RemoteID != "" && a.RemoteID == id {
		return true
	}
	return a.LocalID == id
}

// SyncID returns the identifier to address this artifact with remotely.
func (a Artifact) SyncID() string {
	if a.RemoteID != "" {
		return a.RemoteID
	}
	return a.LocalID
}

// Clone returns a deep copy.
func (a Artifact) Clone() Artifact {
	cp := a
	if a.Tags != nil {
		cp.Tags = make([]string, len(a.Tags))
		copy(cp.Tags, a.Tags)
	}
	if a.Notes != nil {
		cp.Notes = make([]Note, len(a.Notes))
		copy(cp.Notes, a.Notes)
	}
	return cp
}
