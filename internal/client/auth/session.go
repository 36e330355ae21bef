// Package auth coordinates the authentication session: login, silent
// refresh, logout, token-expiry checks, and the capability recomputation
// that follows every role-changing event.
package auth

import (
	"encoding/json"
	"time"

	"github.com/portphilio/portkeeper/internal/client/abilities"
)

// ModuleName is the session's key in the persisted snapshot.
const ModuleName = "auth"

// SafetyMargin is the lead time before true expiry at which a session is
// proactively refreshed.
const SafetyMargin = 5 * time.Second

// GoogleSafetyMargin is the equivalent margin for the auxiliary Google
// API token.
const GoogleSafetyMargin = 30 * time.Second

// State is the session lifecycle state. Exactly one holds at any time.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
)

// Session is the credential store: current tokens, decoded identity
// claims, the derived capability set, and pending/error flags. The zero
// value is the unauthenticated default; logout resets to it completely.
type Session struct {
	AccessToken string `json:"access_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	// SubjectID is the identity provider's unique user id.
	SubjectID string `json:"user_id,omitempty"`
	// APIID is the id of this user's document in the backend API.
	APIID     string            `json:"api_id,omitempty"`
	Roles     []string          `json:"roles,omitempty"`
	Abilities abilities.RuleSet `json:"abilities,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
	IssuedAt  time.Time         `json:"issued_at,omitempty"`

	// Auxiliary Google API token, cached with its own expiry and
	// independent of the primary token's lifecycle.
	GoogleToken  string    `json:"google_token,omitempty"`
	GoogleExpiry time.Time `json:"google_expiry,omitempty"`

	// IsAuthenticating guards against overlapping interactive flows; it
	// is a pending flag, not a lock.
	IsAuthenticating bool   `json:"is_authenticating,omitempty"`
	Error            string `json:"error,omitempty"`
}

// State derives the lifecycle state at the given instant.
func (s Session) State(now time.Time) State {
	if s.IsAuthenticating {
		return StateAuthenticating
	}
	if s.AccessToken == "" || s.ExpiresAt.IsZero() {
		return StateUnauthenticated
	}
	if now.Before(s.ExpiresAt) {
		return StateAuthenticated
	}
	return StateExpired
}

// IsAuthenticated reports whether the session holds an unexpired token.
func (s Session) IsAuthenticated(now time.Time) bool {
	return s.State(now) == StateAuthenticated
}

// Mutations. Subscribers (capability consumers, the user profile module)
// type-switch on these.

type LoginRequested struct{}
type LoginSucceeded struct{ Session Session }
type LoginFailed struct{ Err string }
type RefreshRequested struct{}
type RefreshSucceeded struct{}
type RefreshFailed struct{ Err string }
type GoogleTokenRequested struct{}
type GoogleTokenSucceeded struct{}
type GoogleTokenFailed struct{ Err string }
type LoggedOut struct{}

func (LoginRequested) Module() string       { return ModuleName }
func (LoginRequested) Kind() string         { return "login_requested" }
func (LoginSucceeded) Module() string       { return ModuleName }
func (LoginSucceeded) Kind() string         { return "login_succeeded" }
func (LoginFailed) Module() string          { return ModuleName }
func (LoginFailed) Kind() string            { return "login_failed" }
func (RefreshRequested) Module() string     { return ModuleName }
func (RefreshRequested) Kind() string       { return "refresh_requested" }
func (RefreshSucceeded) Module() string     { return ModuleName }
func (RefreshSucceeded) Kind() string       { return "refresh_succeeded" }
func (RefreshFailed) Module() string        { return ModuleName }
func (RefreshFailed) Kind() string          { return "refresh_failed" }
func (GoogleTokenRequested) Module() string { return ModuleName }
func (GoogleTokenRequested) Kind() string   { return "google_token_requested" }
func (GoogleTokenSucceeded) Module() string { return ModuleName }
func (GoogleTokenSucceeded) Kind() string   { return "google_token_succeeded" }
func (GoogleTokenFailed) Module() string    { return ModuleName }
func (GoogleTokenFailed) Kind() string      { return "google_token_failed" }
func (LoggedOut) Module() string            { return ModuleName }
func (LoggedOut) Kind() string              { return "logged_out" }

// restoreSession rehydrates a persisted session. A pending flag never
// survives a reboot: whatever flow was in flight is gone.
func restoreSession(raw json.RawMessage) (Session, error) {
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	s.IsAuthenticating = false
	return s, nil
}
