package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/portphilio/portkeeper/internal/client/abilities"
	"github.com/portphilio/portkeeper/internal/client/idp"
	"github.com/portphilio/portkeeper/internal/client/store"
	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/logging"
)

// GoogleTokenService is the slice of the remote API the coordinator needs
// to mint auxiliary Google tokens. *api.Service satisfies it.
type GoogleTokenService interface {
	Update(ctx context.Context, id string, data, out any) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogoutReturnTo sets where the provider redirects after logout.
func WithLogoutReturnTo(returnTo string) Option {
	return func(c *Coordinator) { c.returnTo = returnTo }
}

// Coordinator orchestrates the session lifecycle and owns the "auth"
// store module (the credential store).
type Coordinator struct {
	st       *store.Store
	provider idp.Provider
	tokens   GoogleTokenService
	log      logging.Logger

	namespace string
	returnTo  string
	now       func() time.Time

	state Session
}

func NewCoordinator(st *store.Store, provider idp.Provider, tokens GoogleTokenService, namespace string, log logging.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		st:        st,
		provider:  provider,
		tokens:    tokens,
		log:       log.With("component", "auth"),
		namespace: namespace,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements store.Module.
func (c *Coordinator) Name() string { return ModuleName }

// State implements store.Module.
func (c *Coordinator) State() any { return c.state }

// Restore implements store.Module.
func (c *Coordinator) Restore(raw json.RawMessage) error {
	s, err := restoreSession(raw)
	if err != nil {
		return err
	}
	c.state = s
	return nil
}

// Session returns a copy of the current session state.
func (c *Coordinator) Session() Session {
	var s Session
	c.st.View(func() { s = c.state })
	return s
}

// AccessToken returns the current access token, or "" when there is none.
// Suitable as an api.TokenSource.
func (c *Coordinator) AccessToken() string {
	return c.Session().AccessToken
}

// IsAuthenticated reports whether the session currently holds an
// unexpired token.
func (c *Coordinator) IsAuthenticated() bool {
	return c.Session().IsAuthenticated(c.now())
}

// EnsureSession makes sure a valid session exists before proceeding:
// a token expiring more than SafetyMargin from now is accepted as-is
// with no network call; one expiring within the margin (or already
// expired) triggers a silent refresh; no token at all starts a fresh
// login.
func (c *Coordinator) EnsureSession(ctx context.Context) error {
	s := c.Session()
	now := c.now()

	if !s.ExpiresAt.IsZero() && now.Before(s.ExpiresAt.Add(-SafetyMargin)) {
		return nil
	}
	if !s.ExpiresAt.IsZero() {
		return c.Refresh(ctx)
	}
	return c.Login(ctx)
}

// Login begins the interactive flow. Control passes to the provider's UI;
// the session resolves later through HandleCallback.
func (c *Coordinator) Login(ctx context.Context) error {
	c.st.Commit(LoginRequested{}, func() { c.state.IsAuthenticating = true })

	if err := c.provider.Login(ctx); err != nil {
		err = fmt.Errorf("%w: %v", common.ErrAuthentication, err)
		c.failLogin(err)
		return err
	}
	return nil
}

// HandleCallback resolves the provider's callback: decodes token claims,
// extracts roles, derives capabilities, and populates the credential
// store. On failure the session returns to its defaults with the error
// recorded.
func (c *Coordinator) HandleCallback(ctx context.Context, callback url.Values) error {
	res, err := c.provider.Handle(ctx, callback)
	if err != nil {
		c.failLogin(err)
		return err
	}

	cl, err := decodeClaims(res.AccessToken, res.IDToken, c.namespace)
	if err != nil {
		c.failLogin(err)
		return err
	}

	next := Session{
		AccessToken: res.AccessToken,
		IDToken:     res.IDToken,
		SubjectID:   cl.subjectID,
		APIID:       cl.apiID,
		Roles:       cl.roles,
		Abilities:   abilities.DefineFor(cl.roles, cl.subjectID),
		ExpiresAt:   cl.expiresAt,
		IssuedAt:    cl.issuedAt,
		GoogleToken: cl.googleToken,
	}
	if cl.googleToken != "" && !cl.issuedAt.IsZero() {
		// the bundled google token is good for an hour after issue
		next.GoogleExpiry = cl.issuedAt.Add(time.Hour)
	}

	c.st.Commit(LoginSucceeded{Session: next}, func() { c.state = next })
	c.log.Info(ctx, "session established", "subject", next.SubjectID, "roles", next.Roles)
	return nil
}

// Refresh silently requests a new token. On success only the token and
// its timestamps change; roles and capabilities stay as they are. On
// failure the whole session is cleared.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.st.Commit(RefreshRequested{}, func() { c.state.IsAuthenticating = true })

	res, err := c.provider.CheckSession(ctx)
	if err != nil {
		c.st.Commit(RefreshFailed{Err: err.Error()}, func() {
			c.state = Session{Error: err.Error()}
		})
		c.log.Warn(ctx, "session refresh failed", "error", err)
		return fmt.Errorf("%w: %v", common.ErrSessionExpired, err)
	}

	cl, err := decodeClaims(res.AccessToken, "", c.namespace)
	if err != nil {
		c.st.Commit(RefreshFailed{Err: err.Error()}, func() {
			c.state = Session{Error: err.Error()}
		})
		return fmt.Errorf("%w: %v", common.ErrSessionExpired, err)
	}

	c.st.Commit(RefreshSucceeded{}, func() {
		c.state.AccessToken = res.AccessToken
		if res.IDToken != "" {
			c.state.IDToken = res.IDToken
		}
		c.state.ExpiresAt = cl.expiresAt
		c.state.IssuedAt = cl.issuedAt
		c.state.Error = ""
		c.state.IsAuthenticating = false
	})
	return nil
}

// Logout clears the credential store and capability set unconditionally,
// then delegates to the provider's logout redirect. The local clear comes
// first: the redirect is an external side effect outside our control.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.st.Commit(LoggedOut{}, func() { c.state = Session{} })
	c.log.Info(ctx, "session cleared")
	return c.provider.Logout(ctx, c.returnTo)
}

// googleTokenDoc is the tokens-resource response shape.
type googleTokenDoc struct {
	AccessToken string `json:"accessToken"`
	// ExpiresAt is a unix timestamp in seconds.
	ExpiresAt int64 `json:"expiresAt"`
}

// GoogleToken lazily resolves the auxiliary Google API token: a cached
// token still valid beyond its own safety margin is reused; otherwise the
// primary session is ensured first and a fresh token is minted through
// the remote tokens resource.
func (c *Coordinator) GoogleToken(ctx context.Context) (string, error) {
	c.st.Commit(GoogleTokenRequested{}, func() { c.state.IsAuthenticating = true })

	s := c.Session()
	now := c.now()
	if s.GoogleToken != "" && !s.GoogleExpiry.IsZero() && now.Before(s.GoogleExpiry.Add(-GoogleSafetyMargin)) {
		c.st.Commit(GoogleTokenSucceeded{}, func() {
			c.state.Error = ""
			c.state.IsAuthenticating = false
		})
		return s.GoogleToken, nil
	}

	if err := c.EnsureSession(ctx); err != nil {
		c.st.Commit(GoogleTokenFailed{Err: err.Error()}, func() {
			c.state.GoogleToken = ""
			c.state.GoogleExpiry = time.Time{}
			c.state.Error = err.Error()
			c.state.IsAuthenticating = false
		})
		return "", err
	}

	var doc googleTokenDoc
	if err := c.tokens.Update(ctx, c.Session().SubjectID, struct{}{}, &doc); err != nil {
		c.st.Commit(GoogleTokenFailed{Err: err.Error()}, func() {
			c.state.GoogleToken = ""
			c.state.GoogleExpiry = time.Time{}
			c.state.Error = err.Error()
			c.state.IsAuthenticating = false
		})
		return "", err
	}

	c.st.Commit(GoogleTokenSucceeded{}, func() {
		if doc.AccessToken != "" {
			c.state.GoogleToken = doc.AccessToken
			c.state.GoogleExpiry = time.Unix(doc.ExpiresAt, 0)
		}
		c.state.Error = ""
		c.state.IsAuthenticating = false
	})
	return doc.AccessToken, nil
}

func (c *Coordinator) failLogin(err error) {
	c.st.Commit(LoginFailed{Err: err.Error()}, func() {
		c.state = Session{Error: err.Error()}
	})
}
