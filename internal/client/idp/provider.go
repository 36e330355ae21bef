// Package idp defines the identity-provider collaborator used by the auth
// session coordinator, plus an Auth0-style implementation. The provider is
// an explicit constructed dependency so tests can substitute a fake.
package idp

import (
	"context"
	"net/url"
)

// Result is the outcome of a resolved authentication flow.
type Result struct {
	AccessToken string
	IDToken     string
}

// Provider is the external identity provider.
//
// Contract:
//   - Login begins the interactive, redirect-based flow. It does not
//     itself resolve a session; control passes to the provider's UI.
//   - Handle resolves the provider's callback into tokens, or fails.
//   - CheckSession silently obtains a fresh token without interaction.
//   - Logout invalidates the provider session and redirects to returnTo.
type Provider interface {
	Login(ctx context.Context) error
	Handle(ctx context.Context, callback url.Values) (*Result, error)
	CheckSession(ctx context.Context) (*Result, error)
	Logout(ctx context.Context, returnTo string) error
}
