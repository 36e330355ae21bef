package idp

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portphilio/portkeeper/internal/common"
)

func newTestProvider(t *testing.T) (*Auth0Provider, *[]string) {
	t.Helper()
	var redirects []string
	p := NewAuth0Provider(Auth0Config{
		Domain:      "tenant.auth0.example.com",
		ClientID:    "client-1",
		RedirectURI: "http://127.0.0.1/callback",
		Audience:    "https://api.example.com",
		Scope:       "openid profile email",
	}, func(u string) error {
		redirects = append(redirects, u)
		return nil
	}, time.Second)
	return p, &redirects
}

func TestLoginRedirectCarriesAudienceAndState(t *testing.T) {
	p, redirects := newTestProvider(t)
	require.NoError(t, p.Login(context.Background()))
	require.Len(t, *redirects, 1)

	u, err := url.Parse((*redirects)[0])
	require.NoError(t, err)
	assert.Equal(t, "tenant.auth0.example.com", u.Host)
	assert.Equal(t, "/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com", q.Get("audience"))
	assert.NotEmpty(t, q.Get("state"))
}

func TestHandleRejectsProviderError(t *testing.T) {
	p, _ := newTestProvider(t)
	cb := url.Values{}
	cb.Set("error", "access_denied")
	cb.Set("error_description", "user cancelled")

	_, err := p.Handle(context.Background(), cb)
	require.ErrorIs(t, err, common.ErrAuthentication)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestHandleRejectsStateMismatch(t *testing.T) {
	p, _ := newTestProvider(t)
	require.NoError(t, p.Login(context.Background()))

	cb := url.Values{}
	cb.Set("state", "forged")
	cb.Set("code", "abc")
	_, err := p.Handle(context.Background(), cb)
	assert.ErrorIs(t, err, common.ErrAuthentication)
}

func TestHandleRejectsCallbackWithoutLogin(t *testing.T) {
	p, _ := newTestProvider(t)
	cb := url.Values{}
	cb.Set("state", "")
	cb.Set("code", "abc")
	_, err := p.Handle(context.Background(), cb)
	assert.ErrorIs(t, err, common.ErrAuthentication)
}

func TestCheckSessionWithoutRefreshToken(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.CheckSession(context.Background())
	assert.ErrorIs(t, err, common.ErrNoSession)
}

func TestLogoutRedirectsThroughProvider(t *testing.T) {
	p, redirects := newTestProvider(t)
	require.NoError(t, p.Logout(context.Background(), "http://127.0.0.1/goodbye"))
	require.Len(t, *redirects, 1)

	u := (*redirects)[0]
	assert.True(t, strings.HasPrefix(u, "https://tenant.auth0.example.com/v2/logout?"))
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "client-1", parsed.Query().Get("client_id"))
	assert.Equal(t, "http://127.0.0.1/goodbye", parsed.Query().Get("returnTo"))
}

func TestLogoutDropsRefreshTokenState(t *testing.T) {
	p, _ := newTestProvider(t)
	p.refreshToken = "rt-1"
	require.NoError(t, p.Logout(context.Background(), ""))

	_, err := p.CheckSession(context.Background())
	assert.ErrorIs(t, err, common.ErrNoSession)
}
