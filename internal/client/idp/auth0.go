package idp

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/portphilio/portkeeper/internal/common"
	"github.com/portphilio/portkeeper/internal/shared"
)

// RedirectFunc surfaces a provider redirect to the host environment
// (open a browser, print the URL, ...). The redirect itself is an external
// side effect outside the provider's control.
type RedirectFunc func(url string) error

// Auth0Config describes the tenant an Auth0Provider talks to.
type Auth0Config struct {
	Domain      string
	ClientID    string
	RedirectURI string
	Audience    string
	Scope       string
}

// Auth0Provider implements Provider against an Auth0-style tenant using
// the standard authorization-code and refresh-token grants.
type Auth0Provider struct {
	conf     Auth0Config
	oauth    oauth2.Config
	redirect RedirectFunc
	timeout  time.Duration

	mu           sync.Mutex
	state        string
	refreshToken string
}

func NewAuth0Provider(conf Auth0Config, redirect RedirectFunc, timeout time.Duration) *Auth0Provider {
	return &Auth0Provider{
		conf: conf,
		oauth: oauth2.Config{
			ClientID:    conf.ClientID,
			RedirectURL: conf.RedirectURI,
			Scopes:      []string{conf.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://" + conf.Domain + "/authorize",
				TokenURL: "https://" + conf.Domain + "/oauth/token",
			},
		},
		redirect: redirect,
		timeout:  timeout,
	}
}

// Login builds the authorization URL and hands it to the redirect hook.
func (p *Auth0Provider) Login(ctx context.Context) error {
	state, err := shared.MakeRandHexString(16)
	if err != nil {
		return fmt.Errorf("failed to generate login state: %w", err)
	}
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	authURL := p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", p.conf.Audience),
	)
	return p.redirect(authURL)
}

// Handle exchanges the callback code for tokens. The state parameter must
// match the one issued by Login.
func (p *Auth0Provider) Handle(ctx context.Context, callback url.Values) (*Result, error) {
	if errCode := callback.Get("error"); errCode != "" {
		return nil, fmt.Errorf("%w: %s: %s", common.ErrAuthentication,
			errCode, callback.Get("error_description"))
	}

	p.mu.Lock()
	wantState := p.state
	p.mu.Unlock()
	if wantState == "" || callback.Get("state") != wantState {
		return nil, fmt.Errorf("%w: state mismatch", common.ErrAuthentication)
	}

	code := callback.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", common.ErrAuthentication)
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthentication, err)
	}
	return p.result(tok)
}

// CheckSession silently refreshes the session with the stored refresh
// token.
func (p *Auth0Provider) CheckSession(ctx context.Context) (*Result, error) {
	p.mu.Lock()
	rt := p.refreshToken
	p.mu.Unlock()
	if rt == "" {
		return nil, common.ErrNoSession
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tok, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthentication, err)
	}
	return p.result(tok)
}

// Logout drops the stored refresh token and redirects through the
// provider's logout endpoint.
func (p *Auth0Provider) Logout(ctx context.Context, returnTo string) error {
	p.mu.Lock()
	p.refreshToken = ""
	p.state = ""
	p.mu.Unlock()

	q := url.Values{}
	q.Set("client_id", p.conf.ClientID)
	if returnTo != "" {
		q.Set("returnTo", returnTo)
	}
	logoutURL := "https://" + p.conf.Domain + "/v2/logout?" + q.Encode()
	return p.redirect(logoutURL)
}

func (p *Auth0Provider) result(tok *oauth2.Token) (*Result, error) {
	idToken, _ := tok.Extra("id_token").(string)
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: provider returned no access token", common.ErrAuthentication)
	}
	if tok.RefreshToken != "" {
		p.mu.Lock()
		p.refreshToken = tok.RefreshToken
		p.mu.Unlock()
	}
	return &Result{AccessToken: tok.AccessToken, IDToken: idToken}, nil
}

func (p *Auth0Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}
