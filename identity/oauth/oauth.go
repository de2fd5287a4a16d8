// Package oauth starts and completes third-party redirects for the identity
// service. Providers with an Issuer are discovered through OpenID Connect and
// their ID tokens are verified; the rest use static endpoints and a userinfo
// call.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/im-adarsh/go-authflow/identity"
)

// Error codes returned in an identity.APIError.
const (
	CodeAccessDenied     = "oauth_access_denied"
	CodeProviderNotFound = "oauth_provider_not_found"
	CodeEmailMissing     = "oauth_email_missing"
)

// DefaultStateTTL bounds how long a redirect may take to come back.
const DefaultStateTTL = 10 * time.Minute

// Provider configures one third-party provider.
type Provider struct {
	Name         string
	DisplayName  string
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Static endpoints, used when Issuer is empty.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	Scopes      []string
}

type provider struct {
	cfg         Provider
	oauth       *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	userInfoURL string
}

type pending struct {
	provider string
	verifier string
	expires  time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for state expiry.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithStateTTL sets how long an issued state stays valid.
func WithStateTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithHTTPClient sets the client used for discovery, token exchange and
// userinfo calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// Manager issues authorization URLs and validates callbacks.
type Manager struct {
	providers  map[string]*provider
	clock      clockwork.Clock
	ttl        time.Duration
	log        *zap.Logger
	httpClient *http.Client

	mu      sync.Mutex
	pending map[string]pending
}

// New builds a Manager. Providers with an Issuer are discovered during New.
func New(ctx context.Context, providers []Provider, opts ...Option) (*Manager, error) {
	m := &Manager{
		providers: make(map[string]*provider, len(providers)),
		clock:     clockwork.NewRealClock(),
		ttl:       DefaultStateTTL,
		log:       zap.NewNop(),
		pending:   make(map[string]pending),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, cfg := range providers {
		if cfg.Name == "" {
			return nil, errors.New("oauth: provider name is required")
		}
		p, err := m.setup(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("oauth: provider %s: %w", cfg.Name, err)
		}
		m.providers[cfg.Name] = p
	}
	return m, nil
}

func (m *Manager) setup(ctx context.Context, cfg Provider) (*provider, error) {
	ctx = m.clientContext(ctx)
	p := &provider{cfg: cfg, userInfoURL: cfg.UserInfoURL}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	if cfg.Issuer != "" {
		op, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discovery: %w", err)
		}
		oc.Endpoint = op.Endpoint()
		if len(oc.Scopes) == 0 {
			oc.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
		}
		p.verifier = op.Verifier(&oidc.Config{ClientID: cfg.ClientID})
		if p.userInfoURL == "" {
			p.userInfoURL = op.UserInfoEndpoint()
		}
	} else {
		if cfg.AuthURL == "" || cfg.TokenURL == "" {
			return nil, errors.New("issuer or auth and token URLs are required")
		}
		oc.Endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}
	p.oauth = oc
	return p, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// Providers returns the configured providers sorted by name.
func (m *Manager) Providers() []identity.OAuthProvider {
	out := make([]identity.OAuthProvider, 0, len(m.providers))
	for name, p := range m.providers {
		display := p.cfg.DisplayName
		if display == "" {
			display = name
		}
		out = append(out, identity.OAuthProvider{Provider: name, Strategy: identity.OAuthStrategy(name), Name: display})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// AuthCodeURL returns the authorization URL for strategy ("oauth_<name>")
// with a fresh state and PKCE challenge.
func (m *Manager) AuthCodeURL(strategy identity.Strategy) (string, error) {
	name := strings.TrimPrefix(string(strategy), "oauth_")
	p, ok := m.providers[name]
	if !ok {
		return "", identity.NewAPIError(http.StatusUnprocessableEntity, CodeProviderNotFound, fmt.Sprintf("Provider %q is not enabled.", name))
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	m.mu.Lock()
	m.sweepLocked()
	m.pending[state] = pending{provider: name, verifier: verifier, expires: m.clock.Now().Add(m.ttl)}
	m.mu.Unlock()

	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Callback validates the state, exchanges the code and returns the user's
// email address. A state is accepted at most once.
func (m *Manager) Callback(ctx context.Context, params identity.RedirectCallbackParams) (string, error) {
	if params.Error != "" {
		return "", identity.NewAPIError(http.StatusBadRequest, CodeAccessDenied, params.Error)
	}

	m.mu.Lock()
	pend, ok := m.pending[params.State]
	delete(m.pending, params.State)
	m.mu.Unlock()
	if !ok || m.clock.Now().After(pend.expires) {
		return "", identity.NewAPIError(http.StatusBadRequest, identity.CodeOAuthState, "The sign-in link is invalid or has expired.")
	}
	p := m.providers[pend.provider]

	ctx = m.clientContext(ctx)
	token, err := p.oauth.Exchange(ctx, params.Code, oauth2.VerifierOption(pend.verifier))
	if err != nil {
		return "", &identity.TransportError{Op: "oauth exchange", Err: err}
	}

	var email string
	if p.verifier != nil {
		email, err = verifyIDToken(ctx, p.verifier, token)
	} else {
		email, err = m.userInfo(ctx, p, token)
	}
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", identity.NewAPIError(http.StatusUnprocessableEntity, CodeEmailMissing, "The provider did not share an email address.")
	}
	m.log.Debug("oauth callback verified", zap.String("provider", pend.provider))
	return email, nil
}

func verifyIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, token *oauth2.Token) (string, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok {
		return "", &identity.TransportError{Op: "oauth exchange", Err: errors.New("no id_token in token response")}
	}
	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return "", identity.NewAPIError(http.StatusUnauthorized, identity.CodeOAuthState, "The provider token could not be verified.")
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return "", &identity.TransportError{Op: "oauth claims", Err: err}
	}
	return claims.Email, nil
}

func (m *Manager) userInfo(ctx context.Context, p *provider, token *oauth2.Token) (string, error) {
	if p.userInfoURL == "" {
		return "", &identity.TransportError{Op: "oauth userinfo", Err: errors.New("no userinfo endpoint")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", &identity.TransportError{Op: "oauth userinfo", Err: err}
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", &identity.TransportError{Op: "oauth userinfo", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &identity.TransportError{Op: "oauth userinfo", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", &identity.TransportError{Op: "oauth userinfo", Err: err}
	}
	return info.Email, nil
}

func (m *Manager) sweepLocked() {
	now := m.clock.Now()
	for state, p := range m.pending {
		if now.After(p.expires) {
			delete(m.pending, state)
		}
	}
}
