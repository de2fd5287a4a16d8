// Package memory is an in-process identity service implementing
// identity.Client. It keeps accounts, pending attempts and sessions in
// memory and is used by the example hosts and end-to-end tests.
package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/im-adarsh/go-authflow/identity"
)

// CodeSender delivers a one-time code to identifier.
type CodeSender func(identifier, code string)

// OAuth completes third-party redirects for the service.
type OAuth interface {
	// AuthCodeURL returns the provider authorization URL for strategy.
	AuthCodeURL(strategy identity.Strategy) (string, error)
	// Callback validates the provider response and returns the verified
	// email address of the user.
	Callback(ctx context.Context, params identity.RedirectCallbackParams) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithCodeSender sets where one-time codes are delivered.
func WithCodeSender(fn CodeSender) Option {
	return func(s *Service) { s.sendCode = fn }
}

// WithSingleSessionMode makes the tenant refuse a second concurrent session.
func WithSingleSessionMode() Option {
	return func(s *Service) { s.env.AuthConfig.SingleSessionMode = true }
}

// WithOAuth enables third-party providers. redirect receives the
// authorization URL when a flow starts a redirect.
func WithOAuth(o OAuth, redirect func(url string), providers ...identity.OAuthProvider) Option {
	return func(s *Service) {
		s.oauth = o
		s.redirect = redirect
		s.env.SocialProviders = append(s.env.SocialProviders, providers...)
	}
}

// WithAfterURLs sets the post-authentication redirect targets.
func WithAfterURLs(afterSignIn, afterSignUp string) Option {
	return func(s *Service) {
		s.afterSignIn = afterSignIn
		s.afterSignUp = afterSignUp
	}
}

// WithDeferredLoad starts the service unloaded; call MarkLoaded to finish
// the bootstrap.
func WithDeferredLoad() Option {
	return func(s *Service) { s.loaded.Store(false) }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

type account struct {
	id           string
	identifier   string
	passwordHash []byte
	totpCode     string
}

type attempt struct {
	resource    identity.Resource
	accountID   string
	pendingCode string
	// sign-up only
	signUp     identity.CreateSignUpParams
	verifyCode map[string]string
}

// Service is an in-memory identity service.
type Service struct {
	log        *zap.Logger
	sendCode   CodeSender
	oauth      OAuth
	redirect   func(string)
	bcryptCost int

	afterSignIn string
	afterSignUp string

	loaded    atomic.Bool
	envLoaded atomic.Bool

	mu       sync.Mutex
	env      identity.Environment
	accounts map[string]*account // keyed by identifier
	attempts map[string]*attempt
	sessions map[string]string // session id → account id
	active   string
}

var _ identity.Client = (*Service)(nil)

// New returns a loaded Service.
func New(opts ...Option) *Service {
	s := &Service{
		log:         zap.NewNop(),
		sendCode:    func(string, string) {},
		bcryptCost:  bcrypt.DefaultCost,
		afterSignIn: "/",
		afterSignUp: "/",
		accounts:    make(map[string]*account),
		attempts:    make(map[string]*attempt),
		sessions:    make(map[string]string),
	}
	s.loaded.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	s.envLoaded.Store(s.loaded.Load())
	return s
}

// MarkLoaded completes a deferred bootstrap.
func (s *Service) MarkLoaded() {
	s.loaded.Store(true)
	s.envLoaded.Store(true)
}

// AccountOption configures an account created with AddAccount.
type AccountOption func(*account)

// WithSecondFactor requires code as a TOTP-style second factor.
func WithSecondFactor(code string) AccountOption {
	return func(a *account) { a.totpCode = code }
}

// AddAccount registers identifier. An empty password creates a
// passwordless account that signs in with an email code.
func (s *Service) AddAccount(identifier, password string, opts ...AccountOption) error {
	a := &account{id: "user_" + uuid.NewString(), identifier: identifier}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		a.passwordHash = hash
	}
	for _, opt := range opts {
		opt(a)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[identifier]; ok {
		return identity.NewAPIError(http.StatusUnprocessableEntity, identity.CodeIdentifierExists, "That identifier is taken.")
	}
	s.accounts[identifier] = a
	return nil
}

// ActiveSession returns the id of the active session, if any.
func (s *Service) ActiveSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SignOut ends the active session.
func (s *Service) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		delete(s.sessions, s.active)
		s.active = ""
	}
}

// Loaded reports whether the service is ready. See WithDeferredLoad.
func (s *Service) Loaded() bool { return s.loaded.Load() }

// Environment returns a copy of the environment, or nil until loaded.
func (s *Service) Environment() *identity.Environment {
	if !s.envLoaded.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	env := s.env
	env.SocialProviders = append([]identity.OAuthProvider(nil), s.env.SocialProviders...)
	return &env
}

// User returns the owner of the active session, if any.
func (s *Service) User() *identity.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return nil
	}
	accountID := s.sessions[s.active]
	for _, a := range s.accounts {
		if a.id == accountID {
			return &identity.User{ID: a.id, Identifier: a.identifier}
		}
	}
	return nil
}

// SignIns and SignUps return the attempt services.
func (s *Service) SignIns() identity.SignInService { return signIns{s} }
func (s *Service) SignUps() identity.SignUpService { return signUps{s} }

// BuildAfterSignInURL and BuildAfterSignUpURL return the URLs set with WithAfterURLs.
func (s *Service) BuildAfterSignInURL() string { return s.afterSignIn }
func (s *Service) BuildAfterSignUpURL() string { return s.afterSignUp }

// SetActive makes the session current and then runs BeforeEmit.
func (s *Service) SetActive(_ context.Context, p identity.SetActiveParams) error {
	s.mu.Lock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		s.mu.Unlock()
		return identity.NewAPIError(http.StatusNotFound, identity.CodeResourceNotFound, "Session not found.")
	}
	s.active = p.SessionID
	s.mu.Unlock()

	s.log.Info("session activated", zap.String("session_id", p.SessionID))
	if p.BeforeEmit != nil {
		return p.BeforeEmit()
	}
	return nil
}

// HandleRedirectCallback completes an OAuth round trip. Unknown email
// addresses get a new passwordless account.
func (s *Service) HandleRedirectCallback(ctx context.Context, p identity.RedirectCallbackParams) (*identity.Resource, error) {
	if s.oauth == nil {
		return nil, identity.NewAPIError(http.StatusBadRequest, identity.CodeOAuthState, "No OAuth provider is configured.")
	}
	email, err := s.oauth.Callback(ctx, p)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSessionLocked(); err != nil {
		return nil, err
	}
	a, ok := s.accounts[email]
	if !ok {
		a = &account{id: "user_" + uuid.NewString(), identifier: email}
		s.accounts[email] = a
	}
	at := s.newAttemptLocked("sia_", a.identifier)
	at.accountID = a.id
	s.completeLocked(at)
	r := at.resource
	return &r, nil
}

func (s *Service) authenticateWithRedirect(p identity.RedirectParams) error {
	if s.oauth == nil {
		return identity.NewAPIError(http.StatusBadRequest, identity.CodeOAuthState, "No OAuth provider is configured.")
	}
	url, err := s.oauth.AuthCodeURL(p.Strategy)
	if err != nil {
		return err
	}
	s.log.Debug("oauth redirect", zap.String("strategy", string(p.Strategy)), zap.String("url", url))
	if s.redirect != nil {
		s.redirect(url)
	}
	return nil
}

// checkSessionLocked refuses a new attempt while a session is active in
// single-session mode.
func (s *Service) checkSessionLocked() error {
	if s.env.AuthConfig.SingleSessionMode && s.active != "" {
		return identity.NewAPIError(http.StatusBadRequest, identity.CodeSessionExists, "You're already signed in.")
	}
	return nil
}

func (s *Service) newAttemptLocked(prefix, identifier string) *attempt {
	at := &attempt{resource: identity.Resource{ID: prefix + uuid.NewString(), Identifier: identifier}}
	s.attempts[at.resource.ID] = at
	return at
}

func (s *Service) attemptLocked(id string) (*attempt, error) {
	at, ok := s.attempts[id]
	if !ok {
		return nil, identity.NewAPIError(http.StatusNotFound, identity.CodeResourceNotFound, "Attempt not found.")
	}
	return at, nil
}

func (s *Service) completeLocked(at *attempt) {
	sessionID := "sess_" + uuid.NewString()
	s.sessions[sessionID] = at.accountID
	at.resource.Status = identity.StatusComplete
	at.resource.CreatedSessionID = sessionID
	at.resource.SupportedFirstFactors = nil
	at.resource.SupportedSecondFactors = nil
	at.resource.UnverifiedFields = nil
}

func (s *Service) issueCodeLocked(identifier string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", &identity.TransportError{Op: "generate code", Err: err}
	}
	code := fmt.Sprintf("%06d", n.Int64())
	s.log.Debug("verification code issued", zap.String("identifier", identifier))
	s.sendCode(identifier, code)
	return code, nil
}

func fieldError(code, message, param string) *identity.APIError {
	return &identity.APIError{
		Status: http.StatusUnprocessableEntity,
		Errors: []identity.ErrorDetail{{Code: code, Message: message, Meta: identity.ErrorMeta{ParamName: param}}},
	}
}

func maskIdentifier(identifier string) string {
	local, domain, ok := strings.Cut(identifier, "@")
	if !ok || local == "" {
		return identifier
	}
	return local[:1] + "***@" + domain
}
