// Package identity declares the contracts the flow controllers require from
// the identity service and the embedding application: the client handle,
// the sign-in and sign-up services, and the resources they return.
package identity

import "context"

// Status is the server-side state of a sign-in or sign-up resource.
type Status string

const (
	StatusNeedsIdentifier     Status = "needs_identifier"
	StatusNeedsFirstFactor    Status = "needs_first_factor"
	StatusNeedsSecondFactor   Status = "needs_second_factor"
	StatusNeedsNewPassword    Status = "needs_new_password"
	StatusMissingRequirements Status = "missing_requirements"
	StatusComplete            Status = "complete"
	StatusAbandoned           Status = "abandoned"
)

// Strategy names an authentication method, e.g. "password", "email_code"
// or "oauth_google".
type Strategy string

const (
	StrategyPassword  Strategy = "password"
	StrategyEmailCode Strategy = "email_code"
	StrategyPhoneCode Strategy = "phone_code"
	StrategyTOTP      Strategy = "totp"
)

// OAuthStrategy returns the strategy used to authenticate with provider.
func OAuthStrategy(provider string) Strategy {
	return Strategy("oauth_" + provider)
}

// Factor is one supported authentication step on a resource.
type Factor struct {
	Strategy       Strategy `json:"strategy"`
	SafeIdentifier string   `json:"safe_identifier,omitempty"`
}

// Resource is an in-progress or completed sign-in or sign-up attempt.
type Resource struct {
	ID                     string   `json:"id"`
	Status                 Status   `json:"status"`
	Identifier             string   `json:"identifier,omitempty"`
	CreatedSessionID       string   `json:"created_session_id,omitempty"`
	SupportedFirstFactors  []Factor `json:"supported_first_factors,omitempty"`
	SupportedSecondFactors []Factor `json:"supported_second_factors,omitempty"`
	// UnverifiedFields lists sign-up fields still awaiting verification,
	// e.g. "email_address".
	UnverifiedFields []string `json:"unverified_fields,omitempty"`
}

// FirstFactor returns the first supported first factor, preferring strategy
// when the resource offers it.
func (r *Resource) FirstFactor(prefer Strategy) (Factor, bool) {
	return pickFactor(r.SupportedFirstFactors, prefer)
}

// SecondFactor is FirstFactor for the second factor list.
func (r *Resource) SecondFactor(prefer Strategy) (Factor, bool) {
	return pickFactor(r.SupportedSecondFactors, prefer)
}

func pickFactor(factors []Factor, prefer Strategy) (Factor, bool) {
	if len(factors) == 0 {
		return Factor{}, false
	}
	for _, f := range factors {
		if f.Strategy == prefer {
			return f, true
		}
	}
	return factors[0], true
}

// OAuthProvider is a third-party provider enabled for the tenant.
type OAuthProvider struct {
	Provider string   `json:"provider"`
	Strategy Strategy `json:"strategy"`
	Name     string   `json:"name"`
}

// AuthConfig is the tenant's authentication configuration.
type AuthConfig struct {
	SingleSessionMode bool `json:"single_session_mode"`
}

// Environment is a snapshot of the tenant configuration.
type Environment struct {
	AuthConfig      AuthConfig      `json:"auth_config"`
	SocialProviders []OAuthProvider `json:"social_providers,omitempty"`
}

// User is the currently signed-in user, if any.
type User struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// SetActiveParams activates a session. BeforeEmit runs after the session is
// made current and before listeners are notified.
type SetActiveParams struct {
	SessionID  string
	BeforeEmit func() error
}

// Client is the identity service session handle owned by the host.
type Client interface {
	// Loaded reports whether the client finished its own bootstrap.
	Loaded() bool
	// Environment returns the tenant snapshot, or nil while it loads.
	Environment() *Environment
	// User returns the signed-in user, or nil.
	User() *User
	SignIns() SignInService
	SignUps() SignUpService
	// HandleRedirectCallback completes an OAuth redirect round trip.
	HandleRedirectCallback(ctx context.Context, params RedirectCallbackParams) (*Resource, error)
	BuildAfterSignInURL() string
	BuildAfterSignUpURL() string
	SetActive(ctx context.Context, params SetActiveParams) error
}

// CreateSignInParams starts a sign-in attempt.
type CreateSignInParams struct {
	Identifier string
	Password   string
	Strategy   Strategy
}

// PrepareFactorParams prepares a factor, e.g. sends a one-time code.
type PrepareFactorParams struct {
	Strategy       Strategy
	SafeIdentifier string
}

// AttemptFactorParams verifies a factor.
type AttemptFactorParams struct {
	Strategy Strategy
	Code     string
	Password string
}

// RedirectParams starts an OAuth redirect.
type RedirectParams struct {
	Strategy            Strategy
	RedirectURL         string
	RedirectURLComplete string
}

// RedirectCallbackParams carries what the provider sent back.
type RedirectCallbackParams struct {
	State string
	Code  string
	Error string
}

// SignInService performs sign-in calls against the identity service.
type SignInService interface {
	Create(ctx context.Context, params CreateSignInParams) (*Resource, error)
	PrepareFirstFactor(ctx context.Context, id string, params PrepareFactorParams) (*Resource, error)
	AttemptFirstFactor(ctx context.Context, id string, params AttemptFactorParams) (*Resource, error)
	PrepareSecondFactor(ctx context.Context, id string, params PrepareFactorParams) (*Resource, error)
	AttemptSecondFactor(ctx context.Context, id string, params AttemptFactorParams) (*Resource, error)
	// AuthenticateWithRedirect normally never returns successfully in a
	// browser; the page navigates to the provider.
	AuthenticateWithRedirect(ctx context.Context, params RedirectParams) error
}

// CreateSignUpParams starts a sign-up attempt.
type CreateSignUpParams struct {
	EmailAddress string
	Password     string
	FirstName    string
	LastName     string
	Username     string
}

// VerificationParams prepares or attempts a sign-up field verification.
type VerificationParams struct {
	Field    string
	Strategy Strategy
	Code     string
}

// SignUpService performs sign-up calls against the identity service.
type SignUpService interface {
	Create(ctx context.Context, params CreateSignUpParams) (*Resource, error)
	PrepareVerification(ctx context.Context, id string, params VerificationParams) (*Resource, error)
	AttemptVerification(ctx context.Context, id string, params VerificationParams) (*Resource, error)
	AuthenticateWithRedirect(ctx context.Context, params RedirectParams) error
}
