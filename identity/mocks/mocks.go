// Package mocks provides testify doubles for the identity contracts and the
// host router.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/im-adarsh/go-authflow/identity"
)

// T is the subset of *testing.T the constructors need.
type T interface {
	mock.TestingT
	Cleanup(func())
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

type Client struct{ mock.Mock }

var _ identity.Client = (*Client)(nil)

// NewClient returns a Client whose expectations are asserted on cleanup.
func NewClient(t T) *Client {
	m := &Client{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (c *Client) Loaded() bool { return c.Called().Bool(0) }

func (c *Client) Environment() *identity.Environment {
	ret := c.Called()
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(*identity.Environment)
}

func (c *Client) User() *identity.User {
	ret := c.Called()
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(*identity.User)
}

func (c *Client) SignIns() identity.SignInService {
	ret := c.Called()
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(identity.SignInService)
}

func (c *Client) SignUps() identity.SignUpService {
	ret := c.Called()
	if ret.Get(0) == nil {
		return nil
	}
	return ret.Get(0).(identity.SignUpService)
}

func (c *Client) HandleRedirectCallback(ctx context.Context, p identity.RedirectCallbackParams) (*identity.Resource, error) {
	ret := c.Called(ctx, p)
	return resource(ret, 0), ret.Error(1)
}

func (c *Client) BuildAfterSignInURL() string { return c.Called().String(0) }
func (c *Client) BuildAfterSignUpURL() string { return c.Called().String(0) }

func (c *Client) SetActive(ctx context.Context, p identity.SetActiveParams) error {
	return c.Called(ctx, p).Error(0)
}

// ---------------------------------------------------------------------------
// SignInService
// ---------------------------------------------------------------------------

type SignInService struct{ mock.Mock }

var _ identity.SignInService = (*SignInService)(nil)

func NewSignInService(t T) *SignInService {
	m := &SignInService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (s *SignInService) Create(ctx context.Context, p identity.CreateSignInParams) (*identity.Resource, error) {
	ret := s.Called(ctx, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignInService) PrepareFirstFactor(ctx context.Context, id string, p identity.PrepareFactorParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignInService) AttemptFirstFactor(ctx context.Context, id string, p identity.AttemptFactorParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignInService) PrepareSecondFactor(ctx context.Context, id string, p identity.PrepareFactorParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignInService) AttemptSecondFactor(ctx context.Context, id string, p identity.AttemptFactorParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignInService) AuthenticateWithRedirect(ctx context.Context, p identity.RedirectParams) error {
	return s.Called(ctx, p).Error(0)
}

// ---------------------------------------------------------------------------
// SignUpService
// ---------------------------------------------------------------------------

type SignUpService struct{ mock.Mock }

var _ identity.SignUpService = (*SignUpService)(nil)

func NewSignUpService(t T) *SignUpService {
	m := &SignUpService{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (s *SignUpService) Create(ctx context.Context, p identity.CreateSignUpParams) (*identity.Resource, error) {
	ret := s.Called(ctx, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignUpService) PrepareVerification(ctx context.Context, id string, p identity.VerificationParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignUpService) AttemptVerification(ctx context.Context, id string, p identity.VerificationParams) (*identity.Resource, error) {
	ret := s.Called(ctx, id, p)
	return resource(ret, 0), ret.Error(1)
}

func (s *SignUpService) AuthenticateWithRedirect(ctx context.Context, p identity.RedirectParams) error {
	return s.Called(ctx, p).Error(0)
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

type Router struct{ mock.Mock }

func NewRouter(t T) *Router {
	m := &Router{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (r *Router) Push(path string)    { r.Called(path) }
func (r *Router) Replace(path string) { r.Called(path) }

func resource(ret mock.Arguments, i int) *identity.Resource {
	if ret.Get(i) == nil {
		return nil
	}
	return ret.Get(i).(*identity.Resource)
}
