package flow_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/im-adarsh/go-authflow/flow"
	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/identity/mocks"
)

func TestGuards_Status(t *testing.T) {
	tests := []struct {
		status identity.Status
		guard  flow.Guard
	}{
		{identity.StatusComplete, flow.IsComplete},
		{identity.StatusNeedsFirstFactor, flow.NeedsFirstFactor},
		{identity.StatusNeedsSecondFactor, flow.NeedsSecondFactor},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.False(t, tt.guard(&flow.Context{}))
			assert.True(t, tt.guard(&flow.Context{Resource: &identity.Resource{Status: tt.status}}))
			assert.False(t, tt.guard(&flow.Context{Resource: &identity.Resource{Status: "abandoned"}}))
		})
	}
}

func TestGuards_NeedsVerification(t *testing.T) {
	missing := &identity.Resource{Status: identity.StatusMissingRequirements}
	assert.False(t, flow.NeedsVerification(&flow.Context{Resource: missing}))

	missing.UnverifiedFields = []string{"email_address"}
	assert.True(t, flow.NeedsVerification(&flow.Context{Resource: missing}))
}

func TestGuards_Client(t *testing.T) {
	client := mocks.NewClient(t)
	client.On("Loaded").Return(false).Once()
	client.On("User").Return(&identity.User{ID: "user_1"}).Once()

	c := &flow.Context{Client: client}
	assert.False(t, flow.IsClientLoaded(c))
	assert.True(t, flow.IsLoggedIn(c))
	assert.False(t, flow.IsClientLoaded(&flow.Context{}))
	assert.False(t, flow.IsLoggedIn(&flow.Context{}))
}

func TestGuards_ServiceErrors(t *testing.T) {
	sessionErr := identity.NewAPIError(http.StatusBadRequest, identity.CodeSessionExists, "You're already signed in.")
	passwordErr := identity.NewAPIError(http.StatusUnprocessableEntity, identity.CodePasswordIncorrect, "Password is incorrect.")
	transportErr := &identity.TransportError{Op: "create_sign_in", Err: assert.AnError}

	assert.True(t, flow.HasServiceError(&flow.Context{Error: passwordErr}))
	assert.False(t, flow.HasServiceError(&flow.Context{Error: transportErr}))
	assert.False(t, flow.HasServiceError(&flow.Context{}))

	assert.True(t, flow.SessionExists(&flow.Context{Error: sessionErr}))
	assert.False(t, flow.RecoverableFailure(&flow.Context{Error: sessionErr}))
	assert.True(t, flow.RecoverableFailure(&flow.Context{Error: passwordErr}))
	assert.False(t, flow.RecoverableFailure(&flow.Context{Error: transportErr}))
}

func TestGuards_BlockedBySession(t *testing.T) {
	client := mocks.NewClient(t)
	client.On("User").Return(&identity.User{ID: "user_1"})

	single := &identity.Environment{AuthConfig: identity.AuthConfig{SingleSessionMode: true}}
	assert.True(t, flow.BlockedBySession(&flow.Context{Client: client, Environment: single}))
	assert.False(t, flow.BlockedBySession(&flow.Context{Client: client, Environment: &identity.Environment{}}))
	assert.False(t, flow.BlockedBySession(&flow.Context{Client: client, Environment: single, Resource: &identity.Resource{}}))
}

func TestGuards_Combinators(t *testing.T) {
	yes := func(*flow.Context) bool { return true }
	no := func(*flow.Context) bool { return false }
	c := &flow.Context{}

	assert.True(t, flow.And()(c))
	assert.True(t, flow.And(yes, yes)(c))
	assert.False(t, flow.And(yes, no)(c))
	assert.True(t, flow.Not(no)(c))
}
