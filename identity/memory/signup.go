package memory

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/im-adarsh/go-authflow/identity"
)

// FieldEmailAddress is the sign-up field verified with an email code.
const FieldEmailAddress = "email_address"

type signUps struct{ s *Service }

func (su signUps) Create(_ context.Context, p identity.CreateSignUpParams) (*identity.Resource, error) {
	if p.EmailAddress == "" {
		return nil, fieldError(identity.CodeParamMissing, "Enter your email address.", FieldEmailAddress)
	}
	if p.Password == "" {
		return nil, fieldError(identity.CodeParamMissing, "Enter a password.", "password")
	}
	s := su.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSessionLocked(); err != nil {
		return nil, err
	}
	if _, ok := s.accounts[p.EmailAddress]; ok {
		return nil, fieldError(identity.CodeIdentifierExists, "That email address is taken. Please try another.", FieldEmailAddress)
	}

	at := s.newAttemptLocked("sua_", p.EmailAddress)
	at.signUp = p
	at.verifyCode = make(map[string]string)
	at.resource.Status = identity.StatusMissingRequirements
	at.resource.UnverifiedFields = []string{FieldEmailAddress}
	r := at.resource
	return &r, nil
}

func (su signUps) PrepareVerification(_ context.Context, id string, p identity.VerificationParams) (*identity.Resource, error) {
	s := su.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, field, err := s.signUpLocked(id, p.Field)
	if err != nil {
		return nil, err
	}
	code, err := s.issueCodeLocked(at.resource.Identifier)
	if err != nil {
		return nil, err
	}
	at.verifyCode[field] = code
	r := at.resource
	return &r, nil
}

func (su signUps) AttemptVerification(_ context.Context, id string, p identity.VerificationParams) (*identity.Resource, error) {
	s := su.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, field, err := s.signUpLocked(id, p.Field)
	if err != nil {
		return nil, err
	}
	want, ok := at.verifyCode[field]
	if !ok || p.Code != want {
		return nil, fieldError(identity.CodeCodeIncorrect, "Incorrect code.", "code")
	}
	delete(at.verifyCode, field)
	at.resource.UnverifiedFields = slices.DeleteFunc(at.resource.UnverifiedFields, func(f string) bool { return f == field })

	if len(at.resource.UnverifiedFields) == 0 {
		if err := s.createAccountLocked(at); err != nil {
			return nil, err
		}
		s.completeLocked(at)
	}
	r := at.resource
	return &r, nil
}

func (su signUps) AuthenticateWithRedirect(_ context.Context, p identity.RedirectParams) error {
	return su.s.authenticateWithRedirect(p)
}

func (s *Service) signUpLocked(id, field string) (*attempt, string, error) {
	at, err := s.attemptLocked(id)
	if err != nil {
		return nil, "", err
	}
	if at.verifyCode == nil || at.resource.Status != identity.StatusMissingRequirements {
		return nil, "", identity.NewAPIError(http.StatusBadRequest, codeInvalidStatus, "The sign-up attempt is not waiting for verification.")
	}
	if field == "" {
		field = FieldEmailAddress
	}
	if !slices.Contains(at.resource.UnverifiedFields, field) {
		return nil, "", fieldError(codeInvalidStatus, fmt.Sprintf("%s does not need verification.", field), field)
	}
	return at, field, nil
}

func (s *Service) createAccountLocked(at *attempt) error {
	if _, ok := s.accounts[at.signUp.EmailAddress]; ok {
		return fieldError(identity.CodeIdentifierExists, "That email address is taken. Please try another.", FieldEmailAddress)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(at.signUp.Password), s.bcryptCost)
	if err != nil {
		return &identity.TransportError{Op: "hash password", Err: err}
	}
	a := &account{id: "user_" + uuid.NewString(), identifier: at.signUp.EmailAddress, passwordHash: hash}
	s.accounts[a.identifier] = a
	at.accountID = a.id
	return nil
}
