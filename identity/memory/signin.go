package memory

import (
	"context"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/im-adarsh/go-authflow/identity"
)

const codeInvalidStatus = "invalid_status"

type signIns struct{ s *Service }

func (si signIns) Create(_ context.Context, p identity.CreateSignInParams) (*identity.Resource, error) {
	if p.Identifier == "" {
		return nil, fieldError(identity.CodeParamMissing, "Enter your email address.", "identifier")
	}
	s := si.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSessionLocked(); err != nil {
		return nil, err
	}
	a, ok := s.accounts[p.Identifier]
	if !ok {
		return nil, fieldError(identity.CodeIdentifierNotFound, "Couldn't find your account.", "identifier")
	}

	at := s.newAttemptLocked("sia_", a.identifier)
	at.accountID = a.id
	if p.Password != "" {
		if err := checkPassword(a, p.Password); err != nil {
			return nil, err
		}
		s.afterFirstFactorLocked(at, a)
	} else {
		at.resource.Status = identity.StatusNeedsFirstFactor
		at.resource.SupportedFirstFactors = firstFactors(a)
	}
	r := at.resource
	return &r, nil
}

func (si signIns) PrepareFirstFactor(_ context.Context, id string, p identity.PrepareFactorParams) (*identity.Resource, error) {
	s := si.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, a, err := s.signInLocked(id, identity.StatusNeedsFirstFactor)
	if err != nil {
		return nil, err
	}
	switch p.Strategy {
	case identity.StrategyPassword:
	case identity.StrategyEmailCode:
		code, err := s.issueCodeLocked(a.identifier)
		if err != nil {
			return nil, err
		}
		at.pendingCode = code
	default:
		return nil, fieldError("strategy_for_user_invalid", "This strategy is not available for your account.", "strategy")
	}
	r := at.resource
	return &r, nil
}

func (si signIns) AttemptFirstFactor(_ context.Context, id string, p identity.AttemptFactorParams) (*identity.Resource, error) {
	s := si.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, a, err := s.signInLocked(id, identity.StatusNeedsFirstFactor)
	if err != nil {
		return nil, err
	}
	switch p.Strategy {
	case identity.StrategyPassword:
		if err := checkPassword(a, p.Password); err != nil {
			return nil, err
		}
	case identity.StrategyEmailCode:
		if at.pendingCode == "" || p.Code != at.pendingCode {
			return nil, fieldError(identity.CodeCodeIncorrect, "Incorrect code.", "code")
		}
		at.pendingCode = ""
	default:
		return nil, fieldError("strategy_for_user_invalid", "This strategy is not available for your account.", "strategy")
	}
	s.afterFirstFactorLocked(at, a)
	r := at.resource
	return &r, nil
}

func (si signIns) PrepareSecondFactor(_ context.Context, id string, p identity.PrepareFactorParams) (*identity.Resource, error) {
	s := si.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, a, err := s.signInLocked(id, identity.StatusNeedsSecondFactor)
	if err != nil {
		return nil, err
	}
	switch p.Strategy {
	case identity.StrategyTOTP:
	case identity.StrategyPhoneCode:
		code, err := s.issueCodeLocked(a.identifier)
		if err != nil {
			return nil, err
		}
		at.pendingCode = code
	default:
		return nil, fieldError("strategy_for_user_invalid", "This strategy is not available for your account.", "strategy")
	}
	r := at.resource
	return &r, nil
}

func (si signIns) AttemptSecondFactor(_ context.Context, id string, p identity.AttemptFactorParams) (*identity.Resource, error) {
	s := si.s
	s.mu.Lock()
	defer s.mu.Unlock()

	at, a, err := s.signInLocked(id, identity.StatusNeedsSecondFactor)
	if err != nil {
		return nil, err
	}
	want := a.totpCode
	if p.Strategy == identity.StrategyPhoneCode {
		want = at.pendingCode
	}
	if want == "" || p.Code != want {
		return nil, fieldError(identity.CodeCodeIncorrect, "Incorrect code.", "code")
	}
	at.pendingCode = ""
	s.completeLocked(at)
	r := at.resource
	return &r, nil
}

func (si signIns) AuthenticateWithRedirect(_ context.Context, p identity.RedirectParams) error {
	return si.s.authenticateWithRedirect(p)
}

func (s *Service) signInLocked(id string, want identity.Status) (*attempt, *account, error) {
	at, err := s.attemptLocked(id)
	if err != nil {
		return nil, nil, err
	}
	if at.resource.Status != want {
		return nil, nil, identity.NewAPIError(http.StatusBadRequest, codeInvalidStatus, "The sign-in attempt is not waiting for this step.")
	}
	a, ok := s.accounts[at.resource.Identifier]
	if !ok {
		return nil, nil, identity.NewAPIError(http.StatusNotFound, identity.CodeResourceNotFound, "Account not found.")
	}
	return at, a, nil
}

func (s *Service) afterFirstFactorLocked(at *attempt, a *account) {
	if a.totpCode != "" {
		at.resource.Status = identity.StatusNeedsSecondFactor
		at.resource.SupportedFirstFactors = nil
		at.resource.SupportedSecondFactors = []identity.Factor{{Strategy: identity.StrategyTOTP}}
		return
	}
	s.completeLocked(at)
}

func firstFactors(a *account) []identity.Factor {
	var out []identity.Factor
	if len(a.passwordHash) > 0 {
		out = append(out, identity.Factor{Strategy: identity.StrategyPassword})
	}
	return append(out, identity.Factor{Strategy: identity.StrategyEmailCode, SafeIdentifier: maskIdentifier(a.identifier)})
}

func checkPassword(a *account, password string) error {
	if len(a.passwordHash) == 0 || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return fieldError(identity.CodePasswordIncorrect, "Password is incorrect. Try again, or use another method.", "password")
	}
	return nil
}
