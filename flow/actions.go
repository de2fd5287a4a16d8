package flow

import (
	"context"
	"fmt"

	"github.com/im-adarsh/go-authflow/identity"
	"github.com/im-adarsh/go-authflow/workflow"
)

// ApplyFieldEvent applies a FIELD.* event to the registry.
func ApplyFieldEvent(_ context.Context, s *Step) error {
	ev := s.Event
	reg := s.Ctx.Fields
	switch ev.Type {
	case EventFieldAdd:
		next, err := reg.Add(ev.Name, ev.Value)
		if err != nil {
			return &ValidationError{Event: ev.Type, Err: err}
		}
		reg = next
	case EventFieldUpdate:
		reg = reg.Update(ev.Name, ev.Value)
	case EventFieldRemove:
		reg = reg.Remove(ev.Name)
	case EventFieldError:
		reg = reg.SetError(ev.Name, ev.FieldError)
	default:
		return fmt.Errorf("flow: %s is not a field event", ev.Type)
	}
	s.Ctx.Fields = reg
	return nil
}

// AssignResource stores the resource carried by a done event. A successful
// call supersedes the previous failure, so the error is cleared.
func AssignResource(_ context.Context, s *Step) error {
	res, ok := s.Event.Output.(*identity.Resource)
	if !ok || res == nil {
		return fmt.Errorf("flow: %s carries %T, want *identity.Resource", s.Event.Type, s.Event.Output)
	}
	s.Ctx.Resource = res
	s.Ctx.Error = nil
	return nil
}

// AssignError stores the failure of an error event and copies entries
// scoped to a form field onto that field.
func AssignError(_ context.Context, s *Step) error {
	s.Ctx.Error = s.Event.Err
	if apiErr, ok := identity.AsAPIError(s.Event.Err); ok {
		for name, detail := range apiErr.FieldErrors() {
			d := detail
			s.Ctx.Fields = s.Ctx.Fields.SetError(name, &d)
		}
	}
	return nil
}

// AssignEnvironment stores the environment carried by a done event, or
// reads it from the client, and captures the enabled providers.
func AssignEnvironment(_ context.Context, s *Step) error {
	env, _ := s.Event.Output.(*identity.Environment)
	if env == nil && s.Ctx.Client != nil {
		env = s.Ctx.Client.Environment()
	}
	if env == nil {
		return fmt.Errorf("flow: environment is not loaded")
	}
	s.Ctx.Environment = env
	s.Ctx.ThirdPartyProviders = append([]identity.OAuthProvider(nil), env.SocialProviders...)
	return nil
}

// ClearFields empties the registry.
func ClearFields(_ context.Context, s *Step) error {
	s.Ctx.Fields = s.Ctx.Fields.Clear()
	return nil
}

// StoreReportedError handles ERROR.REPORT.
func StoreReportedError(_ context.Context, s *Step) error {
	s.Ctx.Error = s.Event.Err
	return nil
}

// PushPath returns an action navigating to path.
func PushPath(path string) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		s.Push(path)
		return nil
	}
}

// PushPathWhen navigates to path only when g holds.
func PushPathWhen(g Guard, path string) workflow.Activity[*Step] {
	return func(_ context.Context, s *Step) error {
		if g(s.Ctx) {
			s.Push(path)
		}
		return nil
	}
}
