package flow

import (
	"context"

	"github.com/im-adarsh/go-authflow/tasks"
)

// Effect is a side effect recorded by a transition.
type Effect interface {
	effect()
}

// Navigate moves the host to Path, replacing the current history entry when
// Replace is set.
type Navigate struct {
	Path    string
	Replace bool
}

// Activate makes SessionID the active session and then pushes AfterURL.
type Activate struct {
	SessionID string
	AfterURL  string
}

// Invoke starts an async operation owned by the state that recorded it. Its
// result comes back as Done(ID, out) or Failed(ID, err), unless the flow has
// left that state in the meantime.
type Invoke struct {
	ID  string
	Run func(ctx context.Context) (any, error)
}

func (Navigate) effect() {}
func (Activate) effect() {}
func (Invoke) effect()   {}

// Step is the payload of every transition: a working copy of the flow
// context, the event being applied and the effects recorded so far.
type Step struct {
	Ctx     *Context
	Event   Event
	effects []Effect
}

// NewStep returns a Step over a copy of fctx.
func NewStep(fctx Context, ev Event) *Step {
	return &Step{Ctx: &fctx, Event: ev}
}

// Push records a navigation to path.
func (s *Step) Push(path string) {
	s.effects = append(s.effects, Navigate{Path: path})
}

// Replace records a navigation to path that replaces the current entry.
func (s *Step) Replace(path string) {
	s.effects = append(s.effects, Navigate{Path: path, Replace: true})
}

// Activate records a session activation.
func (s *Step) Activate(sessionID, afterURL string) {
	s.effects = append(s.effects, Activate{SessionID: sessionID, AfterURL: afterURL})
}

// Effects returns the recorded effects in order.
func (s *Step) Effects() []Effect {
	out := make([]Effect, len(s.effects))
	copy(out, s.effects)
	return out
}

// InvokeTask records an Invoke running task under id.
func InvokeTask[Out any](s *Step, id string, task tasks.Task[Out]) {
	s.effects = append(s.effects, Invoke{
		ID: id,
		Run: func(ctx context.Context) (any, error) {
			return task(ctx)
		},
	})
}
