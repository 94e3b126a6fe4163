package server

import (
	"context"

	"github.com/onnwee/cat-video-bot/task"
)

// TaskLookup returns a snapshot of a task. *task.Registry implements it.
type TaskLookup interface {
	Get(id string) (task.Task, bool)
}

// ReadinessCheck is one named dependency probe for /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Tasks      TaskLookup
	Checks     []ReadinessCheck
	AdminToken string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	tasks  TaskLookup
	checks []ReadinessCheck
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{tasks: deps.Tasks, checks: deps.Checks}
}
