package agent

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel TaskStore implementations return (or wrap)
// when a task id does not exist for the current principal. Stores must not
// distinguish "nonexistent" from "owned by someone else".
var ErrNotFound = errors.New("task not found")

// ParseError reports input that matched no rule. Its message doubles as
// user-facing help.
type ParseError struct {
	RawText string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("I didn't understand %q.\n%s", e.RawText, helpText)
}

// ValidationError reports a matched command whose captured data violates a
// domain constraint, e.g. an empty title.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is rendered uniformly so responses never leak whether an id
// exists under another user.
type NotFoundError struct{}

func (e NotFoundError) Error() string { return "Task not found." }

// RepositoryError wraps a failure from the task store itself.
type RepositoryError struct {
	Op  string
	Err error
}

func (e RepositoryError) Error() string {
	return fmt.Sprintf("task store %s failed: %v", e.Op, e.Err)
}

func (e RepositoryError) Unwrap() error { return e.Err }

const helpText = `Supported commands:
  add <title>          create a task (also: add task <title>, create <title>)
  list                 show your tasks (also: show tasks)
  complete <id>        toggle a task done (also: done <id>)
  delete <id>          remove a task (also: remove <id>)
  update <id> <title>  rename a task`
