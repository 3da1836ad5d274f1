package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskpilot/internal/domain"
)

// TaskStore is the task repository capability a Dispatcher executes
// against. Implementations are already scoped to one authenticated
// principal; the dispatcher never passes or derives a principal identifier.
type TaskStore interface {
	Create(ctx context.Context, title, description string) (domain.Task, error)
	ListAll(ctx context.Context) ([]domain.Task, error)
	Get(ctx context.Context, id int64) (domain.Task, error)
	SetCompleted(ctx context.Context, id int64, completed bool) (domain.Task, error)
	Update(ctx context.Context, id int64, title string) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
}

// Dispatcher executes parsed Commands against a TaskStore and renders a
// confirmation string. Each command makes at most one mutating store call
// and nothing is retried: Add and Delete are not idempotent, so a blind
// retry risks duplicate or mistargeted mutations.
type Dispatcher struct {
	Store TaskStore
}

// Execute runs a Command. The returned error is always one of the typed
// errors in this package: ParseError, ValidationError, NotFoundError, or
// RepositoryError.
func (d Dispatcher) Execute(ctx context.Context, cmd Command) (string, error) {
	switch c := cmd.(type) {
	case AddTask:
		return d.addTask(ctx, c)
	case ListTasks:
		return d.listTasks(ctx)
	case CompleteTask:
		return d.completeTask(ctx, c.ID)
	case DeleteTask:
		return d.deleteTask(ctx, c.ID)
	case UpdateTask:
		return d.updateTask(ctx, c)
	case Unrecognized:
		return "", ParseError{RawText: c.RawText}
	default:
		return "", fmt.Errorf("unhandled command %T", cmd)
	}
}

func (d Dispatcher) addTask(ctx context.Context, c AddTask) (string, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return "", ValidationError{Field: "title", Reason: "a task needs a title, try: add <title>"}
	}
	t, err := d.Store.Create(ctx, title, c.Description)
	if err != nil {
		return "", storeError("create", err)
	}
	return fmt.Sprintf("Task '%s' added successfully!", t.Title), nil
}

func (d Dispatcher) listTasks(ctx context.Context) (string, error) {
	tasks, err := d.Store.ListAll(ctx)
	if err != nil {
		return "", storeError("list", err)
	}
	if len(tasks) == 0 {
		return "No tasks found.", nil
	}
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		line := fmt.Sprintf("[%s] %d. %s", mark, t.ID, t.Title)
		if t.Description != "" {
			line += " - " + t.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func (d Dispatcher) completeTask(ctx context.Context, id int64) (string, error) {
	t, err := d.Store.Get(ctx, id)
	if err != nil {
		return "", storeError("get", err)
	}
	t, err = d.Store.SetCompleted(ctx, id, !t.Completed)
	if err != nil {
		return "", storeError("complete", err)
	}
	if t.Completed {
		return fmt.Sprintf("Task %d completed.", id), nil
	}
	return fmt.Sprintf("Task %d marked incomplete.", id), nil
}

func (d Dispatcher) deleteTask(ctx context.Context, id int64) (string, error) {
	if err := d.Store.Delete(ctx, id); err != nil {
		return "", storeError("delete", err)
	}
	return fmt.Sprintf("Task %d deleted successfully.", id), nil
}

func (d Dispatcher) updateTask(ctx context.Context, c UpdateTask) (string, error) {
	title := strings.TrimSpace(c.NewTitle)
	if title == "" {
		return "", ValidationError{Field: "title", Reason: "the new title must not be empty"}
	}
	t, err := d.Store.Update(ctx, c.ID, title)
	if err != nil {
		return "", storeError("update", err)
	}
	return fmt.Sprintf("Task %d updated successfully: %s", c.ID, t.Title), nil
}

func storeError(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return NotFoundError{}
	}
	return RepositoryError{Op: op, Err: err}
}
