package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"taskpilot/internal/domain"
)

// fakeStore is an in-memory TaskStore scoped to a single user, mirroring
// the repository contract.
type fakeStore struct {
	tasks  map[int64]domain.Task
	nextID int64
	fail   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[int64]domain.Task{}, nextID: 1}
}

func (s *fakeStore) Create(_ context.Context, title, description string) (domain.Task, error) {
	if s.fail != nil {
		return domain.Task{}, s.fail
	}
	now := time.Now().UTC().Format(time.RFC3339)
	t := domain.Task{ID: s.nextID, Title: title, Description: description, CreatedAt: now, UpdatedAt: now}
	s.tasks[t.ID] = t
	s.nextID++
	return t, nil
}

func (s *fakeStore) ListAll(context.Context) ([]domain.Task, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	var out []domain.Task
	for id := int64(1); id < s.nextID; id++ {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	return t, nil
}

func (s *fakeStore) SetCompleted(_ context.Context, id int64, completed bool) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.Completed = completed
	s.tasks[id] = t
	return t, nil
}

func (s *fakeStore) Update(_ context.Context, id int64, title string) (domain.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.Title = title
	s.tasks[id] = t
	return t, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func TestExecuteAddAndList(t *testing.T) {
	store := newFakeStore()
	d := Dispatcher{Store: store}
	ctx := context.Background()
	p := NewParser()

	msg, err := d.Execute(ctx, p.Parse("add task buy milk and eggs"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if msg != "Task 'buy milk and eggs' added successfully!" {
		t.Fatalf("unexpected confirmation %q", msg)
	}

	msg, err = d.Execute(ctx, p.Parse("list"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(msg, "1. buy milk and eggs") {
		t.Fatalf("listing missing task: %q", msg)
	}
}

func TestExecuteAddEmptyTitle(t *testing.T) {
	store := newFakeStore()
	d := Dispatcher{Store: store}

	_, err := d.Execute(context.Background(), NewParser().Parse("add task"))
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// No repository call on validation failure.
	if len(store.tasks) != 0 {
		t.Fatalf("store should be untouched, has %d tasks", len(store.tasks))
	}
}

func TestExecuteListEmptyState(t *testing.T) {
	d := Dispatcher{Store: newFakeStore()}
	msg, err := d.Execute(context.Background(), ListTasks{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if msg != "No tasks found." {
		t.Fatalf("unexpected empty-state message %q", msg)
	}
}

func TestExecuteCompleteToggles(t *testing.T) {
	store := newFakeStore()
	d := Dispatcher{Store: store}
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if _, err := store.Create(ctx, fmt.Sprintf("task %d", i+1), ""); err != nil {
			t.Fatal(err)
		}
	}

	msg, err := d.Execute(ctx, NewParser().Parse("complete 7"))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if msg != "Task 7 completed." || !store.tasks[7].Completed {
		t.Fatalf("expected task 7 completed, msg %q", msg)
	}

	msg, err = d.Execute(ctx, CompleteTask{ID: 7})
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if msg != "Task 7 marked incomplete." || store.tasks[7].Completed {
		t.Fatalf("expected toggle back, msg %q", msg)
	}
}

func TestExecuteNotFound(t *testing.T) {
	d := Dispatcher{Store: newFakeStore()}
	ctx := context.Background()
	for _, cmd := range []Command{CompleteTask{ID: 42}, DeleteTask{ID: 42}, UpdateTask{ID: 42, NewTitle: "x"}} {
		_, err := d.Execute(ctx, cmd)
		var nf NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("%T: expected NotFoundError, got %v", cmd, err)
		}
		if err.Error() != "Task not found." {
			t.Fatalf("%T: message must stay uniform, got %q", cmd, err.Error())
		}
	}
}

func TestExecuteDeleteAndUpdate(t *testing.T) {
	store := newFakeStore()
	d := Dispatcher{Store: store}
	ctx := context.Background()
	if _, err := store.Create(ctx, "old title", ""); err != nil {
		t.Fatal(err)
	}

	msg, err := d.Execute(ctx, UpdateTask{ID: 1, NewTitle: "new title"})
	if err != nil || msg != "Task 1 updated successfully: new title" {
		t.Fatalf("update: %q %v", msg, err)
	}

	msg, err = d.Execute(ctx, DeleteTask{ID: 1})
	if err != nil || msg != "Task 1 deleted successfully." {
		t.Fatalf("delete: %q %v", msg, err)
	}
	if len(store.tasks) != 0 {
		t.Fatalf("task not deleted")
	}
}

func TestExecuteUnrecognized(t *testing.T) {
	d := Dispatcher{Store: newFakeStore()}
	_, err := d.Execute(context.Background(), NewParser().Parse("xyz nonsense"))
	var pe ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.RawText != "xyz nonsense" {
		t.Fatalf("raw text %q", pe.RawText)
	}
	if !strings.Contains(err.Error(), "Supported commands") {
		t.Fatalf("help text missing from %q", err.Error())
	}
}

func TestExecuteRepositoryError(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("disk on fire")
	d := Dispatcher{Store: store}
	_, err := d.Execute(context.Background(), AddTask{Title: "x"})
	var re RepositoryError
	if !errors.As(err, &re) {
		t.Fatalf("expected RepositoryError, got %v", err)
	}
	if re.Op != "create" {
		t.Fatalf("op %q", re.Op)
	}
}
