package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskpilot/internal/config"
	"taskpilot/internal/db"
	"taskpilot/internal/engine"
	"taskpilot/internal/migrate"
	"taskpilot/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	UserID string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	u, err := eng.RegisterUser(ctx, "tester@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, UserID: u.ID}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.RegisterUser(env.Ctx, "tester@example.com", "another-pass"); err == nil {
		t.Fatal("expected duplicate email to be rejected")
	}
	if _, err := env.Engine.RegisterUser(env.Ctx, "short@example.com", "tiny"); err == nil {
		t.Fatal("expected short password to be rejected")
	}

	u, err := env.Engine.Authenticate(env.Ctx, "Tester@Example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != env.UserID {
		t.Fatalf("authenticated wrong user: %s", u.ID)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "tester@example.com", "wrong"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "nobody@example.com", "whatever"); !errors.Is(err, engine.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)

	task, err := env.Engine.CreateTask(env.Ctx, env.UserID, "buy milk", "2 liters")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID == 0 || task.Completed {
		t.Fatalf("unexpected task: %+v", task)
	}

	task, err = env.Engine.SetTaskCompleted(env.Ctx, env.UserID, task.ID, true)
	if err != nil || !task.Completed {
		t.Fatalf("complete: %v %+v", err, task)
	}

	title := "buy oat milk"
	task, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{UserID: env.UserID, ID: task.ID, Title: &title})
	if err != nil || task.Title != "buy oat milk" {
		t.Fatalf("update: %v %+v", err, task)
	}

	if err := env.Engine.DeleteTask(env.Ctx, env.UserID, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, env.UserID, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestUserScoping(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.RegisterUser(env.Ctx, "other@example.com", "other-pass")
	if err != nil {
		t.Fatalf("register other: %v", err)
	}

	task, err := env.Engine.CreateTask(env.Ctx, env.UserID, "private note", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.Engine.GetTask(env.Ctx, other.ID, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-user get should be not found, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, other.ID, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("cross-user delete should be not found, got %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{UserID: other.ID})
	if err != nil || len(tasks) != 0 {
		t.Fatalf("cross-user list: %v %v", err, tasks)
	}
}

func TestPromptEndToEnd(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.Engine.Prompt(env.Ctx, env.UserID, "add task buy milk and eggs")
	if err != nil {
		t.Fatalf("prompt add: %v", err)
	}
	if reply != "Task 'buy milk and eggs' added successfully!" {
		t.Fatalf("unexpected reply: %q", reply)
	}

	reply, err = env.Engine.Prompt(env.Ctx, env.UserID, "complete 1")
	if err != nil || reply != "Task 1 completed." {
		t.Fatalf("prompt complete: %v %q", err, reply)
	}

	reply, err = env.Engine.Prompt(env.Ctx, env.UserID, "list")
	if err != nil {
		t.Fatalf("prompt list: %v", err)
	}
	if !strings.Contains(reply, "[x] 1. buy milk and eggs") {
		t.Fatalf("list reply: %q", reply)
	}

	if _, err := env.Engine.Prompt(env.Ctx, env.UserID, "delete 42"); err == nil {
		t.Fatal("expected not found for missing task")
	} else if err.Error() != "Task not found." {
		t.Fatalf("unexpected error text: %q", err.Error())
	}
}

func TestAnalyzeReflectsStore(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.Engine.Analyze(env.Ctx, env.UserID)
	if err != nil {
		t.Fatalf("analyze empty: %v", err)
	}
	if report.Stats.Total != 0 || report.Insights == nil {
		t.Fatalf("empty report: %+v", report)
	}

	t1, _ := env.Engine.CreateTask(env.Ctx, env.UserID, "buy milk", "")
	if _, err := env.Engine.CreateTask(env.Ctx, env.UserID, "buy bread", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, env.UserID, t1.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	report, err = env.Engine.Analyze(env.Ctx, env.UserID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Stats.Total != 2 || report.Stats.Completed != 1 || report.Stats.CompletionRate != 50.0 {
		t.Fatalf("stats: %+v", report.Stats)
	}
}

func TestChatPersistsTranscript(t *testing.T) {
	env := newTestEnv(t)

	convID, reply, err := env.Engine.Chat(env.Ctx, env.UserID, 0, "add task water the plants")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if convID == 0 || !strings.Contains(reply, "added successfully") {
		t.Fatalf("chat result: %d %q", convID, reply)
	}

	// An unparseable message still lands in the transcript with the help text.
	sameID, reply, err := env.Engine.Chat(env.Ctx, env.UserID, convID, "what is the meaning of life")
	if err != nil {
		t.Fatalf("chat unrecognized: %v", err)
	}
	if sameID != convID || !strings.Contains(reply, "Supported commands:") {
		t.Fatalf("chat unrecognized result: %d %q", sameID, reply)
	}

	msgs, err := env.Engine.Repo.ListMessages(env.Ctx, convID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("roles: %+v", msgs)
	}

	if _, _, err := env.Engine.Chat(env.Ctx, env.UserID, 9999, "list"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown conversation: %v", err)
	}
}

func TestEventsAudit(t *testing.T) {
	env := newTestEnv(t)

	task, err := env.Engine.CreateTask(env.Ctx, env.UserID, "audit me", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, env.UserID, task.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, env.UserID, "", "task", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 task events, got %d", len(evts))
	}
	if evts[0].Type != "task.completed" || evts[1].Type != "task.created" {
		t.Fatalf("event order: %s %s", evts[0].Type, evts[1].Type)
	}
}
