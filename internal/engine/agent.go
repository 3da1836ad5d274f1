package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskpilot/internal/agent"
	"taskpilot/internal/domain"
	"taskpilot/internal/repo"
)

// userTasks adapts the repository to the command dispatcher's store
// contract, pinning every call to one user.
type userTasks struct {
	e      Engine
	userID string
}

// UserTasks returns a task store scoped to the given user.
func (e Engine) UserTasks(userID string) agent.TaskStore {
	return userTasks{e: e, userID: userID}
}

func translate(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return agent.ErrNotFound
	}
	return err
}

func (s userTasks) Create(ctx context.Context, title, description string) (domain.Task, error) {
	t, err := s.e.CreateTask(ctx, s.userID, title, description)
	return t, translate(err)
}

func (s userTasks) ListAll(ctx context.Context) ([]domain.Task, error) {
	ts, err := s.e.ListTasks(ctx, repo.TaskFilters{UserID: s.userID})
	return ts, translate(err)
}

func (s userTasks) Get(ctx context.Context, id int64) (domain.Task, error) {
	t, err := s.e.GetTask(ctx, s.userID, id)
	return t, translate(err)
}

func (s userTasks) SetCompleted(ctx context.Context, id int64, completed bool) (domain.Task, error) {
	t, err := s.e.SetTaskCompleted(ctx, s.userID, id, completed)
	return t, translate(err)
}

func (s userTasks) Update(ctx context.Context, id int64, title string) (domain.Task, error) {
	t, err := s.e.UpdateTask(ctx, TaskUpdateOptions{UserID: s.userID, ID: id, Title: &title})
	return t, translate(err)
}

func (s userTasks) Delete(ctx context.Context, id int64) error {
	return translate(s.e.DeleteTask(ctx, s.userID, id))
}

// Prompt parses one natural-language command and executes it against the
// user's tasks. The reply is always user-facing text; failures from the
// command layer come back as the typed errors the callers map to status
// codes.
func (e Engine) Prompt(ctx context.Context, userID, text string) (string, error) {
	cmd := e.Parser.Parse(text)
	d := agent.Dispatcher{Store: e.UserTasks(userID)}
	return d.Execute(ctx, cmd)
}

// Analyze produces the analytics report over every task of the user.
func (e Engine) Analyze(ctx context.Context, userID string) (agent.Report, error) {
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{UserID: userID})
	if err != nil {
		return agent.Report{}, err
	}
	// The engine clock wins so reports are reproducible under a fixed Now.
	s := e.Strategist
	s.Now = e.now
	return s.Analyze(tasks), nil
}

// Chat runs Prompt inside a persisted conversation. A zero conversation ID
// starts a new conversation titled after the first message.
func (e Engine) Chat(ctx context.Context, userID string, conversationID int64, text string) (int64, string, error) {
	now := e.now().UTC().Format(time.RFC3339)
	if conversationID == 0 {
		title := strings.TrimSpace(text)
		if len(title) > 60 {
			title = title[:60]
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return 0, "", err
		}
		id, err := e.Repo.InsertConversation(ctx, tx, domain.Conversation{
			UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			tx.Rollback()
			return 0, "", err
		}
		if err := tx.Commit(); err != nil {
			return 0, "", err
		}
		conversationID = id
	} else if _, err := e.Repo.GetConversation(ctx, userID, conversationID); err != nil {
		return 0, "", err
	}

	reply, err := e.Prompt(ctx, userID, text)
	if err != nil {
		// Typed command errors still carry a user-facing message; persist
		// it so the transcript reflects what the user saw.
		var pe agent.ParseError
		var ve agent.ValidationError
		var nf agent.NotFoundError
		if errors.As(err, &pe) || errors.As(err, &ve) || errors.As(err, &nf) {
			reply = err.Error()
		} else {
			return conversationID, "", err
		}
	}

	tx, txErr := e.DB.BeginTx(ctx, nil)
	if txErr != nil {
		return conversationID, "", txErr
	}
	defer tx.Rollback()
	if _, err := e.Repo.InsertMessage(ctx, tx, domain.Message{
		ConversationID: conversationID, Role: domain.RoleUser, Content: text, CreatedAt: now,
	}); err != nil {
		return conversationID, "", err
	}
	if _, err := e.Repo.InsertMessage(ctx, tx, domain.Message{
		ConversationID: conversationID, Role: domain.RoleAssistant, Content: reply, CreatedAt: now,
	}); err != nil {
		return conversationID, "", err
	}
	if err := e.Repo.TouchConversation(ctx, tx, conversationID, now); err != nil {
		return conversationID, "", err
	}
	if err := tx.Commit(); err != nil {
		return conversationID, "", err
	}
	return conversationID, reply, nil
}
