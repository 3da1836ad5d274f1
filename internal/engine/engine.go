package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskpilot/internal/agent"
	"taskpilot/internal/config"
	"taskpilot/internal/domain"
	"taskpilot/internal/events"
	"taskpilot/internal/repo"
)

// Engine orchestrates the repository, audit log, and the command/analytics
// agents. Each mutation runs in a single transaction with its audit event.
type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Parser     *agent.Parser
	Strategist agent.Strategist
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Parser:     agent.NewParser(),
		Strategist: agent.NewStrategist(cfg.Analyst),
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

var ErrInvalidCredentials = errors.New("invalid email or password")

// RegisterUser creates a user with a bcrypt-hashed password.
func (e Engine) RegisterUser(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, errors.New("valid email is required")
	}
	if len(password) < 8 {
		return domain.User{}, errors.New("password must be at least 8 characters")
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, fmt.Errorf("email %s already registered", email)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.registered", u.ID, "user", u.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate verifies credentials and returns the user. It fails with
// ErrInvalidCredentials for both unknown emails and wrong passwords.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// CreateTask inserts a task for the user and logs task.created.
func (e Engine) CreateTask(ctx context.Context, userID, title, description string) (domain.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	if err := e.Events.Append(ctx, tx, "task.created", userID, "task", fmt.Sprint(id), events.EventPayload{"title": t.Title}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) GetTask(ctx context.Context, userID string, id int64) (domain.Task, error) {
	return e.Repo.GetTask(ctx, userID, id)
}

// TaskUpdateOptions encapsulates allowed task updates. Nil fields are left
// untouched.
type TaskUpdateOptions struct {
	UserID      string
	ID          int64
	Title       *string
	Description *string
	Completed   *bool
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.UserID, opts.ID)
	if err != nil {
		return t, err
	}
	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return t, errors.New("title must not be empty")
		}
		t.Title = title
	}
	if opts.Description != nil {
		t.Description = strings.TrimSpace(*opts.Description)
	}
	if opts.Completed != nil {
		t.Completed = *opts.Completed
	}
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Events.Append(ctx, tx, "task.updated", opts.UserID, "task", fmt.Sprint(t.ID), events.EventPayload{"title": t.Title, "completed": t.Completed}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// SetTaskCompleted flips the completed flag and logs task.completed or
// task.reopened.
func (e Engine) SetTaskCompleted(ctx context.Context, userID string, id int64, completed bool) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, userID, id)
	if err != nil {
		return t, err
	}
	t.Completed = completed
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	evtType := "task.completed"
	if !completed {
		evtType = "task.reopened"
	}
	if err := e.Events.Append(ctx, tx, evtType, userID, "task", fmt.Sprint(id), nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, userID string, id int64) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, userID, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", userID, "task", fmt.Sprint(id), nil); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a personal API key and returns the plaintext once;
// only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	plaintext := "tpk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", userID, "api_key", key.ID, events.EventPayload{"name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}
