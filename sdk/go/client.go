package taskpilotsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal TaskPilot HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          int64  `json:"id"`
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// User represents the API user model.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// Stats summarizes task counts.
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	CompletionRate float64 `json:"completion_rate"`
}

// Report is the analytics payload from /agent/analyze.
type Report struct {
	Summary         string   `json:"summary"`
	Stats           Stats    `json:"stats"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Patterns        []string `json:"patterns"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type tokenResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates an account and stores the returned bearer token on the
// client.
func (c *Client) Register(ctx context.Context, email, password string) (User, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "v1/auth/register", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "v1/auth/login", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, title, description string) (Task, error) {
	body := map[string]any{"title": title}
	if description != "" {
		body["description"] = description
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", body, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by completion.
func (c *Client) Tasks(ctx context.Context, completed *bool) ([]Task, error) {
	endpoint := "v1/tasks"
	if completed != nil {
		endpoint = fmt.Sprintf("%s?completed=%t", endpoint, *completed)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("v1/tasks/%d", id), map[string]any{"completed": true}, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("v1/tasks/%d", id), nil, nil)
}

// Prompt sends one natural-language command to the agent.
func (c *Client) Prompt(ctx context.Context, text string) (string, error) {
	var resp struct {
		Reply string `json:"reply"`
	}
	err := c.do(ctx, http.MethodPost, "v1/agent/prompt", map[string]any{"text": text}, &resp)
	return resp.Reply, err
}

// Analyze fetches the analytics report.
func (c *Client) Analyze(ctx context.Context) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, "v1/agent/analyze", nil, &resp)
	return resp, err
}

// Chat sends a message in a conversation; id 0 starts a new one.
func (c *Client) Chat(ctx context.Context, conversationID int64, text string) (int64, string, error) {
	var resp struct {
		ConversationID int64  `json:"conversation_id"`
		Reply          string `json:"reply"`
	}
	body := map[string]any{"text": text}
	if conversationID != 0 {
		body["conversation_id"] = conversationID
	}
	err := c.do(ctx, http.MethodPost, "v1/chat", body, &resp)
	return resp.ConversationID, resp.Reply, err
}

// Events returns recent audit events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v1/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateAPIKey mints an API key; the plaintext is only in this response.
func (c *Client) CreateAPIKey(ctx context.Context, name string) (id, key string, err error) {
	var resp struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	err = c.do(ctx, http.MethodPost, "v1/keys", map[string]any{"name": name}, &resp)
	return resp.ID, resp.Key, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
