package devquestsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal DevQuest HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Actor represents an account.
type Actor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	XP        int      `json:"xp"`
	Badges    []string `json:"badges"`
	CreatedAt string   `json:"created_at"`
}

// Profile is an actor with level progress.
type Profile struct {
	Actor       Actor `json:"actor"`
	Level       int   `json:"level"`
	LevelXP     int   `json:"level_xp"`
	XPToNext    int   `json:"xp_to_next"`
	TasksDone   int   `json:"tasks_done"`
	TasksActive int   `json:"tasks_active"`
}

// Project represents the API project model.
type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ClientID    string `json:"client_id"`
	ManagerID   string `json:"manager_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ProjectOverview is a project with task metrics.
type ProjectOverview struct {
	Project
	Metrics struct {
		Total      int `json:"total"`
		ToDo       int `json:"todo"`
		InProgress int `json:"in_progress"`
		Review     int `json:"review"`
		Done       int `json:"done"`
	} `json:"metrics"`
	Progress int `json:"progress"`
}

// Task represents the API task model.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	XP          int      `json:"xp"`
	Badges      []string `json:"badges"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	SubmitterID string   `json:"submitter_id"`
	Approved    bool     `json:"approved"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// LeaderboardEntry is one ranked actor.
type LeaderboardEntry struct {
	Rank   int      `json:"rank"`
	Actor  Actor    `json:"actor"`
	Level  int      `json:"level"`
	Badges []string `json:"badges"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// SubmitTask describes a new task.
type SubmitTask struct {
	ProjectID     string   `json:"project_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	XP            int      `json:"xp,omitempty"`
	Badges        []string `json:"badges,omitempty"`
	AssigneeEmail string   `json:"assignee_email,omitempty"`
}

// TaskQuery filters ListTasks.
type TaskQuery struct {
	ProjectID  string
	AssigneeID string
	Status     string
	Limit      int
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Actor, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
		Actor     Actor  `json:"actor"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return Actor{}, err
	}
	c.BearerToken = resp.Token
	return resp.Actor, nil
}

// Me returns the authenticated actor's profile.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// ProposeProject creates a project as the authenticated client.
func (c *Client) ProposeProject(ctx context.Context, title, description string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", map[string]any{"title": title, "description": description}, &resp)
	return resp, err
}

// AcceptProject makes the authenticated manager the project's manager.
func (c *Client) AcceptProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/accept", url.PathEscape(projectID)), nil, &resp)
	return resp, err
}

// UpdateProjectStatus moves a project through its lifecycle.
func (c *Client) UpdateProjectStatus(ctx context.Context, projectID, status string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("projects/%s/status", url.PathEscape(projectID)), map[string]any{"status": status}, &resp)
	return resp, err
}

// Projects lists projects with metrics.
func (c *Client) Projects(ctx context.Context) ([]ProjectOverview, error) {
	var resp []ProjectOverview
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// SubmitTask submits a task.
func (c *Client) SubmitTask(ctx context.Context, in SubmitTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// ApproveTask approves a pending task, optionally binding an assignee.
func (c *Client) ApproveTask(ctx context.Context, taskID, assigneeEmail string) (Task, error) {
	var body any
	if assigneeEmail != "" {
		body = map[string]any{"assignee_email": assigneeEmail}
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/approve", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// AssignTask assigns a task by email.
func (c *Client) AssignTask(ctx context.Context, taskID, assigneeEmail string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/assign", url.PathEscape(taskID)), map[string]any{"assignee_email": assigneeEmail}, &resp)
	return resp, err
}

// MoveTask changes a task's status.
func (c *Client) MoveTask(ctx context.Context, taskID, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID)), map[string]any{"status": status}, &resp)
	return resp, err
}

// ListTasks returns approved tasks matching q.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	values := url.Values{}
	if q.ProjectID != "" {
		values.Set("project_id", q.ProjectID)
	}
	if q.AssigneeID != "" {
		values.Set("assignee_id", q.AssigneeID)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", q.Limit))
	}
	endpoint := "tasks"
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Leaderboard returns the top actors by XP. limit 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	endpoint := "leaderboard"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []LeaderboardEntry
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		values.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(values) > 0 {
		endpoint += "?" + values.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
