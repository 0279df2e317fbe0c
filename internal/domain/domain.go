package domain

import (
	"fmt"
	"strings"
)

// Role is one of the three fixed actor roles.
type Role string

const (
	RoleClient      Role = "client"
	RoleManager     Role = "manager"
	RoleContributor Role = "contributor"
)

// Roles lists every valid role.
var Roles = []Role{RoleClient, RoleManager, RoleContributor}

// ParseRole accepts wire values and the guild display names, case-insensitively.
func ParseRole(in string) (Role, error) {
	switch normalizeEnum(in) {
	case "client", "quest_giver":
		return RoleClient, nil
	case "manager", "guild_master":
		return RoleManager, nil
	case "contributor", "adventurer":
		return RoleContributor, nil
	}
	return "", fmt.Errorf("invalid role %q", in)
}

// TaskStatus is a task's stage on the board.
type TaskStatus string

const (
	TaskToDo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

var TaskStatuses = []TaskStatus{TaskToDo, TaskInProgress, TaskReview, TaskDone}

func ParseTaskStatus(in string) (TaskStatus, error) {
	switch normalizeEnum(in) {
	case "todo", "to_do":
		return TaskToDo, nil
	case "in_progress", "inprogress":
		return TaskInProgress, nil
	case "review":
		return TaskReview, nil
	case "done":
		return TaskDone, nil
	}
	return "", fmt.Errorf("invalid task status %q", in)
}

// ProjectStatus is a project's lifecycle state.
type ProjectStatus string

const (
	ProjectProposed ProjectStatus = "proposed"
	ProjectActive   ProjectStatus = "active"
	ProjectInReview ProjectStatus = "in_review"
	ProjectLaunched ProjectStatus = "launched"
)

var ProjectStatuses = []ProjectStatus{ProjectProposed, ProjectActive, ProjectInReview, ProjectLaunched}

func ParseProjectStatus(in string) (ProjectStatus, error) {
	switch normalizeEnum(in) {
	case "proposed", "ideation":
		return ProjectProposed, nil
	case "active", "active_sprint":
		return ProjectActive, nil
	case "in_review", "inreview", "review":
		return ProjectInReview, nil
	case "launched":
		return ProjectLaunched, nil
	}
	return "", fmt.Errorf("invalid project status %q", in)
}

// normalizeEnum folds "In-Progress", "in progress" and "IN_PROGRESS" to "in_progress".
func normalizeEnum(in string) string {
	s := strings.ToLower(strings.TrimSpace(in))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Actor struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Role      Role     `json:"role" enum:"client,manager,contributor"`
	XP        int      `json:"xp"`
	Badges    []string `json:"badges"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Project struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      ProjectStatus `json:"status" enum:"proposed,active,in_review,launched"`
	ClientID    string        `json:"client_id"`
	ManagerID   *string       `json:"manager_id,omitempty"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status" enum:"todo,in_progress,review,done"`
	XP          int        `json:"xp"`
	Badges      []string   `json:"badges"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	SubmitterID string     `json:"submitter_id"`
	Approved    bool       `json:"approved"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
}

// AssigneeOf returns the task's assignee id or "" when unassigned.
func AssigneeOf(t Task) string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ActorSummary is the populated form of an actor reference on read models.
type ActorSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type ProjectMetrics struct {
	Total      int `json:"total"`
	ToDo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Review     int `json:"review"`
	Done       int `json:"done"`
}

// Progress is done/total as a rounded percentage, 0 for an empty project.
func (m ProjectMetrics) Progress() int {
	if m.Total == 0 {
		return 0
	}
	return (m.Done*200 + m.Total) / (m.Total * 2)
}

type ProjectOverview struct {
	Project
	Client   *ActorSummary  `json:"client,omitempty"`
	Manager  *ActorSummary  `json:"manager,omitempty"`
	Metrics  ProjectMetrics `json:"metrics"`
	Progress int            `json:"progress"`
}

type LeaderboardEntry struct {
	Rank   int      `json:"rank"`
	Actor  Actor    `json:"actor"`
	Level  int      `json:"level"`
	Badges []string `json:"badges"`
}

const XPPerLevel = 100

// Profile is an actor with derived level progress.
type Profile struct {
	Actor       Actor `json:"actor"`
	Level       int   `json:"level"`
	LevelXP     int   `json:"level_xp"`
	XPToNext    int   `json:"xp_to_next"`
	TasksDone   int   `json:"tasks_done"`
	TasksActive int   `json:"tasks_active"`
}

// LevelFor returns the 1-based level for an XP total.
func LevelFor(xp int) int {
	if xp < 0 {
		return 1
	}
	return xp/XPPerLevel + 1
}

// NewProfile derives level fields from the actor's XP.
func NewProfile(a Actor) Profile {
	into := a.XP % XPPerLevel
	if into < 0 {
		into = 0
	}
	return Profile{
		Actor:    a,
		Level:    LevelFor(a.XP),
		LevelXP:  into,
		XPToNext: XPPerLevel - into,
	}
}

// TaskView is a task with its actor and project references populated.
type TaskView struct {
	Task
	Assignee     *ActorSummary `json:"assignee,omitempty"`
	Submitter    *ActorSummary `json:"submitter,omitempty"`
	ProjectTitle string        `json:"project_title,omitempty"`
}

// Summary returns the populated form of the actor.
func (a Actor) Summary() *ActorSummary {
	return &ActorSummary{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}
