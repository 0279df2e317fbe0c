package server

import (
	"encoding/json"

	"devquest/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name" minLength:"1"`
	Email    string `json:"email" minLength:"3"`
	Password string `json:"password" minLength:"6"`
	Role     string `json:"role" doc:"client, manager or contributor (display names accepted)"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProposeProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ProjectStatusRequest struct {
	Status string `json:"status" doc:"proposed, active, in_review or launched"`
}

type SubmitTaskRequest struct {
	ProjectID     string   `json:"project_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	XP            int      `json:"xp,omitempty" doc:"0 uses the configured default"`
	Badges        []string `json:"badges,omitempty"`
	AssigneeEmail string   `json:"assignee_email,omitempty"`
}

type ApproveTaskRequest struct {
	AssigneeEmail string `json:"assignee_email,omitempty"`
}

type AssignTaskRequest struct {
	AssigneeEmail string `json:"assignee_email"`
}

type TaskStatusRequest struct {
	Status string `json:"status" doc:"todo, in_progress, review or done"`
}

// Response payloads

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at" format:"date-time"`
	Actor     domain.Actor `json:"actor"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
