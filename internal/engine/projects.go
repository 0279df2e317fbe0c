package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"devquest/internal/domain"
	"devquest/internal/engine/auth"
	"devquest/internal/events"
)

// ProposeProject creates a project owned by the calling client.
func (e Engine) ProposeProject(ctx context.Context, actor domain.Actor, title, description string) (domain.Project, error) {
	const op = "project.propose"
	if err := auth.Check(actor, auth.OpProjectPropose, auth.Target{}); err != nil {
		return domain.Project{}, err
	}
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return domain.Project{}, ValidationError{Op: op, Field: "title", Reason: "required"}
	}
	if description == "" {
		return domain.Project{}, ValidationError{Op: op, Field: "description", Reason: "required"}
	}
	status, err := domain.ParseProjectStatus(e.config().Projects.InitialStatus)
	if err != nil {
		status = domain.ProjectProposed
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()
	now := e.Timestamp()
	p := domain.Project{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      status,
		ClientID:    actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, storage(op, err)
	}
	if _, err := e.emit(ctx, tx, events.ProjectProposed, p.ID, "project", p.ID, actor.ID, events.EventPayload{"title": p.Title, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Project{}, err
	}
	e.Log().Info("project proposed", "op", op, "project_id", p.ID, "actor_id", actor.ID, "status", p.Status)
	return p, nil
}

// AcceptProject makes the caller the project's manager and activates it.
// A project accepts exactly one manager.
func (e Engine) AcceptProject(ctx context.Context, actor domain.Actor, projectID string) (domain.Project, error) {
	const op = "project.accept"
	if err := auth.Check(actor, auth.OpProjectAccept, auth.Target{}); err != nil {
		return domain.Project{}, err
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, lookup(op, "project", projectID, err)
	}
	if p.ManagerID != nil {
		return domain.Project{}, ConflictError{Entity: "project", ID: p.ID, Reason: "already has a manager"}
	}
	now := e.Timestamp()
	ok, err := e.Repo.ClaimProject(ctx, tx, p.ID, actor.ID, domain.ProjectActive, now)
	if err != nil {
		return domain.Project{}, storage(op, err)
	}
	if !ok {
		return domain.Project{}, concurrent("project", p.ID)
	}
	from := p.Status
	managerID := actor.ID
	p.ManagerID = &managerID
	p.Status = domain.ProjectActive
	p.UpdatedAt = now
	if _, err := e.emit(ctx, tx, events.ProjectAccepted, p.ID, "project", p.ID, actor.ID, events.EventPayload{"from": from, "to": p.Status, "manager_id": managerID}); err != nil {
		return domain.Project{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Project{}, err
	}
	e.Log().Info("project accepted", "op", op, "project_id", p.ID, "actor_id", actor.ID)
	return p, nil
}

// UpdateProjectStatus moves a managed project between active, in_review and
// launched. Only the project's own manager may do so.
func (e Engine) UpdateProjectStatus(ctx context.Context, actor domain.Actor, projectID, status string) (domain.Project, error) {
	const op = "project.status.update"
	if actor.Role != domain.RoleManager {
		return domain.Project{}, auth.Check(actor, auth.OpProjectStatusUpdate, auth.Target{})
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProject(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, lookup(op, "project", projectID, err)
	}
	if p.ManagerID == nil {
		return domain.Project{}, ConflictError{Entity: "project", ID: p.ID, Reason: "project has no manager yet"}
	}
	if err := auth.Check(actor, auth.OpProjectStatusUpdate, auth.Target{ManagerID: *p.ManagerID}); err != nil {
		return domain.Project{}, err
	}
	to, err := domain.ParseProjectStatus(status)
	if err != nil {
		return domain.Project{}, ValidationError{Op: op, Field: "status", Reason: err.Error()}
	}
	if to == domain.ProjectProposed {
		return domain.Project{}, ConflictError{Entity: "project", ID: p.ID, Reason: "a managed project cannot return to proposed"}
	}
	if to == p.Status {
		return p, nil
	}
	now := e.Timestamp()
	ok, err := e.Repo.SetProjectStatus(ctx, tx, p.ID, p.Status, to, now)
	if err != nil {
		return domain.Project{}, storage(op, err)
	}
	if !ok {
		return domain.Project{}, concurrent("project", p.ID)
	}
	from := p.Status
	p.Status = to
	p.UpdatedAt = now
	if _, err := e.emit(ctx, tx, events.ProjectStatusUpdated, p.ID, "project", p.ID, actor.ID, events.EventPayload{"from": from, "to": to}); err != nil {
		return domain.Project{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Project{}, err
	}
	e.Log().Info("project status updated", "op", op, "project_id", p.ID, "actor_id", actor.ID, "from", from, "to", to)
	return p, nil
}
