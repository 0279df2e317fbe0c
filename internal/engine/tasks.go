package engine

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"devquest/internal/domain"
	"devquest/internal/engine/auth"
	"devquest/internal/events"
)

// SubmitTaskOptions are parameters for submitting a task. XP of zero means
// the configured default.
type SubmitTaskOptions struct {
	ProjectID     string
	Title         string
	Description   string
	XP            int
	Badges        []string
	AssigneeEmail string
}

// NormalizeBadges trims entries, drops empties and removes duplicates while
// keeping first-seen order.
func NormalizeBadges(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, b := range in {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// SubmitTask adds a task to a project. Tasks from a manager with an assignee
// go straight onto the board; everything else waits for approval.
func (e Engine) SubmitTask(ctx context.Context, actor domain.Actor, opts SubmitTaskOptions) (domain.Task, error) {
	const op = "task.submit"
	if err := auth.Check(actor, auth.OpTaskSubmit, auth.Target{}); err != nil {
		return domain.Task{}, err
	}
	title := strings.TrimSpace(opts.Title)
	description := strings.TrimSpace(opts.Description)
	projectID := strings.TrimSpace(opts.ProjectID)
	switch {
	case title == "":
		return domain.Task{}, ValidationError{Op: op, Field: "title", Reason: "required"}
	case description == "":
		return domain.Task{}, ValidationError{Op: op, Field: "description", Reason: "required"}
	case projectID == "":
		return domain.Task{}, ValidationError{Op: op, Field: "project", Reason: "required"}
	case opts.XP < 0:
		return domain.Task{}, ValidationError{Op: op, Field: "xp", Reason: "must not be negative"}
	}
	xp := opts.XP
	if xp == 0 {
		xp = e.config().Rewards.DefaultTaskXP
	}

	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProject(ctx, tx, projectID); err != nil {
		return domain.Task{}, lookup(op, "project", projectID, err)
	}
	var assigneeID *string
	if email := strings.TrimSpace(opts.AssigneeEmail); email != "" {
		assignee, err := e.resolveAssignee(ctx, tx, op, email)
		if err != nil {
			return domain.Task{}, err
		}
		assigneeID = &assignee.ID
	}
	now := e.Timestamp()
	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Status:      domain.TaskToDo,
		XP:          xp,
		Badges:      NormalizeBadges(opts.Badges),
		AssigneeID:  assigneeID,
		SubmitterID: actor.ID,
		Approved:    actor.Role == domain.RoleManager && assigneeID != nil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, storage(op, err)
	}
	if _, err := e.emit(ctx, tx, events.TaskSubmitted, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{
		"title": t.Title, "xp": t.XP, "approved": t.Approved, "assignee_id": domain.AssigneeOf(t),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Task{}, err
	}
	e.Log().Info("task submitted", "op", op, "task_id", t.ID, "project_id", t.ProjectID, "actor_id", actor.ID, "approved", t.Approved)
	return t, nil
}

// ApproveTask puts a pending task on the board in todo, optionally binding
// an assignee. It never grants rewards.
func (e Engine) ApproveTask(ctx context.Context, actor domain.Actor, taskID, assigneeEmail string) (domain.Task, error) {
	const op = "task.approve"
	if err := auth.Check(actor, auth.OpTaskApprove, auth.Target{}); err != nil {
		return domain.Task{}, err
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, lookup(op, "task", taskID, err)
	}
	if email := strings.TrimSpace(assigneeEmail); email != "" {
		assignee, err := e.resolveAssignee(ctx, tx, op, email)
		if err != nil {
			return domain.Task{}, err
		}
		t.AssigneeID = &assignee.ID
	}
	from := t.Status
	t.Approved = true
	t.Status = domain.TaskToDo
	t.CompletedAt = nil
	t.UpdatedAt = e.Timestamp()
	if err := e.save(ctx, tx, op, t, from); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.emit(ctx, tx, events.TaskApproved, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{
		"from": from, "assignee_id": domain.AssigneeOf(t),
	}); err != nil {
		return domain.Task{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Task{}, err
	}
	e.Log().Info("task approved", "op", op, "task_id", t.ID, "actor_id", actor.ID)
	return t, nil
}

// AssignTask binds an assignee without touching status or approval.
func (e Engine) AssignTask(ctx context.Context, actor domain.Actor, taskID, assigneeEmail string) (domain.Task, error) {
	const op = "task.assign"
	if err := auth.Check(actor, auth.OpTaskAssign, auth.Target{}); err != nil {
		return domain.Task{}, err
	}
	email := strings.TrimSpace(assigneeEmail)
	if email == "" {
		return domain.Task{}, ValidationError{Op: op, Field: "assignee_email", Reason: "required"}
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, lookup(op, "task", taskID, err)
	}
	assignee, err := e.resolveAssignee(ctx, tx, op, email)
	if err != nil {
		return domain.Task{}, err
	}
	previous := domain.AssigneeOf(t)
	t.AssigneeID = &assignee.ID
	t.UpdatedAt = e.Timestamp()
	if err := e.save(ctx, tx, op, t, t.Status); err != nil {
		return domain.Task{}, err
	}
	if _, err := e.emit(ctx, tx, events.TaskAssigned, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{
		"assignee_id": assignee.ID, "previous_assignee_id": previous,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Task{}, err
	}
	e.Log().Info("task assigned", "op", op, "task_id", t.ID, "assignee_id", assignee.ID, "actor_id", actor.ID)
	return t, nil
}

// AdvanceTaskStatus moves a task to any stage. Entering done from another
// stage pays the assignee the task's XP and badges in the same transaction.
func (e Engine) AdvanceTaskStatus(ctx context.Context, actor domain.Actor, taskID, status string) (domain.Task, error) {
	const op = "task.advance"
	if actor.Role != domain.RoleManager && actor.Role != domain.RoleContributor {
		return domain.Task{}, auth.Check(actor, auth.OpTaskAdvance, auth.Target{})
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := e.Repo.GetTask(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, lookup(op, "task", taskID, err)
	}
	if err := auth.Check(actor, auth.OpTaskAdvance, auth.Target{AssigneeID: domain.AssigneeOf(t)}); err != nil {
		return domain.Task{}, err
	}
	to, err := domain.ParseTaskStatus(status)
	if err != nil {
		return domain.Task{}, ValidationError{Op: op, Field: "status", Reason: err.Error()}
	}
	if to == t.Status {
		return t, nil
	}
	if to != domain.TaskToDo {
		if !t.Approved {
			return domain.Task{}, ConflictError{Entity: "task", ID: t.ID, Reason: "task is awaiting approval"}
		}
		if t.AssigneeID == nil {
			return domain.Task{}, ConflictError{Entity: "task", ID: t.ID, Reason: "task has no assignee"}
		}
	}

	from := t.Status
	now := e.Timestamp()
	t.Status = to
	t.UpdatedAt = now
	if to == domain.TaskDone {
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	if err := e.save(ctx, tx, op, t, from); err != nil {
		return domain.Task{}, err
	}
	evtID, err := e.emit(ctx, tx, events.TaskStatusUpdated, t.ProjectID, "task", t.ID, actor.ID, events.EventPayload{"from": from, "to": to})
	if err != nil {
		return domain.Task{}, err
	}
	if to == domain.TaskDone {
		if err := e.award(ctx, tx, t, actor.ID, evtID); err != nil {
			return domain.Task{}, err
		}
	}
	if err := commit(op, tx); err != nil {
		return domain.Task{}, err
	}
	e.Log().Info("task status updated", "op", op, "task_id", t.ID, "actor_id", actor.ID, "from", from, "to", to)
	return t, nil
}

// save writes t if its stored status is still expected.
func (e Engine) save(ctx context.Context, tx *sql.Tx, op string, t domain.Task, expected domain.TaskStatus) error {
	ok, err := e.Repo.UpdateTask(ctx, tx, t, expected)
	if err != nil {
		return storage(op, err)
	}
	if !ok {
		return concurrent("task", t.ID)
	}
	return nil
}

func (e Engine) resolveAssignee(ctx context.Context, tx *sql.Tx, op, email string) (domain.Actor, error) {
	a, err := e.Repo.GetActorByEmail(ctx, tx, email)
	if err != nil {
		return domain.Actor{}, lookup(op, "assignee", domain.NormalizeEmail(email), err)
	}
	return a, nil
}
