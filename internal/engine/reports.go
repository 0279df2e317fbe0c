package engine

import (
	"context"
	"strings"

	"devquest/internal/domain"
	"devquest/internal/engine/auth"
	"devquest/internal/repo"
)

// TaskFilter narrows the board listing.
type TaskFilter struct {
	ProjectID  string
	AssigneeID string
	Status     string
	Limit      int
}

// ProjectsWithMetrics lists every project newest first with task counts,
// completion percentage and populated client/manager.
func (e Engine) ProjectsWithMetrics(ctx context.Context) ([]domain.ProjectOverview, error) {
	const op = "project.list"
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return nil, storage(op, err)
	}
	actors, err := e.actorIndex(ctx)
	if err != nil {
		return nil, storage(op, err)
	}
	res := make([]domain.ProjectOverview, 0, len(projects))
	for _, p := range projects {
		counts, err := e.Repo.CountTasksByStatus(ctx, p.ID)
		if err != nil {
			return nil, storage(op, err)
		}
		m := domain.ProjectMetrics{
			ToDo:       counts[domain.TaskToDo],
			InProgress: counts[domain.TaskInProgress],
			Review:     counts[domain.TaskReview],
			Done:       counts[domain.TaskDone],
		}
		m.Total = m.ToDo + m.InProgress + m.Review + m.Done
		ov := domain.ProjectOverview{Project: p, Metrics: m, Progress: m.Progress()}
		if a, ok := actors[p.ClientID]; ok {
			ov.Client = a.Summary()
		}
		if p.ManagerID != nil {
			if a, ok := actors[*p.ManagerID]; ok {
				ov.Manager = a.Summary()
			}
		}
		res = append(res, ov)
	}
	return res, nil
}

// Leaderboard ranks actors by XP, ties in registration order. limit <= 0
// uses the configured default.
func (e Engine) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if limit <= 0 {
		limit = e.config().Leaderboard.DefaultLimit
	}
	actors, err := e.Repo.ListActors(ctx, repo.ActorFilters{ByXP: true, Limit: limit})
	if err != nil {
		return nil, storage("leaderboard", err)
	}
	res := make([]domain.LeaderboardEntry, 0, len(actors))
	for i, a := range actors {
		res = append(res, domain.LeaderboardEntry{Rank: i + 1, Actor: a, Level: domain.LevelFor(a.XP), Badges: a.Badges})
	}
	return res, nil
}

// Tasks lists approved tasks newest first.
func (e Engine) Tasks(ctx context.Context, f TaskFilter) ([]domain.TaskView, error) {
	const op = "task.list"
	approved := true
	rf := repo.TaskFilters{ProjectID: f.ProjectID, AssigneeID: f.AssigneeID, Approved: &approved, Limit: f.Limit}
	if strings.TrimSpace(f.Status) != "" {
		status, err := domain.ParseTaskStatus(f.Status)
		if err != nil {
			return nil, ValidationError{Op: op, Field: "status", Reason: err.Error()}
		}
		rf.Status = string(status)
	}
	return e.taskViews(ctx, op, rf)
}

// PendingTasks lists tasks awaiting approval, oldest first.
func (e Engine) PendingTasks(ctx context.Context, actor domain.Actor) ([]domain.TaskView, error) {
	if err := auth.Check(actor, auth.OpTaskPendingList, auth.Target{}); err != nil {
		return nil, err
	}
	approved := false
	return e.taskViews(ctx, "task.pending.list", repo.TaskFilters{Approved: &approved, OldestFirst: true})
}

// SubmittedTasks lists what the actor submitted, approved or not, newest first.
func (e Engine) SubmittedTasks(ctx context.Context, actor domain.Actor) ([]domain.TaskView, error) {
	if err := auth.Check(actor, auth.OpTaskSubmittedList, auth.Target{}); err != nil {
		return nil, err
	}
	return e.taskViews(ctx, string(auth.OpTaskSubmittedList), repo.TaskFilters{SubmitterID: actor.ID})
}

func (e Engine) taskViews(ctx context.Context, op string, f repo.TaskFilters) ([]domain.TaskView, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	tasks, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, storage(op, err)
	}
	actors, err := e.actorIndex(ctx)
	if err != nil {
		return nil, storage(op, err)
	}
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return nil, storage(op, err)
	}
	titles := make(map[string]string, len(projects))
	for _, p := range projects {
		titles[p.ID] = p.Title
	}
	res := make([]domain.TaskView, 0, len(tasks))
	for _, t := range tasks {
		v := domain.TaskView{Task: t, ProjectTitle: titles[t.ProjectID]}
		if a, ok := actors[domain.AssigneeOf(t)]; ok {
			v.Assignee = a.Summary()
		}
		if a, ok := actors[t.SubmitterID]; ok {
			v.Submitter = a.Summary()
		}
		res = append(res, v)
	}
	return res, nil
}

// Contributors lists contributor actors by XP descending.
func (e Engine) Contributors(ctx context.Context) ([]domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	actors, err := e.Repo.ListActors(ctx, repo.ActorFilters{Role: string(domain.RoleContributor), ByXP: true})
	if err != nil {
		return nil, storage("contributor.list", err)
	}
	return actors, nil
}

// Profile returns an actor with level progress and task counts.
func (e Engine) Profile(ctx context.Context, actorID string) (domain.Profile, error) {
	const op = "actor.profile"
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	a, err := e.Repo.GetActor(ctx, nil, actorID)
	if err != nil {
		return domain.Profile{}, lookup(op, "actor", actorID, err)
	}
	p := domain.NewProfile(a)
	p.TasksDone, p.TasksActive, err = e.Repo.CountAssigneeTasks(ctx, actorID)
	if err != nil {
		return domain.Profile{}, storage(op, err)
	}
	return p, nil
}

// EventQuery selects from the event log. Before pages backwards from an
// event id.
type EventQuery struct {
	Type      string
	ProjectID string
	EntityID  string
	ActorID   string
	Limit     int
	Before    int64
}

// Events returns the most recent events first. The log carries actor
// emails, so only managers may read it.
func (e Engine) Events(ctx context.Context, actor domain.Actor, q EventQuery) ([]domain.Event, error) {
	if err := auth.Check(actor, auth.OpEventList, auth.Target{}); err != nil {
		return nil, err
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	evts, err := e.Repo.LatestEvents(ctx, q.Limit, q.Before, repo.EventFilters{
		Type: q.Type, ProjectID: q.ProjectID, EntityID: q.EntityID, ActorID: q.ActorID,
	})
	if err != nil {
		return nil, storage("event.list", err)
	}
	return evts, nil
}

func (e Engine) actorIndex(ctx context.Context) (map[string]domain.Actor, error) {
	actors, err := e.Repo.ListActors(ctx, repo.ActorFilters{})
	if err != nil {
		return nil, err
	}
	idx := make(map[string]domain.Actor, len(actors))
	for _, a := range actors {
		idx[a.ID] = a
	}
	return idx, nil
}
