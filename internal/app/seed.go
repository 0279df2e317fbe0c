package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"devquest/internal/domain"
	"devquest/internal/engine"
	"devquest/internal/engine/auth"
	"devquest/internal/events"
)

type seedActor struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
	XP       int
	Badges   []string
}

type seedProject struct {
	Title       string
	Description string
	Status      domain.ProjectStatus
	Managed     bool
}

type seedTask struct {
	Title       string
	Description string
	Status      domain.TaskStatus
	XP          int
	Badge       string
	Project     int
}

var (
	seedActors = []seedActor{
		{Name: "Lyra Solaris", Email: "client@devquest.io", Password: "summon2025", Role: domain.RoleClient, XP: 450, Badges: []string{"Visionary", "Early Adopter"}},
		{Name: "Ava Storm", Email: "pm@devquest.io", Password: "guildmaster", Role: domain.RoleManager, XP: 680, Badges: []string{"Strategist", "Crowd Favorite"}},
		{Name: "Kai Ember", Email: "dev@devquest.io", Password: "adventure", Role: domain.RoleContributor, XP: 320, Badges: []string{"Bug Slayer", "Night Owl"}},
	}
	seedProjects = []seedProject{
		{Title: "Forge Daily Quests", Description: "Turn the team's daily stand-up into a quest board with streaks and rewards.", Status: domain.ProjectActive, Managed: true},
		{Title: "Client Portal", Description: "Give clients a window into quest progress and launch readiness.", Status: domain.ProjectInReview, Managed: true},
		{Title: "Adventurer Gear Shop", Description: "Let adventurers spend earned XP on cosmetic gear.", Status: domain.ProjectProposed},
	}
	seedTasks = []seedTask{
		{Title: "Wire onboarding narrative", Description: "Write the intro quest that walks new adventurers through the board.", Status: domain.TaskToDo, XP: 50, Badge: "Narrator", Project: 0},
		{Title: "Hook XP gain to Kanban events", Description: "Pay XP when cards land in done.", Status: domain.TaskInProgress, XP: 90, Badge: "Systems Thinker", Project: 0},
		{Title: "Summon AI quest generator", Description: "Draft quests from project descriptions.", Status: domain.TaskReview, XP: 120, Badge: "Arcane Engineer", Project: 1},
		{Title: "Client portal smoke tests", Description: "Cover login and the project overview page.", Status: domain.TaskDone, XP: 60, Badge: "Guardian", Project: 1},
	}
)

// SeedResult reports what Seed inserted.
type SeedResult struct {
	Skipped  bool `json:"skipped"`
	Actors   int  `json:"actors"`
	Projects int  `json:"projects"`
	Tasks    int  `json:"tasks"`
}

// Seed inserts the demo roster, projects and tasks. It does nothing when any
// actor already exists, so it is safe to run repeatedly.
func Seed(ctx context.Context, eng engine.Engine) (SeedResult, error) {
	tx, err := eng.DB.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, err
	}
	defer tx.Rollback()

	n, err := eng.Repo.CountActors(ctx, tx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("count actors: %w", err)
	}
	if n > 0 {
		return SeedResult{Skipped: true}, nil
	}

	now := eng.Timestamp()
	writer := eng.EventLog
	if writer.Now == nil && eng.Now != nil {
		writer.Now = eng.Now
	}
	var res SeedResult
	ids := make(map[domain.Role]string, len(seedActors))
	for _, sa := range seedActors {
		hash, err := auth.HashPassword(sa.Password)
		if err != nil {
			return SeedResult{}, err
		}
		a := domain.Actor{ID: uuid.NewString(), Name: sa.Name, Email: sa.Email, Role: sa.Role, XP: sa.XP, Badges: sa.Badges, CreatedAt: now}
		if err := eng.Repo.InsertActor(ctx, tx, a, hash); err != nil {
			return SeedResult{}, fmt.Errorf("seed actor %s: %w", sa.Email, err)
		}
		if _, err := writer.Append(ctx, tx, events.ActorRegistered, "", "actor", a.ID, a.ID, events.EventPayload{"email": a.Email, "role": a.Role, "xp": a.XP, "seed": true}); err != nil {
			return SeedResult{}, err
		}
		ids[sa.Role] = a.ID
		res.Actors++
	}

	projectIDs := make([]string, 0, len(seedProjects))
	for _, sp := range seedProjects {
		p := domain.Project{
			ID:          uuid.NewString(),
			Title:       sp.Title,
			Description: sp.Description,
			Status:      sp.Status,
			ClientID:    ids[domain.RoleClient],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if sp.Managed {
			manager := ids[domain.RoleManager]
			p.ManagerID = &manager
		}
		if err := eng.Repo.InsertProject(ctx, tx, p); err != nil {
			return SeedResult{}, fmt.Errorf("seed project %s: %w", sp.Title, err)
		}
		projectIDs = append(projectIDs, p.ID)
		res.Projects++
	}

	for _, st := range seedTasks {
		assignee := ids[domain.RoleContributor]
		t := domain.Task{
			ID:          uuid.NewString(),
			ProjectID:   projectIDs[st.Project],
			Title:       st.Title,
			Description: st.Description,
			Status:      st.Status,
			XP:          st.XP,
			Badges:      []string{st.Badge},
			AssigneeID:  &assignee,
			SubmitterID: ids[domain.RoleManager],
			Approved:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if st.Status == domain.TaskDone {
			completed := now
			t.CompletedAt = &completed
		}
		if err := eng.Repo.InsertTask(ctx, tx, t); err != nil {
			return SeedResult{}, fmt.Errorf("seed task %s: %w", st.Title, err)
		}
		res.Tasks++
	}
	if err := tx.Commit(); err != nil {
		return SeedResult{}, err
	}
	eng.Log().Info("demo data seeded", "actors", res.Actors, "projects", res.Projects, "tasks", res.Tasks)
	return res, nil
}
