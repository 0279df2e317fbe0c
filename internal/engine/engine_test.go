package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"devquest/internal/config"
	"devquest/internal/db"
	"devquest/internal/domain"
	"devquest/internal/engine"
	"devquest/internal/engine/auth"
	"devquest/internal/migrate"
	"devquest/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Client  domain.Actor
	Manager domain.Actor
	Dev     domain.Actor
	Other   domain.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	env := testEnv{Engine: eng, Ctx: context.Background()}
	env.Client = env.register(t, "Lyra", "client@devquest.io", "client")
	env.Manager = env.register(t, "Ava", "pm@devquest.io", "manager")
	env.Dev = env.register(t, "Kai", "dev@devquest.io", "contributor")
	env.Other = env.register(t, "Rin", "rin@devquest.io", "contributor")
	return env
}

func (env testEnv) register(t *testing.T, name, email, role string) domain.Actor {
	t.Helper()
	a, err := env.Engine.RegisterActor(env.Ctx, engine.RegisterOptions{Name: name, Email: email, Password: "secret-pass", Role: role})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return a
}

func (env testEnv) project(t *testing.T) domain.Project {
	t.Helper()
	p, err := env.Engine.ProposeProject(env.Ctx, env.Client, "Forge Daily Quests", "Daily quest board")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	p, err = env.Engine.AcceptProject(env.Ctx, env.Manager, p.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return p
}

// boardTask is approved and assigned to the dev.
func (env testEnv) boardTask(t *testing.T, projectID string, xp int, badges ...string) domain.Task {
	t.Helper()
	task, err := env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{
		ProjectID: projectID, Title: "Wire onboarding", Description: "Narrative intro", XP: xp, Badges: badges,
		AssigneeEmail: env.Dev.Email,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return task
}

func (env testEnv) xp(t *testing.T, id string) domain.Actor {
	t.Helper()
	a, err := env.Engine.Actor(env.Ctx, id)
	if err != nil {
		t.Fatalf("actor %s: %v", id, err)
	}
	return a
}

func (env testEnv) eventCount(t *testing.T, typ string) int {
	t.Helper()
	evts, err := env.Engine.Events(env.Ctx, env.Manager, engine.EventQuery{Type: typ, Limit: 1000})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return len(evts)
}

func expectForbidden(t *testing.T, err error) {
	t.Helper()
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func expectValidation(t *testing.T, err error, field string) {
	t.Helper()
	var v engine.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if field != "" && v.Field != field {
		t.Fatalf("expected field %s, got %s", field, v.Field)
	}
}

func expectNotFound(t *testing.T, err error) {
	t.Helper()
	var nf engine.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func expectConflict(t *testing.T, err error) {
	t.Helper()
	var c engine.ConflictError
	if !errors.As(err, &c) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRegisterActor(t *testing.T) {
	env := newTestEnv(t)
	if env.Dev.XP != 150 {
		t.Fatalf("contributor should start at 150 xp, got %d", env.Dev.XP)
	}
	if env.Client.XP != 0 || env.Manager.XP != 0 {
		t.Fatalf("non-contributors start at zero")
	}

	_, err := env.Engine.RegisterActor(env.Ctx, engine.RegisterOptions{Name: "Dup", Email: "DEV@devquest.io", Password: "secret-pass", Role: "client"})
	expectConflict(t, err)

	cases := []struct {
		opts  engine.RegisterOptions
		field string
	}{
		{engine.RegisterOptions{Email: "a@b.io", Password: "secret-pass", Role: "client"}, "name"},
		{engine.RegisterOptions{Name: "A", Email: "nope", Password: "secret-pass", Role: "client"}, "email"},
		{engine.RegisterOptions{Name: "A", Email: "a@b.io", Password: "12345", Role: "client"}, "password"},
		{engine.RegisterOptions{Name: "A", Email: "a@b.io", Password: "secret-pass", Role: "wizard"}, "role"},
	}
	for _, tc := range cases {
		_, err := env.Engine.RegisterActor(env.Ctx, tc.opts)
		expectValidation(t, err, tc.field)
	}

	got, err := env.Engine.Authenticate(env.Ctx, "Dev@DevQuest.io", "secret-pass")
	if err != nil || got.ID != env.Dev.ID {
		t.Fatalf("authenticate: %v %+v", err, got)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, env.Dev.Email, "wrong-pass"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.Engine.Authenticate(env.Ctx, "ghost@devquest.io", "secret-pass"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.ProposeProject(env.Ctx, env.Client, "  Client Portal ", "Portal for clients")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Status != domain.ProjectProposed || p.ManagerID != nil || p.ClientID != env.Client.ID || p.Title != "Client Portal" {
		t.Fatalf("unexpected project %+v", p)
	}

	_, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Manager, p.ID, "in_review")
	expectConflict(t, err)

	p, err = env.Engine.AcceptProject(env.Ctx, env.Manager, p.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if p.Status != domain.ProjectActive || p.ManagerID == nil || *p.ManagerID != env.Manager.ID {
		t.Fatalf("unexpected accepted project %+v", p)
	}

	second := env.register(t, "Zed", "zed@devquest.io", "manager")
	_, err = env.Engine.AcceptProject(env.Ctx, second, p.ID)
	expectConflict(t, err)
	_, err = env.Engine.UpdateProjectStatus(env.Ctx, second, p.ID, "in_review")
	expectForbidden(t, err)
	_, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Client, p.ID, "in_review")
	expectForbidden(t, err)
	_, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Manager, p.ID, "shipped")
	expectValidation(t, err, "status")
	_, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Manager, p.ID, "proposed")
	expectConflict(t, err)

	p, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Manager, p.ID, "In Review")
	if err != nil || p.Status != domain.ProjectInReview {
		t.Fatalf("status update: %v %+v", err, p)
	}
	p, err = env.Engine.UpdateProjectStatus(env.Ctx, env.Manager, p.ID, "launched")
	if err != nil || p.Status != domain.ProjectLaunched {
		t.Fatalf("launch: %v %+v", err, p)
	}
	if n := env.eventCount(t, "project.status.updated"); n != 2 {
		t.Fatalf("expected 2 status events, got %d", n)
	}
}

func TestProjectProposalValidationAndGate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ProposeProject(env.Ctx, env.Manager, "T", "D")
	expectForbidden(t, err)
	_, err = env.Engine.ProposeProject(env.Ctx, env.Dev, "T", "D")
	expectForbidden(t, err)
	_, err = env.Engine.ProposeProject(env.Ctx, env.Client, "   ", "D")
	expectValidation(t, err, "title")
	_, err = env.Engine.ProposeProject(env.Ctx, env.Client, "T", "")
	expectValidation(t, err, "description")
	_, err = env.Engine.AcceptProject(env.Ctx, env.Manager, "missing")
	expectNotFound(t, err)
	_, err = env.Engine.AcceptProject(env.Ctx, env.Client, "missing")
	expectForbidden(t, err)
	if n := env.eventCount(t, "project.proposed"); n != 0 {
		t.Fatalf("denied operations must not write events, got %d", n)
	}
}

func TestInitialStatusActive(t *testing.T) {
	cfg := config.Default()
	cfg.Projects.InitialStatus = "active"
	env := newTestEnvWithConfig(t, cfg)
	p, err := env.Engine.ProposeProject(env.Ctx, env.Client, "T", "D")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if p.Status != domain.ProjectActive || p.ManagerID != nil {
		t.Fatalf("expected active unmanaged project, got %+v", p)
	}
	p, err = env.Engine.AcceptProject(env.Ctx, env.Manager, p.ID)
	if err != nil || p.ManagerID == nil {
		t.Fatalf("accept active project: %v", err)
	}
}

func TestSubmitTaskApprovalRules(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)

	staffed := env.boardTask(t, p.ID, 0, " Narrator ", "", "Narrator", "Scribe")
	if !staffed.Approved || staffed.Status != domain.TaskToDo || domain.AssigneeOf(staffed) != env.Dev.ID {
		t.Fatalf("manager task with assignee should be on the board: %+v", staffed)
	}
	if staffed.XP != 50 {
		t.Fatalf("xp 0 should default to 50, got %d", staffed.XP)
	}
	if len(staffed.Badges) != 2 || staffed.Badges[0] != "Narrator" || staffed.Badges[1] != "Scribe" {
		t.Fatalf("badges not normalized: %v", staffed.Badges)
	}

	unstaffed, err := env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D", XP: 90})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if unstaffed.Approved {
		t.Fatalf("manager task without assignee must wait for approval")
	}

	hinted, err := env.Engine.SubmitTask(env.Ctx, env.Client, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D", AssigneeEmail: "DEV@devquest.io"})
	if err != nil {
		t.Fatalf("client submit: %v", err)
	}
	if hinted.Approved || domain.AssigneeOf(hinted) != env.Dev.ID {
		t.Fatalf("client hint should bind without approving: %+v", hinted)
	}

	_, err = env.Engine.SubmitTask(env.Ctx, env.Dev, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D"})
	expectForbidden(t, err)
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Description: "D"})
	expectValidation(t, err, "title")
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T"})
	expectValidation(t, err, "description")
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{Title: "T", Description: "D"})
	expectValidation(t, err, "project")
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D", XP: -5})
	expectValidation(t, err, "xp")
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: "missing", Title: "T", Description: "D"})
	expectNotFound(t, err)
	_, err = env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D", AssigneeEmail: "ghost@devquest.io"})
	expectNotFound(t, err)

	board, err := env.Engine.Tasks(env.Ctx, engine.TaskFilter{ProjectID: p.ID})
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(board) != 1 || board[0].ID != staffed.ID {
		t.Fatalf("board should list only approved tasks, got %d", len(board))
	}
	if board[0].Assignee == nil || board[0].Assignee.Email != env.Dev.Email || board[0].ProjectTitle != p.Title {
		t.Fatalf("board task not populated: %+v", board[0])
	}

	pending, err := env.Engine.PendingTasks(env.Ctx, env.Manager)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != unstaffed.ID {
		t.Fatalf("pending should list unapproved tasks oldest first: %+v", pending)
	}
	_, err = env.Engine.PendingTasks(env.Ctx, env.Dev)
	expectForbidden(t, err)

	mine, err := env.Engine.SubmittedTasks(env.Ctx, env.Client)
	if err != nil {
		t.Fatalf("submitted: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != hinted.ID {
		t.Fatalf("unexpected submitted tasks %+v", mine)
	}
	_, err = env.Engine.SubmittedTasks(env.Ctx, domain.Actor{Role: domain.RoleClient})
	expectForbidden(t, err)
}

func TestEventLogIsManagerOnly(t *testing.T) {
	env := newTestEnv(t)
	env.project(t)
	for _, a := range []domain.Actor{env.Client, env.Dev, {}} {
		_, err := env.Engine.Events(env.Ctx, a, engine.EventQuery{Limit: 10})
		expectForbidden(t, err)
	}
	evts, err := env.Engine.Events(env.Ctx, env.Manager, engine.EventQuery{Type: "actor.registered", Limit: 10})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 4 {
		t.Fatalf("expected four registrations, got %d", len(evts))
	}
}

func TestApproveAndAssign(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task, err := env.Engine.SubmitTask(env.Ctx, env.Client, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D", XP: 60})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = env.Engine.ApproveTask(env.Ctx, env.Client, task.ID, "")
	expectForbidden(t, err)
	_, err = env.Engine.ApproveTask(env.Ctx, env.Manager, "missing", "")
	expectNotFound(t, err)
	_, err = env.Engine.ApproveTask(env.Ctx, env.Manager, task.ID, "ghost@devquest.io")
	expectNotFound(t, err)

	task, err = env.Engine.ApproveTask(env.Ctx, env.Manager, task.ID, env.Dev.Email)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !task.Approved || task.Status != domain.TaskToDo || domain.AssigneeOf(task) != env.Dev.ID {
		t.Fatalf("unexpected approved task %+v", task)
	}
	task, err = env.Engine.ApproveTask(env.Ctx, env.Manager, task.ID, "")
	if err != nil || !task.Approved || domain.AssigneeOf(task) != env.Dev.ID {
		t.Fatalf("re-approve should be idempotent: %v %+v", err, task)
	}

	_, err = env.Engine.AssignTask(env.Ctx, env.Manager, task.ID, " ")
	expectValidation(t, err, "assignee_email")
	_, err = env.Engine.AssignTask(env.Ctx, env.Dev, task.ID, env.Other.Email)
	expectForbidden(t, err)
	_, err = env.Engine.AssignTask(env.Ctx, env.Manager, "missing", env.Other.Email)
	expectNotFound(t, err)
	_, err = env.Engine.AssignTask(env.Ctx, env.Manager, task.ID, "ghost@devquest.io")
	expectNotFound(t, err)

	task, err = env.Engine.AssignTask(env.Ctx, env.Manager, task.ID, env.Other.Email)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if domain.AssigneeOf(task) != env.Other.ID || task.Status != domain.TaskToDo || !task.Approved {
		t.Fatalf("assign should only rebind: %+v", task)
	}
	if got := env.xp(t, env.Dev.ID).XP; got != 150 {
		t.Fatalf("approval must not pay rewards, xp=%d", got)
	}
}

func TestAdvanceStatusGatingAndReward(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.boardTask(t, p.ID, 90, "Systems Thinker")

	_, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Other, task.ID, "in_progress")
	expectForbidden(t, err)
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Client, task.ID, "in_progress")
	expectForbidden(t, err)
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, task.ID, "blocked")
	expectValidation(t, err, "status")
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, "missing", "review")
	expectNotFound(t, err)

	for _, status := range []string{"in_progress", "Review"} {
		task, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, task.ID, status)
		if err != nil {
			t.Fatalf("advance to %s: %v", status, err)
		}
	}
	if got := env.xp(t, env.Dev.ID).XP; got != 150 {
		t.Fatalf("no reward before done, xp=%d", got)
	}

	task, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, task.ID, "done")
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	if task.CompletedAt == nil {
		t.Fatalf("completed_at should be set")
	}
	dev := env.xp(t, env.Dev.ID)
	if dev.XP != 240 || len(dev.Badges) != 1 || dev.Badges[0] != "Systems Thinker" {
		t.Fatalf("unexpected reward state %+v", dev)
	}

	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, task.ID, "done"); err != nil {
		t.Fatalf("done again: %v", err)
	}
	if got := env.xp(t, env.Dev.ID).XP; got != 240 {
		t.Fatalf("done -> done must not re-award, xp=%d", got)
	}
	if n := env.eventCount(t, "reward.awarded"); n != 1 {
		t.Fatalf("expected 1 reward event, got %d", n)
	}

	task, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, task.ID, "review")
	if err != nil || task.CompletedAt != nil {
		t.Fatalf("leave done: %v %+v", err, task)
	}
	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, task.ID, "done"); err != nil {
		t.Fatalf("return to done: %v", err)
	}
	dev = env.xp(t, env.Dev.ID)
	if dev.XP != 330 || len(dev.Badges) != 1 {
		t.Fatalf("re-entering done re-awards xp but badges stay a set: %+v", dev)
	}
}

func TestAdvanceRequiresApprovalAndAssignee(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	pending, err := env.Engine.SubmitTask(env.Ctx, env.Manager, engine.SubmitTaskOptions{ProjectID: p.ID, Title: "T", Description: "D"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, pending.ID, "in_progress")
	expectConflict(t, err)
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, pending.ID, "done")
	expectConflict(t, err)

	approved, err := env.Engine.ApproveTask(env.Ctx, env.Manager, pending.ID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, approved.ID, "review")
	expectConflict(t, err)
	if n := env.eventCount(t, "task.status.updated"); n != 0 {
		t.Fatalf("rejected transitions must not write events, got %d", n)
	}
}

func TestApproveResetsDoneTask(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.boardTask(t, p.ID, 50)
	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Manager, task.ID, "done"); err != nil {
		t.Fatalf("done: %v", err)
	}
	task, err := env.Engine.ApproveTask(env.Ctx, env.Manager, task.ID, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if task.Status != domain.TaskToDo || task.CompletedAt != nil {
		t.Fatalf("approve should reset to todo: %+v", task)
	}
	if got := env.xp(t, env.Dev.ID).XP; got != 200 {
		t.Fatalf("approval must not change xp, got %d", got)
	}
}

func TestConcurrentDoneAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	task := env.boardTask(t, p.ID, 70, "Guardian")
	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, task.ID, "review"); err != nil {
		t.Fatalf("review: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := env.Manager
			if i%2 == 0 {
				actor = env.Dev
			}
			_, err := env.Engine.AdvanceTaskStatus(env.Ctx, actor, task.ID, "done")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		var c engine.ConflictError
		if err != nil && !errors.As(err, &c) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := env.xp(t, env.Dev.ID).XP; got != 220 {
		t.Fatalf("expected exactly one award (220 xp), got %d", got)
	}
	if n := env.eventCount(t, "reward.awarded"); n != 1 {
		t.Fatalf("expected one reward event, got %d", n)
	}
}

func TestConcurrentAwardsFromDifferentTasksSum(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	var tasks []domain.Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, env.boardTask(t, p.ID, 10*(i+1), "Guardian"))
	}
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, id, "done"); err != nil {
				t.Errorf("done %s: %v", id, err)
			}
		}(task.ID)
	}
	wg.Wait()
	dev := env.xp(t, env.Dev.ID)
	if dev.XP != 150+10+20+30+40+50 {
		t.Fatalf("awards should sum, got %d", dev.XP)
	}
	if len(dev.Badges) != 1 {
		t.Fatalf("badge set should hold one entry, got %v", dev.Badges)
	}
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	p := env.project(t)
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, env.boardTask(t, p.ID, 100).ID)
	}
	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, ids[0], "done"); err != nil {
		t.Fatalf("done: %v", err)
	}
	if _, err := env.Engine.AdvanceTaskStatus(env.Ctx, env.Dev, ids[1], "in_progress"); err != nil {
		t.Fatalf("in progress: %v", err)
	}
	empty, err := env.Engine.ProposeProject(env.Ctx, env.Client, "Gear Shop", "Shop")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}

	overview, err := env.Engine.ProjectsWithMetrics(env.Ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if len(overview) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(overview))
	}
	byID := map[string]domain.ProjectOverview{}
	for _, ov := range overview {
		byID[ov.ID] = ov
	}
	m := byID[p.ID]
	if m.Metrics.Total != 3 || m.Metrics.Done != 1 || m.Metrics.InProgress != 1 || m.Metrics.ToDo != 1 || m.Progress != 33 {
		t.Fatalf("unexpected metrics %+v progress %d", m.Metrics, m.Progress)
	}
	if m.Client == nil || m.Client.ID != env.Client.ID || m.Manager == nil || m.Manager.ID != env.Manager.ID {
		t.Fatalf("client/manager not populated: %+v", m)
	}
	if e := byID[empty.ID]; e.Progress != 0 || e.Manager != nil {
		t.Fatalf("empty project should report 0 progress and no manager: %+v", e)
	}

	board, err := env.Engine.Leaderboard(env.Ctx, 0)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 4 || board[0].Actor.ID != env.Dev.ID || board[0].Level != 3 || board[1].Actor.ID != env.Other.ID {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
	if board[2].Actor.ID != env.Client.ID || board[3].Actor.ID != env.Manager.ID {
		t.Fatalf("ties should keep registration order: %+v", board)
	}
	top, err := env.Engine.Leaderboard(env.Ctx, 1)
	if err != nil || len(top) != 1 || top[0].Rank != 1 {
		t.Fatalf("limited leaderboard: %v %+v", err, top)
	}

	contributors, err := env.Engine.Contributors(env.Ctx)
	if err != nil || len(contributors) != 2 || contributors[0].ID != env.Dev.ID {
		t.Fatalf("contributors: %v %+v", err, contributors)
	}

	profile, err := env.Engine.Profile(env.Ctx, env.Dev.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Actor.XP != 250 || profile.Level != 3 || profile.LevelXP != 50 || profile.XPToNext != 50 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.TasksDone != 1 || profile.TasksActive != 2 {
		t.Fatalf("unexpected task counts %+v", profile)
	}
	_, err = env.Engine.Profile(env.Ctx, "missing")
	expectNotFound(t, err)

	_, err = env.Engine.Tasks(env.Ctx, engine.TaskFilter{Status: "sideways"})
	expectValidation(t, err, "status")
	inProgress, err := env.Engine.Tasks(env.Ctx, engine.TaskFilter{Status: "in progress"})
	if err != nil || len(inProgress) != 1 || inProgress[0].ID != ids[1] {
		t.Fatalf("status filter: %v %+v", err, inProgress)
	}
}

func TestStorageErrorsAreTyped(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.DB.Close()
	_, err := env.Engine.Leaderboard(env.Ctx, 5)
	var se engine.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	_, err = env.Engine.ProposeProject(env.Ctx, env.Client, "T", "D")
	if !errors.As(err, &se) {
		t.Fatalf("expected StorageError on write, got %v", err)
	}
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, env.Manager.ID, "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if key.KeyHash != repo.HashAPIKey(raw) || key.KeyHash == raw {
		t.Fatalf("only the hash should be stored")
	}
	a, err := env.Engine.ActorByAPIKey(env.Ctx, raw)
	if err != nil || a.ID != env.Manager.ID {
		t.Fatalf("resolve key: %v %+v", err, a)
	}
	_, err = env.Engine.ActorByAPIKey(env.Ctx, "dq_bogus")
	expectNotFound(t, err)
	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "missing", "x")
	expectNotFound(t, err)

	keys, err := env.Engine.APIKeys(env.Ctx, env.Manager)
	if err != nil || len(keys) != 1 || keys[0].Name != "ci" {
		t.Fatalf("list keys: %v %+v", err, keys)
	}
	expectNotFound(t, env.Engine.RevokeAPIKey(env.Ctx, env.Dev, key.ID))
	if err := env.Engine.RevokeAPIKey(env.Ctx, env.Manager, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = env.Engine.ActorByAPIKey(env.Ctx, raw)
	expectNotFound(t, err)
}

func TestNormalizeBadges(t *testing.T) {
	got := engine.NormalizeBadges([]string{" a", "b", "", "a ", "  "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected badges %v", got)
	}
	if got := engine.NormalizeBadges(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil input should give empty set")
	}
}
