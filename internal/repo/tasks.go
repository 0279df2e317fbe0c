package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"devquest/internal/domain"
)

const taskColumns = `id,project_id,title,description,status,xp,badges_json,assignee_id,submitter_id,approved,created_at,updated_at,completed_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var badges string
	var assignee, completedAt sql.NullString
	var approved int
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.XP, &badges, &assignee, &t.SubmitterID,
		&approved, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(badges), &t.Badges); err != nil {
		return t, fmt.Errorf("decode badges for task %s: %w", t.ID, err)
	}
	if t.Badges == nil {
		t.Badges = []string{}
	}
	t.AssigneeID = ptrFromNull(assignee)
	t.CompletedAt = ptrFromNull(completedAt)
	t.Approved = approved != 0
	return t, nil
}

func encodeBadges(badges []string) (string, error) {
	if badges == nil {
		badges = []string{}
	}
	data, err := json.Marshal(badges)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	badges, err := encodeBadges(t.Badges)
	if err != nil {
		return err
	}
	_, err = r.conn(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.XP, badges, nullableStringPtr(t.AssigneeID), t.SubmitterID,
		boolInt(t.Approved), t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.conn(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

// UpdateTask writes the mutable fields of t, guarded by the status the caller
// read. It reports false when the stored status no longer matches.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task, expected domain.TaskStatus) (bool, error) {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tasks SET status=?, assignee_id=?, approved=?, updated_at=?, completed_at=? WHERE id=? AND status=?`,
		t.Status, nullableStringPtr(t.AssigneeID), boolInt(t.Approved), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// TaskFilters narrows ListTasks. Results are newest first unless OldestFirst.
type TaskFilters struct {
	ProjectID   string
	Status      string
	AssigneeID  string
	SubmitterID string
	Approved    *bool
	OldestFirst bool
	Limit       int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.SubmitterID != "" {
		clauses = append(clauses, "submitter_id=?")
		args = append(args, f.SubmitterID)
	}
	if f.Approved != nil {
		clauses = append(clauses, "approved=?")
		args = append(args, boolInt(*f.Approved))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := ` ORDER BY created_at DESC, rowid DESC`
	if f.OldestFirst {
		order = ` ORDER BY created_at ASC, rowid ASC`
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountAssigneeTasks returns done and not-done task counts for an assignee.
func (r Repo) CountAssigneeTasks(ctx context.Context, actorID string) (done, active int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT
  COALESCE(SUM(CASE WHEN status='done' THEN 1 ELSE 0 END),0),
  COALESCE(SUM(CASE WHEN status!='done' AND approved=1 THEN 1 ELSE 0 END),0)
FROM tasks WHERE assignee_id=?`, actorID).Scan(&done, &active)
	return done, active, err
}
