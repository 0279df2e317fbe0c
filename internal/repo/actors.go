package repo

import (
	"context"
	"database/sql"
	"strings"

	"devquest/internal/domain"
)

const actorColumns = `id,name,email,role,xp,created_at`

func scanActor(row rowScanner) (domain.Actor, error) {
	var a domain.Actor
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role, &a.XP, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

// InsertActor stores an actor with an optional password hash. A taken email
// yields ErrDuplicate.
func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor, passwordHash string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO actors(id,name,email,role,xp,password_hash,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.Name, domain.NormalizeEmail(a.Email), a.Role, a.XP, nullable(passwordHash), a.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	for _, b := range a.Badges {
		if err := r.AddBadge(ctx, tx, a.ID, b, a.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	q := r.conn(tx)
	a, err := scanActor(q.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id))
	if err != nil {
		return a, err
	}
	a.Badges, err = r.badges(ctx, q, a.ID)
	return a, err
}

// GetActorByEmail matches case-insensitively.
func (r Repo) GetActorByEmail(ctx context.Context, tx *sql.Tx, email string) (domain.Actor, error) {
	q := r.conn(tx)
	a, err := scanActor(q.QueryRowContext(ctx, `SELECT `+actorColumns+` FROM actors WHERE email=?`, domain.NormalizeEmail(email)))
	if err != nil {
		return a, err
	}
	a.Badges, err = r.badges(ctx, q, a.ID)
	return a, err
}

// PasswordHash returns the stored hash for an email, "" when none was set.
func (r Repo) PasswordHash(ctx context.Context, email string) (string, string, error) {
	var id string
	var hash sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM actors WHERE email=?`, domain.NormalizeEmail(email)).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	return id, hash.String, err
}

// ActorFilters narrows ListActors. ByXP orders by xp descending with
// insertion order breaking ties.
type ActorFilters struct {
	Role  string
	ByXP  bool
	Limit int
}

func (r Repo) ListActors(ctx context.Context, f ActorFilters) ([]domain.Actor, error) {
	var clauses []string
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := ` ORDER BY rowid ASC`
	if f.ByXP {
		order = ` ORDER BY xp DESC, rowid ASC`
	}
	query := `SELECT ` + actorColumns + ` FROM actors ` + where + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Close before the badge queries; the pool has one connection.
	rows.Close()
	for i := range res {
		if res[i].Badges, err = r.badges(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) CountActors(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := r.conn(tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM actors`).Scan(&n)
	return n, err
}

// AddXP increments xp in place. ErrNotFound when the actor row is gone.
func (r Repo) AddXP(ctx context.Context, tx *sql.Tx, actorID string, delta int) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE actors SET xp = xp + ? WHERE id=?`, delta, actorID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddBadge unions a badge into the actor's set.
func (r Repo) AddBadge(ctx context.Context, tx *sql.Tx, actorID, badge, ts string) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actor_badges(actor_id,badge,created_at) VALUES (?,?,?)`, actorID, badge, ts)
	return err
}

func (r Repo) badges(ctx context.Context, q DBTX, actorID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT badge FROM actor_badges WHERE actor_id=? ORDER BY created_at ASC, rowid ASC`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}
