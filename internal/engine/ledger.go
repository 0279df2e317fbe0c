package engine

import (
	"context"
	"database/sql"
	"strconv"

	"devquest/internal/domain"
	"devquest/internal/events"
)

// award credits the assignee of a task that just entered done. The XP add is
// a single in-place UPDATE and badges are set-unioned, so concurrent awards
// from different tasks compose. transitionID is the status event that
// triggered the award and keys the reward.awarded record.
func (e Engine) award(ctx context.Context, tx *sql.Tx, t domain.Task, actorID string, transitionID int64) error {
	const op = "reward.award"
	recipient := domain.AssigneeOf(t)
	if recipient == "" {
		e.Log().Warn("reward skipped", "op", op, "task_id", t.ID, "reason", "no assignee")
		return nil
	}
	if err := e.Repo.AddXP(ctx, tx, recipient, t.XP); err != nil {
		return lookup(op, "actor", recipient, err)
	}
	now := e.Timestamp()
	for _, b := range t.Badges {
		if err := e.Repo.AddBadge(ctx, tx, recipient, b, now); err != nil {
			return storage(op, err)
		}
	}
	_, err := e.emit(ctx, tx, events.RewardAwarded, t.ProjectID, "actor", recipient, actorID, events.EventPayload{
		"task_id":       t.ID,
		"transition_id": strconv.FormatInt(transitionID, 10),
		"xp":            t.XP,
		"badges":        t.Badges,
	})
	return err
}
