package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types written to the log.
const (
	ProjectProposed      = "project.proposed"
	ProjectAccepted      = "project.accepted"
	ProjectStatusUpdated = "project.status.updated"
	TaskSubmitted        = "task.submitted"
	TaskApproved         = "task.approved"
	TaskAssigned         = "task.assigned"
	TaskStatusUpdated    = "task.status.updated"
	RewardAwarded        = "reward.awarded"
	ActorRegistered      = "actor.registered"
)

// Types lists every event type in emission order of a typical quest.
var Types = []string{
	ActorRegistered, ProjectProposed, ProjectAccepted, ProjectStatusUpdated,
	TaskSubmitted, TaskApproved, TaskAssigned, TaskStatusUpdated, RewardAwarded,
}

// Tx is satisfied by *sql.Tx.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
