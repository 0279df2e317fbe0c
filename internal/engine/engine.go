package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"devquest/internal/config"
	"devquest/internal/domain"
	"devquest/internal/events"
	"devquest/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	EventLog events.Writer
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		EventLog: events.Writer{},
		Config:   cfg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Timestamp is the engine clock formatted for storage.
func (e Engine) Timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Log returns the engine logger, or slog.Default when none is set.
func (e Engine) Log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

// bounded applies the configured storage timeout to ctx.
func (e Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config().Storage.Timeout)
}

// begin opens the write transaction for op.
func (e Engine) begin(ctx context.Context, op string) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storage(op, err)
	}
	return tx, nil
}

func (e Engine) emit(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) (int64, error) {
	w := e.EventLog
	if w.Now == nil {
		w.Now = e.now
	}
	id, err := w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload)
	if err != nil {
		return 0, storage("append "+evtType, err)
	}
	return id, nil
}

func commit(op string, tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return storage(op, err)
	}
	return nil
}

// Actor loads an actor by id.
func (e Engine) Actor(ctx context.Context, id string) (domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	a, err := e.Repo.GetActor(ctx, nil, id)
	if err != nil {
		return domain.Actor{}, lookup("actor.get", "actor", id, err)
	}
	return a, nil
}

// ActorByEmail loads an actor by email, case-insensitively.
func (e Engine) ActorByEmail(ctx context.Context, email string) (domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	a, err := e.Repo.GetActorByEmail(ctx, nil, email)
	if err != nil {
		return domain.Actor{}, lookup("actor.get", "actor", email, err)
	}
	return a, nil
}
