package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"devquest/internal/domain"
	"devquest/internal/engine/auth"
	"devquest/internal/events"
	"devquest/internal/repo"
)

type RegisterOptions struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// RegisterActor creates an account. Contributors start with the configured
// seed XP, everyone else with zero.
func (e Engine) RegisterActor(ctx context.Context, opts RegisterOptions) (domain.Actor, error) {
	const op = "actor.register"
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	name := strings.TrimSpace(opts.Name)
	email := domain.NormalizeEmail(opts.Email)
	if name == "" {
		return domain.Actor{}, ValidationError{Op: op, Field: "name", Reason: "required"}
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.Actor{}, ValidationError{Op: op, Field: "email", Reason: "must be a valid email address"}
	}
	if len(opts.Password) < auth.MinPasswordLength {
		return domain.Actor{}, ValidationError{Op: op, Field: "password", Reason: "must be at least 6 characters"}
	}
	role, err := domain.ParseRole(opts.Role)
	if err != nil {
		return domain.Actor{}, ValidationError{Op: op, Field: "role", Reason: err.Error()}
	}
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return domain.Actor{}, storage(op, err)
	}
	a := domain.Actor{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		Badges:    []string{},
		CreatedAt: e.Timestamp(),
	}
	if role == domain.RoleContributor {
		a.XP = e.config().Rewards.ContributorSeedXP
	}

	tx, err := e.begin(ctx, op)
	if err != nil {
		return domain.Actor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActor(ctx, tx, a, hash); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return domain.Actor{}, ConflictError{Entity: "actor", ID: email, Reason: "email already registered"}
		}
		return domain.Actor{}, storage(op, err)
	}
	if _, err := e.emit(ctx, tx, events.ActorRegistered, "", "actor", a.ID, a.ID, events.EventPayload{"email": a.Email, "role": a.Role, "xp": a.XP}); err != nil {
		return domain.Actor{}, err
	}
	if err := commit(op, tx); err != nil {
		return domain.Actor{}, err
	}
	e.Log().Info("actor registered", "op", op, "actor_id", a.ID, "role", a.Role)
	return a, nil
}

// Authenticate checks an email/password pair.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	id, hash, err := e.Repo.PasswordHash(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return domain.Actor{}, storage("actor.authenticate", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return domain.Actor{}, err
	}
	a, err := e.Repo.GetActor(ctx, nil, id)
	if err != nil {
		return domain.Actor{}, lookup("actor.authenticate", "actor", id, err)
	}
	return a, nil
}

// CreateAPIKey mints a key for actorID. The raw key is returned once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	const op = "apikey.create"
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if _, err := e.Repo.GetActor(ctx, nil, actorID); err != nil {
		return domain.APIKey{}, "", lookup(op, "actor", actorID, err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", storage(op, err)
	}
	raw := "dq_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.Timestamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", storage(op, err)
	}
	return key, raw, nil
}

// ActorByAPIKey resolves the owner of a raw API key.
func (e Engine) ActorByAPIKey(ctx context.Context, raw string) (domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	key, err := e.Repo.GetAPIKeyByHash(ctx, nil, repo.HashAPIKey(raw))
	if err != nil {
		return domain.Actor{}, lookup("apikey.resolve", "api key", "", err)
	}
	a, err := e.Repo.GetActor(ctx, nil, key.ActorID)
	if err != nil {
		return domain.Actor{}, lookup("apikey.resolve", "actor", key.ActorID, err)
	}
	return a, nil
}

// ListActors returns actors in registration order, optionally for one role.
func (e Engine) ListActors(ctx context.Context, role string) ([]domain.Actor, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	f := repo.ActorFilters{}
	if role != "" {
		r, err := domain.ParseRole(role)
		if err != nil {
			return nil, ValidationError{Op: "actor.list", Field: "role", Reason: err.Error()}
		}
		f.Role = string(r)
	}
	actors, err := e.Repo.ListActors(ctx, f)
	return actors, storage("actor.list", err)
}

// APIKeys lists the keys owned by actor, newest first.
func (e Engine) APIKeys(ctx context.Context, actor domain.Actor) ([]domain.APIKey, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	keys, err := e.Repo.ListAPIKeys(ctx, nil, actor.ID)
	if err != nil {
		return nil, storage("apikey.list", err)
	}
	return keys, nil
}

// RevokeAPIKey deletes one of actor's keys. Keys owned by others are
// reported as not found.
func (e Engine) RevokeAPIKey(ctx context.Context, actor domain.Actor, keyID string) error {
	const op = "apikey.revoke"
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.Repo.DeleteAPIKey(ctx, nil, actor.ID, keyID); err != nil {
		return lookup(op, "api key", keyID, err)
	}
	e.Log().Info("api key revoked", "op", op, "key_id", keyID, "actor_id", actor.ID)
	return nil
}
