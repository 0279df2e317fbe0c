package app

import (
	"context"
	"fmt"
	"log/slog"

	"devquest/internal/config"
	"devquest/internal/db"
	"devquest/internal/engine"
	"devquest/internal/migrate"
)

// Open opens the workspace database, applies migrations and loads
// devquest.yml (defaults when absent). Callers close Engine.DB.
func Open(ctx context.Context, workspace string, logger *slog.Logger) (engine.Engine, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return engine.Engine{}, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, fmt.Errorf("open db: %w", err)
	}
	if err := ctx.Err(); err != nil {
		conn.Close()
		return engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if logger != nil {
		eng.Logger = logger
	}
	return eng, nil
}
