package migrate

import (
	"testing"

	"devquest/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	all, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, err := Version(conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != all[len(all)-1].Version {
		t.Fatalf("expected version %d, got %d", all[len(all)-1].Version, v)
	}
	for _, table := range []string{"actors", "actor_badges", "api_keys", "projects", "tasks", "events"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestPendingSkipsApplied(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := pending(all, 2)
	if len(got) != 1 || got[0].Version != 3 {
		t.Fatalf("unexpected pending set %+v", got)
	}
}
