package domain

import "testing"

func TestEnumListsParseToThemselves(t *testing.T) {
	for _, r := range Roles {
		if got, err := ParseRole(string(r)); err != nil || got != r {
			t.Fatalf("role %s: got %q, %v", r, got, err)
		}
	}
	for _, s := range TaskStatuses {
		if got, err := ParseTaskStatus(string(s)); err != nil || got != s {
			t.Fatalf("task status %s: got %q, %v", s, got, err)
		}
	}
	for _, s := range ProjectStatuses {
		if got, err := ParseProjectStatus(string(s)); err != nil || got != s {
			t.Fatalf("project status %s: got %q, %v", s, got, err)
		}
	}
}

func TestParseAcceptsDisplayNames(t *testing.T) {
	if r, err := ParseRole("Guild Master"); err != nil || r != RoleManager {
		t.Fatalf("guild master: got %q, %v", r, err)
	}
	if s, err := ParseProjectStatus("Active Sprint"); err != nil || s != ProjectActive {
		t.Fatalf("active sprint: got %q, %v", s, err)
	}
	if _, err := ParseTaskStatus("shipped"); err == nil {
		t.Fatalf("expected unknown task status to fail")
	}
}

func TestNewProfileLevels(t *testing.T) {
	p := NewProfile(Actor{ID: "a", XP: 250})
	if p.Actor.ID != "a" || p.Level != 3 || p.LevelXP != 50 || p.XPToNext != 50 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if LevelFor(-5) != 1 {
		t.Fatalf("negative xp should be level 1")
	}
}
