package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Rewards.DefaultTaskXP != 50 || cfg.Rewards.ContributorSeedXP != 150 {
		t.Fatalf("unexpected reward defaults %+v", cfg.Rewards)
	}
	if cfg.Leaderboard.DefaultLimit != 5 {
		t.Fatalf("unexpected leaderboard limit %d", cfg.Leaderboard.DefaultLimit)
	}
	if cfg.Storage.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Storage.Timeout)
	}
}

func TestFromYAMLOverridesAndKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("projects:\n  initial_status: active\nwebhooks:\n  - url: http://localhost/x\n    events: [reward.awarded]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Projects.InitialStatus != "active" {
		t.Fatalf("expected active, got %s", cfg.Projects.InitialStatus)
	}
	if cfg.Rewards.DefaultTaskXP != 50 {
		t.Fatalf("default xp lost: %d", cfg.Rewards.DefaultTaskXP)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "reward.awarded" {
		t.Fatalf("unexpected webhooks %+v", cfg.Webhooks)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"initial status": "projects:\n  initial_status: launched\n",
		"default xp":     "rewards:\n  default_task_xp: 0\n",
		"seed xp":        "rewards:\n  contributor_seed_xp: -1\n",
		"limit":          "leaderboard:\n  default_limit: 0\n",
		"webhook url":    "webhooks:\n  - url: \"\"\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Projects.InitialStatus != "proposed" {
		t.Fatalf("expected defaults, got %+v", cfg.Projects)
	}
	if _, err := Load(dir); !errors.Is(err, os.ErrNotExist) || !strings.Contains(err.Error(), "devquest init") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("load generated default: %v", err)
	}
}
