package main

import (
	"strings"
	"testing"

	"devquest/internal/domain"
)

func TestHelpListsEnumValues(t *testing.T) {
	if got := choices(domain.TaskStatuses); got != "todo, in_progress, review, done" {
		t.Fatalf("unexpected task status choices %q", got)
	}
	if got := choices(domain.Roles); got != "client, manager, contributor" {
		t.Fatalf("unexpected role choices %q", got)
	}
	if short := taskMoveCmd().Short; !strings.Contains(short, "in_progress") {
		t.Fatalf("task move help should list statuses: %q", short)
	}
	if usage := userRegisterCmd().Flags().Lookup("role").Usage; !strings.Contains(usage, "contributor") {
		t.Fatalf("role flag help should list roles: %q", usage)
	}
}
