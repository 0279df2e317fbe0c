package auth

import (
	"errors"
	"testing"

	"devquest/internal/domain"
)

func TestIsPermittedTable(t *testing.T) {
	client := domain.Actor{ID: "c", Role: domain.RoleClient}
	manager := domain.Actor{ID: "m", Role: domain.RoleManager}
	dev := domain.Actor{ID: "d", Role: domain.RoleContributor}
	other := domain.Actor{ID: "o", Role: domain.RoleContributor}
	anon := domain.Actor{Role: domain.RoleManager}

	cases := []struct {
		name   string
		actor  domain.Actor
		op     Operation
		target Target
		want   bool
	}{
		{"client proposes", client, OpProjectPropose, Target{}, true},
		{"manager cannot propose", manager, OpProjectPropose, Target{}, false},
		{"contributor cannot propose", dev, OpProjectPropose, Target{}, false},
		{"manager accepts", manager, OpProjectAccept, Target{}, true},
		{"client cannot accept", client, OpProjectAccept, Target{}, false},
		{"owning manager updates status", manager, OpProjectStatusUpdate, Target{ManagerID: "m"}, true},
		{"other manager cannot update status", manager, OpProjectStatusUpdate, Target{ManagerID: "x"}, false},
		{"unmanaged project status denied", manager, OpProjectStatusUpdate, Target{}, false},
		{"client submits", client, OpTaskSubmit, Target{}, true},
		{"manager submits", manager, OpTaskSubmit, Target{}, true},
		{"contributor cannot submit", dev, OpTaskSubmit, Target{}, false},
		{"manager approves", manager, OpTaskApprove, Target{}, true},
		{"client cannot approve", client, OpTaskApprove, Target{}, false},
		{"manager assigns", manager, OpTaskAssign, Target{}, true},
		{"contributor cannot assign", dev, OpTaskAssign, Target{}, false},
		{"manager advances any task", manager, OpTaskAdvance, Target{AssigneeID: "d"}, true},
		{"assignee advances", dev, OpTaskAdvance, Target{AssigneeID: "d"}, true},
		{"non-assignee cannot advance", other, OpTaskAdvance, Target{AssigneeID: "d"}, false},
		{"contributor cannot advance unassigned", dev, OpTaskAdvance, Target{}, false},
		{"client cannot advance", client, OpTaskAdvance, Target{AssigneeID: "c"}, false},
		{"manager lists pending", manager, OpTaskPendingList, Target{}, true},
		{"contributor cannot list pending", dev, OpTaskPendingList, Target{}, false},
		{"client lists own submissions", client, OpTaskSubmittedList, Target{}, true},
		{"manager lists own submissions", manager, OpTaskSubmittedList, Target{}, true},
		{"contributor lists own submissions", dev, OpTaskSubmittedList, Target{}, true},
		{"anonymous cannot list submissions", domain.Actor{}, OpTaskSubmittedList, Target{}, false},
		{"manager reads events", manager, OpEventList, Target{}, true},
		{"client cannot read events", client, OpEventList, Target{}, false},
		{"contributor cannot read events", dev, OpEventList, Target{}, false},
		{"anonymous denied", anon, OpProjectAccept, Target{}, false},
		{"unknown operation denied", manager, Operation("task.delete"), Target{}, false},
	}
	for _, tc := range cases {
		if got := IsPermitted(tc.actor, tc.op, tc.target); got != tc.want {
			t.Fatalf("%s: IsPermitted=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckReturnsForbiddenError(t *testing.T) {
	err := Check(domain.Actor{ID: "d", Role: domain.RoleContributor}, OpTaskApprove, Target{})
	var forbidden ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if forbidden.Operation != OpTaskApprove || forbidden.Role != domain.RoleContributor {
		t.Fatalf("unexpected error fields %+v", forbidden)
	}
	if err := Check(domain.Actor{ID: "m", Role: domain.RoleManager}, OpTaskApprove, Target{}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected short password rejection")
	}
	hash, err := HashPassword("guildmaster")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "guildmaster"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckPassword(hash, "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty hash, got %v", err)
	}
}
