package auth

import (
	"fmt"

	"devquest/internal/domain"
)

// Operation names a gated workflow transition or privileged read.
type Operation string

const (
	OpProjectPropose      Operation = "project.propose"
	OpProjectAccept       Operation = "project.accept"
	OpProjectStatusUpdate Operation = "project.status.update"
	OpTaskSubmit          Operation = "task.submit"
	OpTaskApprove         Operation = "task.approve"
	OpTaskAssign          Operation = "task.assign"
	OpTaskAdvance         Operation = "task.advance"
	OpTaskPendingList     Operation = "task.pending.list"
	OpTaskSubmittedList   Operation = "task.submitted.list"
	OpEventList           Operation = "event.list"
)

// ForbiddenError indicates the actor's role may not perform the operation.
type ForbiddenError struct {
	Operation Operation
	Role      domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("operation %s requires an authenticated actor", e.Operation)
	}
	return fmt.Sprintf("role %s may not perform %s", e.Role, e.Operation)
}

// Target carries the stored entity fields some rules depend on.
type Target struct {
	AssigneeID string
	ManagerID  string
}

type rule func(actor domain.Actor, target Target) bool

func role(r domain.Role) rule {
	return func(actor domain.Actor, _ Target) bool { return actor.Role == r }
}

func anyOf(rules ...rule) rule {
	return func(actor domain.Actor, target Target) bool {
		for _, r := range rules {
			if r(actor, target) {
				return true
			}
		}
		return false
	}
}

func assignee(actor domain.Actor, target Target) bool {
	return actor.Role == domain.RoleContributor && target.AssigneeID != "" && target.AssigneeID == actor.ID
}

func owningManager(actor domain.Actor, target Target) bool {
	return actor.Role == domain.RoleManager && target.ManagerID != "" && target.ManagerID == actor.ID
}

var policy = map[Operation]rule{
	OpProjectPropose:      role(domain.RoleClient),
	OpProjectAccept:       role(domain.RoleManager),
	OpProjectStatusUpdate: owningManager,
	OpTaskSubmit:          anyOf(role(domain.RoleClient), role(domain.RoleManager)),
	OpTaskApprove:         role(domain.RoleManager),
	OpTaskAssign:          role(domain.RoleManager),
	OpTaskAdvance:         anyOf(role(domain.RoleManager), assignee),
	OpTaskPendingList:     role(domain.RoleManager),
	OpTaskSubmittedList:   anyOf(role(domain.RoleClient), role(domain.RoleManager), role(domain.RoleContributor)),
	OpEventList:           role(domain.RoleManager),
}

// IsPermitted reports whether actor may perform op on target. Unknown
// operations and actors without an id are always denied.
func IsPermitted(actor domain.Actor, op Operation, target Target) bool {
	if actor.ID == "" {
		return false
	}
	r, ok := policy[op]
	if !ok {
		return false
	}
	return r(actor, target)
}

// Check is IsPermitted returning a ForbiddenError on denial.
func Check(actor domain.Actor, op Operation, target Target) error {
	if IsPermitted(actor, op, target) {
		return nil
	}
	denied := ForbiddenError{Operation: op, Role: actor.Role}
	if actor.ID == "" {
		denied.Role = ""
	}
	return denied
}
